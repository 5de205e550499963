// Package mailer delivers rendered digests. Two transports sit behind one
// capability interface: an HTTP email API (single JSON POST with bearer auth)
// and SMTP with optional TLS. Delivery failure never invalidates the digest;
// the pipeline logs it and keeps the archived HTML.
package mailer

import "context"

// Message is one outbound email with both HTML and plain-text bodies.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Mailer sends a message through one transport.
type Mailer interface {
	// Send delivers the message. Implementations classify failures with
	// retry.HTTPError where a status code exists.
	Send(ctx context.Context, msg Message) error

	// Name identifies the transport in logs and metrics.
	Name() string
}
