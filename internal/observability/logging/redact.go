package logging

import "regexp"

var (
	// Apply the specific key shapes first so the generic token rule does not
	// leave recognizable prefixes behind.
	anthropicKeyPattern = regexp.MustCompile(`sk-ant-[a-zA-Z0-9-_]+`)
	openaiKeyPattern    = regexp.MustCompile(`sk-[a-zA-Z0-9]{10,}`)
	bearerPattern       = regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._\-]+`)
	dsnPasswordPattern  = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)

	// Any run of 20+ alphanumerics is treated as a credential.
	longTokenPattern = regexp.MustCompile(`[A-Za-z0-9]{20,}`)
)

// Redact masks credential-shaped substrings before a message is persisted or
// buffered. Run logs, the ring buffer and process logs all pass through here.
func Redact(msg string) string {
	msg = anthropicKeyPattern.ReplaceAllString(msg, "[REDACTED]")
	msg = openaiKeyPattern.ReplaceAllString(msg, "[REDACTED]")
	msg = bearerPattern.ReplaceAllString(msg, "[REDACTED]")
	msg = dsnPasswordPattern.ReplaceAllString(msg, "://$1:[REDACTED]@")
	msg = longTokenPattern.ReplaceAllString(msg, "[REDACTED]")
	return msg
}

// RedactError is a convenience wrapper for error values.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error())
}
