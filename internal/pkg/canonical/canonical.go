// Package canonical normalizes article URLs and titles and derives the
// deterministic content hash used for deduplication. All functions are pure;
// two identical semantic items hash identically across process runs.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// trackingParams is the fixed allowlist of query parameters stripped during
// URL canonicalization.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"utm_name":     {},
	"mc_cid":       {},
	"mc_eid":       {},
	"gclid":        {},
	"igshid":       {},
}

// URL strips tracking query parameters and lowercases the host.
// It returns ok=false for unparsable or host-less URLs; callers drop those
// items.
func URL(raw string) (canonical string, host string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false
	}

	u.Host = strings.ToLower(u.Host)

	q := u.Query()
	for param := range q {
		if _, tracked := trackingParams[strings.ToLower(param)]; tracked {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return u.String(), u.Hostname(), true
}

// Title normalizes a headline: trim, lowercase, and collapse any run of
// whitespace or Unicode punctuation to a single space.
func Title(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	pendingSpace := false
	wroteAny := false
	for _, r := range strings.ToLower(raw) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			pendingSpace = wroteAny
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
		wroteAny = true
	}
	return b.String()
}

// Hash computes the SHA-256 content hash over the normalized title, canonical
// URL, UTC calendar date (or empty when the published timestamp is unknown)
// and source host.
func Hash(titleNorm, canonicalURL string, publishedAt *time.Time, host string) string {
	dateOnly := ""
	if publishedAt != nil {
		dateOnly = publishedAt.UTC().Format("2006-01-02")
	}
	sum := sha256.Sum256([]byte(titleNorm + "|" + canonicalURL + "|" + dateOnly + "|" + host))
	return hex.EncodeToString(sum[:])
}
