package saml

import (
	"time"

	"github.com/dchest/uniuri"
)

// TimeNow is used in place of time.Now() so tests can fix the clock.
var TimeNow = time.Now

// DefaultValidDuration is how long a freshly-generated metadata
// document or assertion is valid for when the caller doesn't specify
// one.
const DefaultValidDuration = 48 * time.Hour

// DefaultClockSkew bounds how far issue_instant may drift from the
// policy's notion of "now" in the replay-and-freshness rule.
const DefaultClockSkew = 5 * time.Minute

// NewID returns a fresh SAML message/assertion identifier. The SAML
// specs require the first character not be a digit, so it is prefixed
// with a constant letter.
func NewID() string {
	return "id" + uniuri.NewLen(32)
}

// firstSet returns the first non-empty string argument.
func firstSet(args ...string) string {
	for _, a := range args {
		if a != "" {
			return a
		}
	}
	return ""
}

// timeToString renders t in the xsd:dateTime format SAML wire formats
// expect, i.e. RFC3339 with no sub-second component.
func timeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
