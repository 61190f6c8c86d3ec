// Package security sanitizes user input before it leaves the server and
// validates outbound endpoint URLs.
package security

import (
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictOnce sync.Once
	strict     *Sanitizer
)

// Sanitizer turns user input into plain text using a bluemonday policy.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer creates a sanitizer. A nil policy strips all markup.
func NewSanitizer(policy *bluemonday.Policy) *Sanitizer {
	if policy == nil {
		policy = bluemonday.StrictPolicy()
	}
	return &Sanitizer{policy: policy}
}

// Strict returns the shared sanitizer that strips all markup.
func Strict() *Sanitizer {
	strictOnce.Do(func() {
		strict = NewSanitizer(bluemonday.StrictPolicy())
	})
	return strict
}

// Text strips disallowed markup from s and returns it as plain text.
// Entities produced by the policy are decoded again, so "Tom & Jerry"
// survives unchanged. Whitespace is kept as typed.
func (s *Sanitizer) Text(in string) string {
	if in == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(in)
	return html.UnescapeString(cleaned)
}

// Values returns a sanitized copy of v. Keys are kept as they are; they
// come from the form definition, not the user.
func (s *Sanitizer) Values(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for key, values := range v {
		cleaned := make([]string, len(values))
		for i, value := range values {
			cleaned[i] = s.Text(value)
		}
		out[key] = cleaned
	}
	return out
}

// IsValidURL reports whether raw is an absolute http or https URL with a
// host.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// TruncateText truncates text to maxLen bytes at a word boundary when one
// is near, adding an ellipsis.
func TruncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	truncated := s[:maxLen]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxLen/2 {
		truncated = truncated[:lastSpace]
	}
	return strings.ToValidUTF8(truncated, "") + "..."
}
