// Package textutil cleans free-form user text before it is persisted or
// echoed back to other parties.
package textutil

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup from user-supplied text and bounds its length.
type Sanitizer struct {
	policy    *bluemonday.Policy
	maxLength int
}

// NewSanitizer builds a strict-policy sanitizer. maxLength <= 0 disables the
// length bound.
func NewSanitizer(maxLength int) *Sanitizer {
	return &Sanitizer{
		policy:    bluemonday.StrictPolicy(),
		maxLength: maxLength,
	}
}

// Clean strips all HTML, trims surrounding whitespace, and truncates to the
// configured length.
func (s *Sanitizer) Clean(text string) string {
	if s == nil || s.policy == nil {
		return strings.TrimSpace(text)
	}
	cleaned := strings.TrimSpace(s.policy.Sanitize(text))
	if s.maxLength > 0 && len(cleaned) > s.maxLength {
		cleaned = cleaned[:s.maxLength]
	}
	return cleaned
}
