package recording

import (
	"strings"
	"time"

	"CallBox/model"
)

// Search returns the recordings whose contact name, phone number or
// formatted timestamp contains query, ignoring case. Digit-only queries also
// match against the normalized number, so "5551234" finds "+1 (555) 123-4567".
func Search(recordings []*model.Recording, query string, loc *time.Location) []*model.Recording {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		out := make([]*model.Recording, len(recordings))
		copy(out, recordings)
		return out
	}
	var qDigits string
	if stripped := strings.Map(keepDigitLike, q); allDigits(stripped) {
		qDigits = NormalizePhone(stripped)
	}

	var out []*model.Recording
	for _, r := range recordings {
		if matches(r, q, qDigits, loc) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r *model.Recording, q, qDigits string, loc *time.Location) bool {
	if r.ContactName != nil && strings.Contains(strings.ToLower(*r.ContactName), q) {
		return true
	}
	if strings.Contains(strings.ToLower(r.PhoneNumber), q) {
		return true
	}
	if qDigits != "" && strings.Contains(NormalizePhone(r.PhoneNumber), qDigits) {
		return true
	}
	return strings.Contains(strings.ToLower(FormatTimestamp(r.Timestamp, loc)), q)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// keepDigitLike drops phone punctuation so "(555) 123" counts as a number query.
func keepDigitLike(r rune) rune {
	switch r {
	case ' ', '-', '(', ')', '+', '.':
		return -1
	}
	return r
}
