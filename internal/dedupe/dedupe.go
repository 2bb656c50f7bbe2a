// Package dedupe canonicalizes phone, email, and address values so the
// same fact reported by different providers collapses to one entry. It
// also provides the fact sets used for net-new counting on related-party
// pulls.
package dedupe

import "strings"

// PhoneKey reduces a phone string to its 10-digit dedup key: strip all
// non-digits, then drop a leading country-code 1 from 11-digit numbers.
// Values that canonicalize to the same key are duplicates.
func PhoneKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

// EmailKey canonicalizes an email for case-insensitive exact matching.
func EmailKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// PhoneSet deduplicates phone values by canonical key, retaining the
// first-seen formatted value for display.
type PhoneSet struct {
	byKey map[string]string
	order []string
}

// NewPhoneSet creates a PhoneSet seeded with the given values.
func NewPhoneSet(values ...string) *PhoneSet {
	s := &PhoneSet{byKey: make(map[string]string)}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts a phone value. It reports true when the value was net-new
// (no previous value shared its key). Empty and digit-free values are
// ignored.
func (s *PhoneSet) Add(value string) bool {
	key := PhoneKey(value)
	if key == "" {
		return false
	}
	if _, ok := s.byKey[key]; ok {
		return false
	}
	s.byKey[key] = value
	s.order = append(s.order, key)
	return true
}

// Has reports whether a value with the same canonical key is present.
func (s *PhoneSet) Has(value string) bool {
	_, ok := s.byKey[PhoneKey(value)]
	return ok
}

// Values returns the retained display values in insertion order.
func (s *PhoneSet) Values() []string {
	out := make([]string, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}

// Len returns the number of distinct phones.
func (s *PhoneSet) Len() int { return len(s.order) }

// EmailSet deduplicates emails case-insensitively, retaining first-seen
// casing for display.
type EmailSet struct {
	byKey map[string]string
	order []string
}

// NewEmailSet creates an EmailSet seeded with the given values.
func NewEmailSet(values ...string) *EmailSet {
	s := &EmailSet{byKey: make(map[string]string)}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts an email value, reporting true when net-new.
func (s *EmailSet) Add(value string) bool {
	key := EmailKey(value)
	if key == "" {
		return false
	}
	if _, ok := s.byKey[key]; ok {
		return false
	}
	s.byKey[key] = strings.TrimSpace(value)
	s.order = append(s.order, key)
	return true
}

// Has reports whether an equivalent email is present.
func (s *EmailSet) Has(value string) bool {
	_, ok := s.byKey[EmailKey(value)]
	return ok
}

// Values returns the retained values in insertion order.
func (s *EmailSet) Values() []string {
	out := make([]string, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}

// Len returns the number of distinct emails.
func (s *EmailSet) Len() int { return len(s.order) }
