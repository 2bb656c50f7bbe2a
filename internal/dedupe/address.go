package dedupe

import (
	"regexp"
	"strings"

	"github.com/bondline/skiptrace/internal/model"
)

// AddressKey reduces a parsed address to its dedup key: the lowercase
// pipe-join of street line 1, city, state, and postal code. Line 2
// (units, apartments) intentionally does not participate so "Apt 4" and
// "Unit 4" variants of the same street address collapse.
func AddressKey(a model.Address) string {
	parts := []string{a.StreetLine1, a.City, a.StateCode, a.PostalCode}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.Join(strings.Fields(p), " "))
	}
	return strings.Join(parts, "|")
}

var (
	zipRe   = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	stateRe = regexp.MustCompile(`(?i)^[A-Z]{2}$`)
	unitRe  = regexp.MustCompile(`(?i)\b(apt|apartment|unit|ste|suite|#)\s*\.?\s*([\w-]+)\s*$`)
)

// ParseAddress best-effort parses a single-line address into components.
// It expects the common comma-separated "street, city, ST 77002" shape
// produced by provider payloads and CRM fields; anything it cannot place
// stays in StreetLine1 so no information is silently dropped.
func ParseAddress(s string) model.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Address{}
	}

	var a model.Address

	if m := zipRe.FindStringSubmatch(s); m != nil {
		a.PostalCode = m[1]
		s = strings.TrimSpace(strings.Replace(s, m[0], "", 1))
	}

	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	// State code is usually the trailing token of the last segment. A
	// single-segment input is all street ("100 Main St" ends in a token
	// that looks like a state code), so only multi-segment inputs are
	// inspected.
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if tok := lastToken(last); stateRe.MatchString(tok) {
			a.StateCode = strings.ToUpper(tok)
			trimmed := strings.TrimSpace(strings.TrimSuffix(last, tok))
			trimmed = strings.TrimSuffix(trimmed, ",")
			parts[len(parts)-1] = strings.TrimSpace(trimmed)
		}
	}
	// Drop emptied segments.
	cleaned := parts[:0]
	for _, p := range parts {
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	parts = cleaned

	switch len(parts) {
	case 0:
	case 1:
		a.StreetLine1 = parts[0]
	case 2:
		a.StreetLine1 = parts[0]
		a.City = parts[1]
	default:
		a.StreetLine1 = parts[0]
		a.StreetLine2 = strings.Join(parts[1:len(parts)-1], ", ")
		a.City = parts[len(parts)-1]
	}

	// Pull a trailing unit designator out of street line 1.
	if a.StreetLine2 == "" {
		if m := unitRe.FindStringSubmatch(a.StreetLine1); m != nil {
			a.StreetLine2 = strings.TrimSpace(m[0])
			a.StreetLine1 = strings.TrimSpace(strings.TrimSuffix(a.StreetLine1, m[0]))
			a.StreetLine1 = strings.TrimSuffix(a.StreetLine1, ",")
		}
	}

	return a
}

func lastToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// AddressSet deduplicates addresses by canonical key, retaining the
// first-seen parsed form.
type AddressSet struct {
	byKey map[string]model.Address
	order []string
}

// NewAddressSet creates an AddressSet seeded with the given addresses.
func NewAddressSet(addrs ...model.Address) *AddressSet {
	s := &AddressSet{byKey: make(map[string]model.Address)}
	for _, a := range addrs {
		s.Add(a)
	}
	return s
}

// Add inserts an address, reporting true when net-new. Zero addresses
// are ignored.
func (s *AddressSet) Add(a model.Address) bool {
	if a.IsZero() {
		return false
	}
	key := AddressKey(a)
	if _, ok := s.byKey[key]; ok {
		return false
	}
	s.byKey[key] = a
	s.order = append(s.order, key)
	return true
}

// Has reports whether an equivalent address is present.
func (s *AddressSet) Has(a model.Address) bool {
	_, ok := s.byKey[AddressKey(a)]
	return ok
}

// Values returns the retained addresses in insertion order.
func (s *AddressSet) Values() []model.Address {
	out := make([]model.Address, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}

// Len returns the number of distinct addresses.
func (s *AddressSet) Len() int { return len(s.order) }
