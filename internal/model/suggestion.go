package model

import "strings"

// Suggestion source tags, in the order they appear in provenance strings.
const (
	SourceFacts          = "facts"
	SourceBase           = "base"
	SourceRelatedParties = "related_parties"
)

// Suggestion is a derived, non-persisted recommendation for one CRM
// field. Sources is the pipe-delimited provenance of every source that
// contributed, e.g. "facts|related_parties".
type Suggestion struct {
	Field   FactKind `json:"field"`
	Value   string   `json:"value"`
	Sources string   `json:"sources"`
}

// HasSource reports whether the given tag contributed to the suggestion.
func (s Suggestion) HasSource(tag string) bool {
	for _, t := range strings.Split(s.Sources, "|") {
		if t == tag {
			return true
		}
	}
	return false
}

// FromRelatedParty reports whether the winning value belongs to a related
// party rather than the subject. Consumers must require an explicit
// confirmation before applying such a value as the subject's own.
func (s Suggestion) FromRelatedParty() bool {
	first, _, _ := strings.Cut(s.Sources, "|")
	return first == SourceRelatedParties
}
