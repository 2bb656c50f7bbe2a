package model

import "time"

// EnrichmentStatus marks whether a provider run succeeded or failed.
type EnrichmentStatus string

const (
	EnrichmentSuccess EnrichmentStatus = "success"
	EnrichmentError   EnrichmentStatus = "error"
)

// EnrichmentFailure describes a failed provider run. The message is safe to
// show to agents; provider internals stay in the logs.
type EnrichmentFailure struct {
	Message string `json:"message"`
}

// EnrichmentRecord is one cached result of running a provider for a
// subject. At most one current record exists per (subject, provider)
// pair; each run supersedes the previous record rather than appending.
type EnrichmentRecord struct {
	ID              string             `json:"id"`
	SubjectID       string             `json:"subject_id"`
	ProviderID      string             `json:"provider_id"`
	RequestedAt     time.Time          `json:"requested_at"`
	RequestedBy     string             `json:"requested_by,omitempty"`
	Status          EnrichmentStatus   `json:"status"`
	Error           *EnrichmentFailure `json:"error,omitempty"`
	Candidates      []Candidate        `json:"candidates,omitempty"`
	SelectedRecords []string           `json:"selected_records,omitempty"`
	ExpiresAt       time.Time          `json:"expires_at"`
}

// IsFresh reports whether the record is still valid at the given time.
func (r *EnrichmentRecord) IsFresh(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// Candidate is a single match returned by a provider, mapped into this
// fixed shape by the provider adapter. Adapters record the provider's
// native confidence in Score; the orchestrator normalizes it into [0,1]
// (nil when the provider returned none) before the record is stored.
// Candidates live only inside their parent EnrichmentRecord.
type Candidate struct {
	RecordID  string    `json:"record_id"`
	FullName  string    `json:"full_name"`
	Score     *float64  `json:"score,omitempty"`
	Contacts  []Contact `json:"contacts,omitempty"`
	Addresses []Address `json:"addresses,omitempty"`
	Relatives []string  `json:"relatives,omitempty"`
}

// ContactType distinguishes candidate contact entries.
type ContactType string

const (
	ContactPhone ContactType = "phone"
	ContactEmail ContactType = "email"
)

// Contact is one typed contact value on a candidate.
type Contact struct {
	Type  ContactType `json:"type"`
	Value string      `json:"value"`
	Label string      `json:"label,omitempty"`
}
