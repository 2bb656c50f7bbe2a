package model

import "time"

// RelationType is the coarse classification of how a related party is
// connected to the subject.
type RelationType string

const (
	RelationFamily    RelationType = "family"
	RelationAssociate RelationType = "associate"
	RelationHousehold RelationType = "household"
	RelationUnknown   RelationType = "unknown"
)

// RelatedParty is a person connected to the subject, discovered or
// refreshed by enrichment pulls. Parties are never hard-deleted; stale
// ones keep their last audit for history.
type RelatedParty struct {
	ID            string       `json:"id"`
	SubjectID     string       `json:"subject_id"`
	Name          string       `json:"name"`
	RelationType  RelationType `json:"relation_type"`
	RelationLabel string       `json:"relation_label,omitempty"`
	// RelationOverridden is set when an admin pinned the classification.
	// Automatic classification must not touch relation fields while set.
	RelationOverridden bool        `json:"relation_overridden,omitempty"`
	Phones             []string    `json:"phones,omitempty"`
	Emails             []string    `json:"emails,omitempty"`
	Addresses          []Address   `json:"addresses,omitempty"`
	LastAudit          *AuditEntry `json:"last_audit,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// AuditEntry records the outcome of the most recent pull for a related
// party. Each pull overwrites it; the previous value is read only to
// compute the net-new deltas before being replaced.
type AuditEntry struct {
	At               time.Time  `json:"at"`
	Match            *float64   `json:"match,omitempty"`
	Accepted         *bool      `json:"accepted,omitempty"`
	CooldownUntil    *time.Time `json:"cooldown_until,omitempty"`
	NetNewPhones     int        `json:"net_new_phones"`
	NetNewEmails     int        `json:"net_new_emails"`
	NetNewAddresses  int        `json:"net_new_addresses"`
	ForcedBy         string     `json:"forced_by,omitempty"`
}

// NetNewTotal is the information gained by the last pull across all fact
// kinds. It drives the "value" sort order for party ranking.
func (a *AuditEntry) NetNewTotal() int {
	if a == nil {
		return 0
	}
	return a.NetNewPhones + a.NetNewEmails + a.NetNewAddresses
}
