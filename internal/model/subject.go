// Package model defines the domain types shared across the skip-trace
// enrichment engine.
package model

import "time"

// Subject is the case/person under investigation. The ID is the stable
// case identifier (SPN or booking number) and never changes; contact
// facts attached to the subject do.
type Subject struct {
	ID        string     `json:"id"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	FullName  string     `json:"full_name,omitempty"`
	DOB       string     `json:"dob,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Address   *Address   `json:"address,omitempty"`
	CRM       CRMDetails `json:"crm_details"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CRMDetails holds the case-level CRM contact fields maintained by agents.
// These participate in suggestion precedence as the "base" source.
type CRMDetails struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// SubjectFact is a subject-level contact fact contributed by a direct
// provider integration, tagged with the source it came from (a provider
// id or the generic "facts" tag).
type SubjectFact struct {
	Kind   FactKind `json:"kind"`
	Value  string   `json:"value"`
	Source string   `json:"source"`
}

// FactKind identifies the contact field a fact belongs to.
type FactKind string

const (
	FactPhone   FactKind = "phone"
	FactEmail   FactKind = "email"
	FactAddress FactKind = "address"
)
