// Package store persists subjects, enrichment records, and related
// parties. Aggregates are stored as JSON documents with scalar columns
// for the fields queries filter on, with SQLite and Postgres backends.
package store

import (
	"context"

	"github.com/bondline/skiptrace/internal/model"
)

// Store defines the persistence interface for the enrichment engine.
// Lookups return (nil, nil) for missing rows; callers decide whether
// absence is an error.
type Store interface {
	// Subjects. The case record is owned by the surrounding CRM; the
	// engine's only write paths are PutSubject (import) and
	// UpdateCRMField (an agent applying a suggestion).
	GetSubject(ctx context.Context, subjectID string) (*model.Subject, error)
	PutSubject(ctx context.Context, subject *model.Subject) error
	UpdateCRMField(ctx context.Context, subjectID string, kind model.FactKind, value string) error

	// Subject-level facts from direct provider integrations.
	ListFacts(ctx context.Context, subjectID string) ([]model.SubjectFact, error)
	AddFact(ctx context.Context, subjectID string, fact model.SubjectFact) error

	// Enrichment records: one current record per (subject, provider)
	// pair; PutEnrichment replaces any previous record for the pair.
	GetEnrichment(ctx context.Context, subjectID, providerID string) (*model.EnrichmentRecord, error)
	PutEnrichment(ctx context.Context, rec *model.EnrichmentRecord) error

	// Related parties. Upsert only; parties are never deleted.
	GetParty(ctx context.Context, subjectID, partyID string) (*model.RelatedParty, error)
	UpsertParty(ctx context.Context, party *model.RelatedParty) error
	ListParties(ctx context.Context, subjectID string) ([]model.RelatedParty, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
