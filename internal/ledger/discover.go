package ledger

import (
	"context"

	"github.com/bondline/skiptrace/internal/model"
)

// Discover registers a related party surfaced by a subject-level
// enrichment run. Unlike RecordPull it touches no audit state and sets
// no cooldown: nothing was fetched for the party itself yet. Existing
// parties only gain a name or classification they were missing;
// admin-pinned classification is left alone. Discovery shares the
// per-(subject, party) flight with pulls, so a concurrent pull and a
// discovery never interleave their read-modify-write on the same row.
func (l *Ledger) Discover(ctx context.Context, subjectID, partyID, name, relationLabel string) (*model.RelatedParty, error) {
	party, _, err := l.Do(ctx, subjectID, partyID, func(ctx context.Context) (*model.RelatedParty, error) {
		return l.discover(ctx, subjectID, partyID, name, relationLabel)
	})
	return party, err
}

func (l *Ledger) discover(ctx context.Context, subjectID, partyID, name, relationLabel string) (*model.RelatedParty, error) {
	now := l.now()

	party, err := l.store.GetParty(ctx, subjectID, partyID)
	if err != nil {
		return nil, err
	}
	if party == nil {
		party = &model.RelatedParty{
			ID:        partyID,
			SubjectID: subjectID,
			CreatedAt: now,
		}
	}

	changed := party.CreatedAt.Equal(now)
	if party.Name == "" && name != "" {
		party.Name = name
		changed = true
	}
	if !party.RelationOverridden {
		if t := ClassifyRelation(relationLabel); party.RelationType == "" || party.RelationType == model.RelationUnknown {
			if t != model.RelationUnknown {
				party.RelationType = t
				party.RelationLabel = relationLabel
				changed = true
			}
		}
	}
	if party.RelationType == "" {
		party.RelationType = model.RelationUnknown
		changed = true
	}
	if !changed {
		return party, nil
	}

	party.UpdatedAt = now
	if err := l.store.UpsertParty(ctx, party); err != nil {
		return nil, err
	}
	return party, nil
}
