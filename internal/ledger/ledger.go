// Package ledger maintains the per-related-party audit trail: when each
// party was last pulled, what the pull gained, and when the next pull is
// allowed.
package ledger

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bondline/skiptrace/internal/dedupe"
	"github.com/bondline/skiptrace/internal/model"
)

// DefaultCooldownWindow is the minimum wait between consecutive pulls
// for the same related party. Product has not fixed a value; this is the
// configuration default, not a protocol constant.
const DefaultCooldownWindow = 15 * time.Minute

// PartyStore is the slice of persistence the ledger needs. Parties are
// upserted, never deleted.
type PartyStore interface {
	GetParty(ctx context.Context, subjectID, partyID string) (*model.RelatedParty, error)
	UpsertParty(ctx context.Context, party *model.RelatedParty) error
	ListParties(ctx context.Context, subjectID string) ([]model.RelatedParty, error)
}

// ErrPartyNotFound is returned for unknown (subject, party) pairs.
var ErrPartyNotFound = eris.New("ledger: related party not found")

// Eligibility is the answer to "may this party be pulled again now".
type Eligibility struct {
	Allowed    bool  `json:"allowed"`
	ETASeconds int64 `json:"eta_seconds,omitempty"`
}

// PullOutcome carries what a provider pull produced for one party.
// Match is the normalized [0,1] score, or nil when the provider returned
// none.
type PullOutcome struct {
	Name          string
	RelationType  model.RelationType
	RelationLabel string
	Match         *float64
	Accepted      *bool
	Phones        []string
	Emails        []string
	Addresses     []model.Address
	ForcedBy      string
}

// Ledger mediates all audit and cooldown state for related parties.
type Ledger struct {
	store    PartyStore
	cooldown time.Duration
	group    singleflight.Group
	now      func() time.Time
}

// New creates a ledger. A non-positive cooldown falls back to the
// default window.
func New(store PartyStore, cooldown time.Duration) *Ledger {
	if cooldown <= 0 {
		cooldown = DefaultCooldownWindow
	}
	return &Ledger{store: store, cooldown: cooldown, now: time.Now}
}

// WithNow fixes the clock for tests.
func (l *Ledger) WithNow(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// CooldownWindow returns the configured window.
func (l *Ledger) CooldownWindow() time.Duration { return l.cooldown }

// CanReEnrich reports whether a pull is allowed for the party right now,
// and if not, how long until it is. Unknown parties are pullable: the
// first pull is what creates them.
func (l *Ledger) CanReEnrich(ctx context.Context, subjectID, partyID string) (Eligibility, error) {
	party, err := l.store.GetParty(ctx, subjectID, partyID)
	if err != nil {
		return Eligibility{}, err
	}
	if party == nil || party.LastAudit == nil || party.LastAudit.CooldownUntil == nil {
		return Eligibility{Allowed: true}, nil
	}

	until := *party.LastAudit.CooldownUntil
	now := l.now()
	if !now.Before(until) {
		return Eligibility{Allowed: true}, nil
	}
	return Eligibility{
		Allowed:    false,
		ETASeconds: int64(until.Sub(now).Round(time.Second) / time.Second),
	}, nil
}

// RecordPull folds a pull outcome into the party: facts are merged with
// dedup, net-new counts are computed against the pre-pull fact sets, and
// the audit entry is overwritten with a fresh cooldown. The party is
// created on its first pull. Admin-pinned relation classification is
// never overwritten here.
func (l *Ledger) RecordPull(ctx context.Context, subjectID, partyID string, outcome PullOutcome) (*model.RelatedParty, error) {
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

	if outcome.Name != "" {
		party.Name = outcome.Name
	}
	if !party.RelationOverridden {
		if outcome.RelationType != "" {
			party.RelationType = outcome.RelationType
		}
		if outcome.RelationLabel != "" {
			party.RelationLabel = outcome.RelationLabel
		}
	}
	if party.RelationType == "" {
		party.RelationType = model.RelationUnknown
	}

	phones := dedupe.NewPhoneSet(party.Phones...)
	emails := dedupe.NewEmailSet(party.Emails...)
	addrs := dedupe.NewAddressSet(party.Addresses...)

	var newPhones, newEmails, newAddrs int
	for _, p := range outcome.Phones {
		if phones.Add(p) {
			newPhones++
		}
	}
	for _, e := range outcome.Emails {
		if emails.Add(e) {
			newEmails++
		}
	}
	for _, a := range outcome.Addresses {
		if addrs.Add(a) {
			newAddrs++
		}
	}
	party.Phones = phones.Values()
	party.Emails = emails.Values()
	party.Addresses = addrs.Values()

	cooldownUntil := now.Add(l.cooldown)
	party.LastAudit = &model.AuditEntry{
		At:              now,
		Match:           outcome.Match,
		Accepted:        outcome.Accepted,
		CooldownUntil:   &cooldownUntil,
		NetNewPhones:    newPhones,
		NetNewEmails:    newEmails,
		NetNewAddresses: newAddrs,
		ForcedBy:        outcome.ForcedBy,
	}
	party.UpdatedAt = now

	if err := l.store.UpsertParty(ctx, party); err != nil {
		return nil, err
	}

	zap.L().Debug("ledger: recorded pull",
		zap.String("subject_id", subjectID),
		zap.String("party_id", partyID),
		zap.Int("net_new_phones", newPhones),
		zap.Int("net_new_emails", newEmails),
		zap.Int("net_new_addresses", newAddrs),
	)

	return party, nil
}

// SetRelationship pins the party's classification. It mutates only the
// relation fields, never the audit entry or contacts, and is idempotent.
// Nil arguments leave the corresponding field unchanged.
func (l *Ledger) SetRelationship(ctx context.Context, subjectID, partyID string, relType *model.RelationType, label *string) (*model.RelatedParty, error) {
	party, err := l.store.GetParty(ctx, subjectID, partyID)
	if err != nil {
		return nil, err
	}
	if party == nil {
		return nil, eris.Wrapf(ErrPartyNotFound, "%s/%s", subjectID, partyID)
	}

	changed := false
	if relType != nil && party.RelationType != *relType {
		party.RelationType = *relType
		changed = true
	}
	if label != nil && party.RelationLabel != *label {
		party.RelationLabel = *label
		changed = true
	}
	if !party.RelationOverridden {
		party.RelationOverridden = true
		changed = true
	}
	if !changed {
		return party, nil
	}

	party.UpdatedAt = l.now()
	if err := l.store.UpsertParty(ctx, party); err != nil {
		return nil, err
	}
	return party, nil
}

// ClearRelationOverride releases an admin pin so automatic
// classification applies again on the next pull.
func (l *Ledger) ClearRelationOverride(ctx context.Context, subjectID, partyID string) error {
	party, err := l.store.GetParty(ctx, subjectID, partyID)
	if err != nil {
		return err
	}
	if party == nil {
		return eris.Wrapf(ErrPartyNotFound, "%s/%s", subjectID, partyID)
	}
	if !party.RelationOverridden {
		return nil
	}
	party.RelationOverridden = false
	party.UpdatedAt = l.now()
	return l.store.UpsertParty(ctx, party)
}

// List returns all related parties for a subject.
func (l *Ledger) List(ctx context.Context, subjectID string) ([]model.RelatedParty, error) {
	return l.store.ListParties(ctx, subjectID)
}

// Do runs fn under the per-(subject, party) single-flight discipline:
// two concurrent pulls for the same party collapse into one.
func (l *Ledger) Do(ctx context.Context, subjectID, partyID string, fn func(ctx context.Context) (*model.RelatedParty, error)) (*model.RelatedParty, bool, error) {
	v, err, shared := l.group.Do(subjectID+"\x00"+partyID, func() (any, error) {
		return fn(ctx)
	})
	var party *model.RelatedParty
	if v != nil {
		party = v.(*model.RelatedParty)
	}
	return party, shared, err
}
