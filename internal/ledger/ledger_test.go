package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bondline/skiptrace/internal/model"
)

// memPartyStore implements PartyStore in memory.
type memPartyStore struct {
	mu      sync.Mutex
	parties map[string]*model.RelatedParty
}

func newMemPartyStore() *memPartyStore {
	return &memPartyStore{parties: make(map[string]*model.RelatedParty)}
}

func (s *memPartyStore) key(subjectID, partyID string) string { return subjectID + "/" + partyID }

func (s *memPartyStore) GetParty(_ context.Context, subjectID, partyID string) (*model.RelatedParty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[s.key(subjectID, partyID)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memPartyStore) UpsertParty(_ context.Context, party *model.RelatedParty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *party
	s.parties[s.key(party.SubjectID, party.ID)] = &cp
	return nil
}

func (s *memPartyStore) ListParties(_ context.Context, subjectID string) ([]model.RelatedParty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RelatedParty
	for _, p := range s.parties {
		if p.SubjectID == subjectID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func fp(v float64) *float64 { return &v }

func TestRecordPull_CreatesPartyWithCooldown(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(newMemPartyStore(), 15*time.Minute).WithNow(func() time.Time { return t0 })

	party, err := l.RecordPull(context.Background(), "spn-1", "p1", PullOutcome{
		Name:          "Jose Gonzalez",
		RelationLabel: "brother",
		RelationType:  ClassifyRelation("brother"),
		Match:         fp(0.9),
		Phones:        []string{"(713) 555-0100"},
		Emails:        []string{"jose@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.RelationFamily, party.RelationType)
	require.NotNil(t, party.LastAudit)
	assert.Equal(t, t0, party.LastAudit.At)
	require.NotNil(t, party.LastAudit.CooldownUntil)
	assert.Equal(t, t0.Add(15*time.Minute), *party.LastAudit.CooldownUntil)
	assert.False(t, party.LastAudit.CooldownUntil.Before(party.LastAudit.At),
		"cooldown must not precede the pull itself")
	assert.Equal(t, 1, party.LastAudit.NetNewPhones)
	assert.Equal(t, 1, party.LastAudit.NetNewEmails)
	assert.Equal(t, 0, party.LastAudit.NetNewAddresses)
}

func TestRecordPull_NetNewAgainstPrePullFacts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(newMemPartyStore(), 15*time.Minute).WithNow(func() time.Time { return now })
	ctx := context.Background()

	_, err := l.RecordPull(ctx, "spn-1", "p1", PullOutcome{
		Name:   "Jose Gonzalez",
		Phones: []string{"(713) 555-0100"},
	})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	party, err := l.RecordPull(ctx, "spn-1", "p1", PullOutcome{
		Name: "Jose Gonzalez",
		// Same phone in a different format, plus one genuinely new.
		Phones: []string{"+1 713 555 0100", "713-555-0199"},
		Emails: []string{"jose@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, party.LastAudit.NetNewPhones)
	assert.Equal(t, 1, party.LastAudit.NetNewEmails)
	assert.Len(t, party.Phones, 2)
	// First-seen formatting survives the re-pull.
	assert.Equal(t, "(713) 555-0100", party.Phones[0])
}

func TestCanReEnrich_CooldownMonotonic(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	l := New(newMemPartyStore(), 15*time.Minute).WithNow(func() time.Time { return now })
	ctx := context.Background()

	// Unknown party: first pull always allowed.
	elig, err := l.CanReEnrich(ctx, "spn-1", "p1")
	require.NoError(t, err)
	assert.True(t, elig.Allowed)

	_, err = l.RecordPull(ctx, "spn-1", "p1", PullOutcome{Name: "Jose Gonzalez"})
	require.NoError(t, err)

	// T0+5m: blocked with ~600s remaining.
	now = t0.Add(5 * time.Minute)
	elig, err = l.CanReEnrich(ctx, "spn-1", "p1")
	require.NoError(t, err)
	assert.False(t, elig.Allowed)
	assert.InDelta(t, 600, elig.ETASeconds, 1)

	// Strictly before the deadline: still blocked.
	now = t0.Add(15*time.Minute - time.Second)
	elig, err = l.CanReEnrich(ctx, "spn-1", "p1")
	require.NoError(t, err)
	assert.False(t, elig.Allowed)

	// At the deadline: allowed.
	now = t0.Add(15 * time.Minute)
	elig, err = l.CanReEnrich(ctx, "spn-1", "p1")
	require.NoError(t, err)
	assert.True(t, elig.Allowed)

	// T0+16m: allowed.
	now = t0.Add(16 * time.Minute)
	elig, err = l.CanReEnrich(ctx, "spn-1", "p1")
	require.NoError(t, err)
	assert.True(t, elig.Allowed)
}

func TestSetRelationship_PinsAgainstAutoClassification(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(newMemPartyStore(), 15*time.Minute).WithNow(func() time.Time { return now })
	ctx := context.Background()

	_, err := l.RecordPull(ctx, "spn-1", "p1", PullOutcome{
		Name:          "Jose Gonzalez",
		RelationType:  model.RelationAssociate,
		RelationLabel: "associate",
	})
	require.NoError(t, err)

	typ := model.RelationFamily
	label := "brother"
	party, err := l.SetRelationship(ctx, "spn-1", "p1", &typ, &label)
	require.NoError(t, err)
	assert.True(t, party.RelationOverridden)
	auditBefore := *party.LastAudit

	// Idempotent: repeating the override changes nothing.
	again, err := l.SetRelationship(ctx, "spn-1", "p1", &typ, &label)
	require.NoError(t, err)
	assert.Equal(t, party.UpdatedAt, again.UpdatedAt)

	// A later pull with a different auto classification must not clobber
	// the pinned fields.
	now = now.Add(time.Hour)
	party, err = l.RecordPull(ctx, "spn-1", "p1", PullOutcome{
		Name:          "Jose Gonzalez",
		RelationType:  model.RelationHousehold,
		RelationLabel: "roommate",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RelationFamily, party.RelationType)
	assert.Equal(t, "brother", party.RelationLabel)
	assert.NotEqual(t, auditBefore.At, party.LastAudit.At, "audit still updates on pulls")

	// Clearing the pin re-enables auto classification.
	require.NoError(t, l.ClearRelationOverride(ctx, "spn-1", "p1"))
	now = now.Add(time.Hour)
	party, err = l.RecordPull(ctx, "spn-1", "p1", PullOutcome{
		RelationType:  model.RelationHousehold,
		RelationLabel: "roommate",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RelationHousehold, party.RelationType)
}

func TestSetRelationship_UnknownParty(t *testing.T) {
	l := New(newMemPartyStore(), 15*time.Minute)
	typ := model.RelationFamily
	_, err := l.SetRelationship(context.Background(), "spn-1", "nope", &typ, nil)
	assert.ErrorIs(t, err, ErrPartyNotFound)
}

func TestDo_CollapsesConcurrentPulls(t *testing.T) {
	l := New(newMemPartyStore(), 15*time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (*model.RelatedParty, error) {
		calls.Add(1)
		<-release
		return &model.RelatedParty{ID: "p1"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := l.Do(context.Background(), "spn-1", "p1", fn)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestDiscover_SharesFlightWithPulls(t *testing.T) {
	l := New(newMemPartyStore(), 15*time.Minute)

	// Hold a pull open for the party, then start a discovery for the
	// same (subject, party). The discovery must wait for the pull and
	// take its result instead of racing a second read-modify-write.
	started := make(chan struct{})
	release := make(chan struct{})
	pulled := &model.RelatedParty{ID: "p1", SubjectID: "spn-1", Name: "Luis Ortiz"}
	go func() {
		_, _, _ = l.Do(context.Background(), "spn-1", "p1", func(ctx context.Context) (*model.RelatedParty, error) {
			close(started)
			<-release
			return pulled, nil
		})
	}()
	<-started

	done := make(chan *model.RelatedParty, 1)
	go func() {
		party, err := l.Discover(context.Background(), "spn-1", "p1", "Luis Ortiz", "brother")
		assert.NoError(t, err)
		done <- party
	}()

	select {
	case <-done:
		t.Fatal("discovery finished while the pull was still in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	party := <-done
	assert.Equal(t, pulled, party)
}

func TestClassifyRelation(t *testing.T) {
	tests := []struct {
		label string
		want  model.RelationType
	}{
		{"brother", model.RelationFamily},
		{"Mother", model.RelationFamily},
		{"half-brother", model.RelationFamily},
		{"roommate", model.RelationHousehold},
		{"coworker", model.RelationAssociate},
		{"", model.RelationUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRelation(tt.label))
		})
	}
}
