package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bondline/skiptrace/internal/model"
)

func fp(v float64) *float64 { return &v }

func partyWithPhone(id, phone string, match *float64, netNew int) model.RelatedParty {
	return model.RelatedParty{
		ID:     id,
		Phones: []string{phone},
		LastAudit: &model.AuditEntry{
			Match:        match,
			NetNewPhones: netNew,
		},
	}
}

func TestMerge_CaseRecordBeatsRelatedParties(t *testing.T) {
	m := New(nil)
	set := m.Merge(Input{
		CRM:     model.CRMDetails{Phone: "(713) 555-0001"},
		Parties: []model.RelatedParty{partyWithPhone("p1", "555-0100", fp(0.99), 2)},
	})

	require.NotNil(t, set.Phone)
	assert.Equal(t, "(713) 555-0001", set.Phone.Value)
	assert.Equal(t, "base|related_parties", set.Phone.Sources)
	assert.False(t, set.Phone.FromRelatedParty())
}

func TestMerge_FactsBeatEverything(t *testing.T) {
	m := New(nil)
	set := m.Merge(Input{
		CRM: model.CRMDetails{Phone: "(713) 555-0001"},
		Facts: []model.SubjectFact{
			{Kind: model.FactPhone, Value: "(713) 555-0002", Source: model.SourceFacts},
		},
		Parties: []model.RelatedParty{partyWithPhone("p1", "555-0100", fp(0.99), 0)},
	})

	require.NotNil(t, set.Phone)
	assert.Equal(t, "(713) 555-0002", set.Phone.Value)
	assert.Equal(t, "facts|base|related_parties", set.Phone.Sources)
	assert.True(t, set.Phone.HasSource("base"))
}

func TestMerge_ProviderFactSource(t *testing.T) {
	m := New(nil)
	set := m.Merge(Input{
		Facts: []model.SubjectFact{
			{Kind: model.FactEmail, Value: "maria@example.com", Source: "pdl"},
		},
	})

	require.NotNil(t, set.Email)
	assert.Equal(t, "maria@example.com", set.Email.Value)
	assert.Equal(t, "pdl", set.Email.Sources)
}

func TestMerge_RelatedPartyFallback(t *testing.T) {
	// No case-level phone: the strongest party's phone wins, and the
	// provenance flags it as belonging to another person.
	m := New(nil)
	set := m.Merge(Input{
		Parties: []model.RelatedParty{
			partyWithPhone("p2", "555-0100", fp(0.7), 0),
		},
	})

	require.NotNil(t, set.Phone)
	assert.Equal(t, "555-0100", set.Phone.Value)
	assert.Equal(t, "related_parties", set.Phone.Sources)
	assert.True(t, set.Phone.FromRelatedParty())
}

func TestMerge_StrongestPartyWins(t *testing.T) {
	m := New(nil)
	set := m.Merge(Input{
		Parties: []model.RelatedParty{
			partyWithPhone("weak", "555-0001", fp(0.4), 0),
			partyWithPhone("strong", "555-0002", fp(0.95), 0),
		},
	})

	require.NotNil(t, set.Phone)
	assert.Equal(t, "555-0002", set.Phone.Value)
}

func TestMerge_PartyAddressRendered(t *testing.T) {
	m := New(nil)
	set := m.Merge(Input{
		Parties: []model.RelatedParty{{
			ID: "p1",
			Addresses: []model.Address{
				{StreetLine1: "100 Main St", City: "Houston", StateCode: "TX", PostalCode: "77002"},
			},
			LastAudit: &model.AuditEntry{Match: fp(0.9)},
		}},
	})

	require.NotNil(t, set.Address)
	assert.Equal(t, "100 Main St, Houston, TX 77002", set.Address.Value)
}

func TestMerge_NoSources(t *testing.T) {
	set := New(nil).Merge(Input{})
	assert.Nil(t, set.Phone)
	assert.Nil(t, set.Email)
	assert.Nil(t, set.Address)
}

func TestRank_ByScore(t *testing.T) {
	parties := []model.RelatedParty{
		partyWithPhone("low", "1", fp(0.3), 5),
		{ID: "none"},
		partyWithPhone("high", "2", fp(0.9), 0),
	}

	ranked := Rank(parties, OrderScore)
	require.Len(t, ranked, 3)
	assert.Equal(t, "high", ranked[0].ID)
	assert.Equal(t, "low", ranked[1].ID)
	assert.Equal(t, "none", ranked[2].ID, "parties without a score sort last")
}

func TestRank_ByValueWithScoreTieBreak(t *testing.T) {
	parties := []model.RelatedParty{
		partyWithPhone("lowgain", "1", fp(0.95), 1),
		partyWithPhone("highgain", "2", fp(0.5), 4),
		partyWithPhone("tie-weak", "3", fp(0.2), 4),
	}

	ranked := Rank(parties, OrderValue)
	assert.Equal(t, "highgain", ranked[0].ID)
	assert.Equal(t, "tie-weak", ranked[1].ID)
	assert.Equal(t, "lowgain", ranked[2].ID)
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	parties := []model.RelatedParty{
		partyWithPhone("a", "1", fp(0.1), 0),
		partyWithPhone("b", "2", fp(0.9), 0),
	}
	_ = Rank(parties, OrderScore)
	assert.Equal(t, "a", parties[0].ID)
}
