package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bondline/skiptrace/internal/enrich"
	"github.com/bondline/skiptrace/internal/model"
	"github.com/bondline/skiptrace/internal/suggest"
)

func TestFormatProviders(t *testing.T) {
	var sb strings.Builder
	formatProviders(&sb, []model.Provider{
		{ID: "whitepages", Label: "Whitepages Pro", TTLMinutes: 1440, ErrorTTLMinutes: 60, SupportsForce: true, Default: true},
		{ID: "pdl", Label: "People Data Labs", TTLMinutes: 10080, ErrorTTLMinutes: 60},
	})

	out := sb.String()
	assert.Contains(t, out, "whitepages")
	assert.Contains(t, out, "Whitepages Pro")
	assert.Contains(t, out, "24h0m0s")
	assert.Contains(t, out, "pdl")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "*")
	assert.NotContains(t, lines[3], "*")
}

func TestFormatRecord_CandidateTable(t *testing.T) {
	score := 0.92
	rec := &model.EnrichmentRecord{
		ID:         "rec-1",
		SubjectID:  "SPN-1",
		ProviderID: "whitepages",
		Status:     model.EnrichmentSuccess,
		Candidates: []model.Candidate{
			{
				RecordID: "p1",
				FullName: "Ramona Ortiz",
				Score:    &score,
				Contacts: []model.Contact{{Type: model.ContactPhone, Value: "+17135550101"}},
			},
			{RecordID: "p2", FullName: "R Ortiz"},
		},
		SelectedRecords: []string{"p1"},
		RequestedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		ExpiresAt:       time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}

	var sb strings.Builder
	formatRecord(&sb, rec, enrich.StateFresh)

	out := sb.String()
	assert.Contains(t, out, "provider=whitepages")
	assert.Contains(t, out, "state=fresh")
	assert.Contains(t, out, "0.92")

	// Score-less candidates render a dash, and only p1 is selected.
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "p2") {
			assert.Contains(t, line, "-")
			assert.NotContains(t, line, "*")
		}
		if strings.HasPrefix(line, "p1") {
			assert.Contains(t, line, "*")
		}
	}
}

func TestFormatRecord_ErrorRecord(t *testing.T) {
	rec := &model.EnrichmentRecord{
		ID:         "rec-2",
		ProviderID: "pdl",
		Status:     model.EnrichmentError,
		Error:      &model.EnrichmentFailure{Message: "upstream timeout"},
	}

	var sb strings.Builder
	formatRecord(&sb, rec, enrich.StateStale)

	assert.Contains(t, sb.String(), "Error: upstream timeout")
	assert.NotContains(t, sb.String(), "RECORD\t")
}

func TestFormatParties(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	match := 0.88
	until := now.Add(10 * time.Minute)

	var sb strings.Builder
	formatParties(&sb, []model.RelatedParty{
		{
			ID:           "7f3a2b1c-0000-0000-0000-000000000000",
			Name:         "Luis Ortiz",
			RelationType: model.RelationFamily,
			LastAudit: &model.AuditEntry{
				At:            now.Add(-5 * time.Minute),
				Match:         &match,
				NetNewPhones:  2,
				NetNewEmails:  1,
				CooldownUntil: &until,
			},
		},
		{
			ID:                 "9c8d7e6f-0000-0000-0000-000000000000",
			Name:               "Dana Webb",
			RelationType:       model.RelationAssociate,
			RelationOverridden: true,
		},
	}, now)

	out := sb.String()
	assert.Contains(t, out, "7f3a2b1c")
	assert.NotContains(t, out, "7f3a2b1c-0000")
	assert.Contains(t, out, "0.88")
	assert.Contains(t, out, "10m0s")
	assert.Contains(t, out, "associate (pinned)")
	assert.Contains(t, out, "never")
}

func TestFormatSuggestions_SkipsEmptyFields(t *testing.T) {
	var sb strings.Builder
	formatSuggestions(&sb, suggest.Set{
		Phone: &model.Suggestion{Field: model.FactPhone, Value: "+17135550101", Sources: "facts|base"},
	})

	out := sb.String()
	assert.Contains(t, out, "facts|base")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)
}

func TestParseSubjectsCSV(t *testing.T) {
	in := strings.NewReader("id,first_name,last_name,dob,phone\n" +
		"SPN-1,Ramona,Ortiz,1988-04-12,7135550101\n" +
		",skipped,row,,\n" +
		"SPN-2,,,1990-01-01,\n")

	subjects, err := parseSubjectsCSV(in)
	require.NoError(t, err)
	require.Len(t, subjects, 2)

	assert.Equal(t, "SPN-1", subjects[0].ID)
	assert.Equal(t, "Ramona Ortiz", subjects[0].FullName)
	assert.Equal(t, "7135550101", subjects[0].Phone)
	assert.Equal(t, "SPN-2", subjects[1].ID)
	assert.Empty(t, subjects[1].FullName)
}

func TestParseSubjectsCSV_MissingIDColumn(t *testing.T) {
	_, err := parseSubjectsCSV(strings.NewReader("first_name,last_name\nRamona,Ortiz\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id column")
}

func TestParseSubjectsCSV_FullNameColumnWins(t *testing.T) {
	in := strings.NewReader("id,first_name,last_name,full_name\nSPN-3,Ramona,Ortiz,Ramona O. Ortiz\n")

	subjects, err := parseSubjectsCSV(in)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "Ramona O. Ortiz", subjects[0].FullName)
}
