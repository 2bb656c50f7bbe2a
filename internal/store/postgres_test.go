package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bondline/skiptrace/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_GetSubject_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data, created_at, updated_at FROM subjects WHERE id = \$1`).
		WithArgs("SPN-nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetSubject(context.Background(), "SPN-nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSubject(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT data, created_at, updated_at FROM subjects WHERE id = \$1`).
		WithArgs("SPN-100").
		WillReturnRows(pgxmock.NewRows([]string{"data", "created_at", "updated_at"}).
			AddRow([]byte(`{"id":"SPN-100","full_name":"Ramona Ortiz","crm_details":{"phone":"713-555-0101"}}`), now, now))

	got, err := s.GetSubject(context.Background(), "SPN-100")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ramona Ortiz", got.FullName)
	assert.Equal(t, "713-555-0101", got.CRM.Phone)
	assert.Equal(t, now, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutSubject_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO subjects .* ON CONFLICT`).
		WithArgs("SPN-100", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutSubject(context.Background(), &model.Subject{ID: "SPN-100", FullName: "Ramona Ortiz"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateCRMField_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE subjects`).
		WithArgs("phone", "832-555-0199", pgxmock.AnyArg(), "SPN-nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateCRMField(context.Background(), "SPN-nope", model.FactPhone, "832-555-0199")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateCRMField_UnknownKind(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	err := s.UpdateCRMField(context.Background(), "SPN-100", model.FactKind("ssn"), "nope")
	require.Error(t, err)
}

func TestPostgresStore_GetEnrichment_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record FROM enrichments`).
		WithArgs("SPN-100", "whitepages").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetEnrichment(context.Background(), "SPN-100", "whitepages")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutEnrichment_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO enrichments .* ON CONFLICT \(subject_id, provider_id\)`).
		WithArgs("run-1", "SPN-100", "whitepages", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutEnrichment(context.Background(), &model.EnrichmentRecord{
		ID: "run-1", SubjectID: "SPN-100", ProviderID: "whitepages",
		RequestedAt: time.Now().UTC(), Status: model.EnrichmentSuccess,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetParty_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM related_parties`).
		WithArgs("SPN-100", "nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetParty(context.Background(), "SPN-100", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertParty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO related_parties .* ON CONFLICT \(subject_id, id\)`).
		WithArgs("SPN-100", "wp-rel-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertParty(context.Background(), &model.RelatedParty{
		ID: "wp-rel-1", SubjectID: "SPN-100", Name: "Luis Ortiz",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListParties(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM related_parties WHERE subject_id = \$1`).
		WithArgs("SPN-100").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"id":"a","subject_id":"SPN-100","name":"Ana"}`)).
			AddRow([]byte(`{"id":"b","subject_id":"SPN-100","name":"Ben"}`)))

	parties, err := s.ListParties(context.Background(), "SPN-100")
	require.NoError(t, err)
	require.Len(t, parties, 2)
	assert.Equal(t, "Ana", parties[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BulkImportSubjects(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_subjects"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_subjects"}, []string{"id", "data", "created_at", "updated_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "subjects" .+ ON CONFLICT \("id"\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.BulkImportSubjects(context.Background(), []model.Subject{
		{ID: "SPN-100", FullName: "Ramona Ortiz"},
		{ID: "SPN-101", FullName: "Luis Ortiz"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
