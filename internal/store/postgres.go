package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bondline/skiptrace/internal/db"
	"github.com/bondline/skiptrace/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"get_subject":    `SELECT data, created_at, updated_at FROM subjects WHERE id = $1`,
	"get_enrichment": `SELECT record FROM enrichments WHERE subject_id = $1 AND provider_id = $2`,
	"get_party":      `SELECT data FROM related_parties WHERE subject_id = $1 AND id = $2`,
	"list_parties":   `SELECT data FROM related_parties WHERE subject_id = $1 ORDER BY id ASC`,
	"list_facts":     `SELECT kind, value, source FROM subject_facts WHERE subject_id = $1 ORDER BY created_at ASC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for use by subsystems that
// need direct query access (e.g., bulk subject import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS subjects (
	id         TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subject_facts (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject_id TEXT NOT NULL REFERENCES subjects(id),
	kind       TEXT NOT NULL,
	value      TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (subject_id, kind, value, source)
);

CREATE TABLE IF NOT EXISTS enrichments (
	id           TEXT PRIMARY KEY,
	subject_id   TEXT NOT NULL,
	provider_id  TEXT NOT NULL,
	record       JSONB NOT NULL,
	requested_at TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	UNIQUE (subject_id, provider_id)
);

CREATE TABLE IF NOT EXISTS related_parties (
	subject_id TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (subject_id, id)
);

CREATE INDEX IF NOT EXISTS idx_subject_facts_subject ON subject_facts(subject_id);
CREATE INDEX IF NOT EXISTS idx_enrichments_subject ON enrichments(subject_id);
CREATE INDEX IF NOT EXISTS idx_enrichments_expires ON enrichments(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetSubject(ctx context.Context, subjectID string) (*model.Subject, error) {
	var dataJSON []byte
	var createdAt, updatedAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT data, created_at, updated_at FROM subjects WHERE id = $1`,
		subjectID,
	).Scan(&dataJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get subject %s", subjectID)
	}

	var subj model.Subject
	if err := json.Unmarshal(dataJSON, &subj); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal subject")
	}
	subj.CreatedAt = createdAt
	subj.UpdatedAt = updatedAt
	return &subj, nil
}

func (s *PostgresStore) PutSubject(ctx context.Context, subject *model.Subject) error {
	now := time.Now().UTC()
	dataJSON, err := json.Marshal(subject)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal subject")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO subjects (id, data, created_at, updated_at) VALUES ($1, $2, $3, $3)
		 ON CONFLICT (id) DO UPDATE SET data = $2, updated_at = $3`,
		subject.ID, dataJSON, now,
	)
	return eris.Wrapf(err, "postgres: put subject %s", subject.ID)
}

func (s *PostgresStore) UpdateCRMField(ctx context.Context, subjectID string, kind model.FactKind, value string) error {
	var field string
	switch kind {
	case model.FactPhone:
		field = "phone"
	case model.FactEmail:
		field = "email"
	case model.FactAddress:
		field = "address"
	default:
		return eris.Errorf("store: unknown crm field %q", kind)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE subjects
		 SET data = jsonb_set(data, ARRAY['crm_details', $1], to_jsonb($2::text)), updated_at = $3
		 WHERE id = $4`,
		field, value, time.Now().UTC(), subjectID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update crm %s for subject %s", kind, subjectID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("subject not found: %s", subjectID)
	}
	return nil
}

func (s *PostgresStore) ListFacts(ctx context.Context, subjectID string) ([]model.SubjectFact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, value, source FROM subject_facts WHERE subject_id = $1 ORDER BY created_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list facts")
	}
	defer rows.Close()

	var facts []model.SubjectFact
	for rows.Next() {
		var f model.SubjectFact
		if err := rows.Scan(&f.Kind, &f.Value, &f.Source); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact")
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "postgres: list facts iterate")
}

func (s *PostgresStore) AddFact(ctx context.Context, subjectID string, fact model.SubjectFact) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subject_facts (id, subject_id, kind, value, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (subject_id, kind, value, source) DO NOTHING`,
		uuid.New().String(), subjectID, string(fact.Kind), fact.Value, fact.Source, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: add fact for subject %s", subjectID)
}

func (s *PostgresStore) GetEnrichment(ctx context.Context, subjectID, providerID string) (*model.EnrichmentRecord, error) {
	var recordJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM enrichments WHERE subject_id = $1 AND provider_id = $2`,
		subjectID, providerID,
	).Scan(&recordJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get enrichment %s/%s", subjectID, providerID)
	}

	var rec model.EnrichmentRecord
	if err := json.Unmarshal(recordJSON, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal enrichment")
	}
	return &rec, nil
}

func (s *PostgresStore) PutEnrichment(ctx context.Context, rec *model.EnrichmentRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enrichment")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichments (id, subject_id, provider_id, record, requested_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (subject_id, provider_id) DO UPDATE SET
		   id = $1, record = $4, requested_at = $5, expires_at = $6`,
		rec.ID, rec.SubjectID, rec.ProviderID, recordJSON, rec.RequestedAt.UTC(), rec.ExpiresAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: put enrichment %s/%s", rec.SubjectID, rec.ProviderID)
}

func (s *PostgresStore) GetParty(ctx context.Context, subjectID, partyID string) (*model.RelatedParty, error) {
	var dataJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM related_parties WHERE subject_id = $1 AND id = $2`,
		subjectID, partyID,
	).Scan(&dataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get party %s/%s", subjectID, partyID)
	}

	var party model.RelatedParty
	if err := json.Unmarshal(dataJSON, &party); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal party")
	}
	return &party, nil
}

func (s *PostgresStore) UpsertParty(ctx context.Context, party *model.RelatedParty) error {
	dataJSON, err := json.Marshal(party)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal party")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO related_parties (subject_id, id, data, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (subject_id, id) DO UPDATE SET data = $3, updated_at = $4`,
		party.SubjectID, party.ID, dataJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert party %s/%s", party.SubjectID, party.ID)
}

func (s *PostgresStore) ListParties(ctx context.Context, subjectID string) ([]model.RelatedParty, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM related_parties WHERE subject_id = $1 ORDER BY id ASC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parties")
	}
	defer rows.Close()

	var parties []model.RelatedParty
	for rows.Next() {
		var dataJSON []byte
		if err := rows.Scan(&dataJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan party")
		}
		var party model.RelatedParty
		if err := json.Unmarshal(dataJSON, &party); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal party")
		}
		parties = append(parties, party)
	}
	return parties, eris.Wrap(rows.Err(), "postgres: list parties iterate")
}

// BulkImportSubjects loads subjects via the COPY protocol with an
// upsert merge, so re-importing an export replaces existing rows the
// same way PutSubject does.
func (s *PostgresStore) BulkImportSubjects(ctx context.Context, subjects []model.Subject) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(subjects))
	for i := range subjects {
		dataJSON, err := json.Marshal(&subjects[i])
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal subject")
		}
		rows = append(rows, []any{subjects[i].ID, dataJSON, now, now})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "subjects",
		Columns:      []string{"id", "data", "created_at", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"data", "updated_at"},
	}, rows)
}
