package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bondline/skiptrace/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS subjects (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS subject_facts (
	id         TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(id),
	kind       TEXT NOT NULL,
	value      TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (subject_id, kind, value, source)
);

CREATE TABLE IF NOT EXISTS enrichments (
	id           TEXT PRIMARY KEY,
	subject_id   TEXT NOT NULL,
	provider_id  TEXT NOT NULL,
	record       TEXT NOT NULL,
	requested_at DATETIME NOT NULL,
	expires_at   DATETIME NOT NULL,
	UNIQUE (subject_id, provider_id)
);

CREATE TABLE IF NOT EXISTS related_parties (
	subject_id TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (subject_id, id)
);

CREATE INDEX IF NOT EXISTS idx_subject_facts_subject ON subject_facts(subject_id);
CREATE INDEX IF NOT EXISTS idx_enrichments_subject ON enrichments(subject_id);
CREATE INDEX IF NOT EXISTS idx_enrichments_expires ON enrichments(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetSubject(ctx context.Context, subjectID string) (*model.Subject, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, created_at, updated_at FROM subjects WHERE id = ?`,
		subjectID,
	)

	var dataJSON string
	var createdAt, updatedAt time.Time
	err := row.Scan(&dataJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get subject %s", subjectID)
	}

	var subj model.Subject
	if err := json.Unmarshal([]byte(dataJSON), &subj); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal subject")
	}
	subj.CreatedAt = createdAt
	subj.UpdatedAt = updatedAt
	return &subj, nil
}

func (s *SQLiteStore) PutSubject(ctx context.Context, subject *model.Subject) error {
	now := time.Now().UTC()
	dataJSON, err := json.Marshal(subject)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal subject")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		subject.ID, string(dataJSON), now, now,
	)
	return eris.Wrapf(err, "sqlite: put subject %s", subject.ID)
}

func (s *SQLiteStore) UpdateCRMField(ctx context.Context, subjectID string, kind model.FactKind, value string) error {
	path, err := crmJSONPath(kind)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE subjects SET data = json_set(data, ?, ?), updated_at = ? WHERE id = ?`,
		path, value, time.Now().UTC(), subjectID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update crm %s for subject %s", kind, subjectID)
	}
	return checkRowsAffected(res, "subject", subjectID)
}

func (s *SQLiteStore) ListFacts(ctx context.Context, subjectID string) ([]model.SubjectFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, value, source FROM subject_facts WHERE subject_id = ? ORDER BY created_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list facts")
	}
	defer rows.Close()

	var facts []model.SubjectFact
	for rows.Next() {
		var f model.SubjectFact
		if err := rows.Scan(&f.Kind, &f.Value, &f.Source); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact")
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: list facts iterate")
}

func (s *SQLiteStore) AddFact(ctx context.Context, subjectID string, fact model.SubjectFact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subject_facts (id, subject_id, kind, value, source, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject_id, kind, value, source) DO NOTHING`,
		uuid.New().String(), subjectID, string(fact.Kind), fact.Value, fact.Source, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: add fact for subject %s", subjectID)
}

func (s *SQLiteStore) GetEnrichment(ctx context.Context, subjectID, providerID string) (*model.EnrichmentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT record FROM enrichments WHERE subject_id = ? AND provider_id = ?`,
		subjectID, providerID,
	)

	var recordJSON string
	err := row.Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get enrichment %s/%s", subjectID, providerID)
	}

	var rec model.EnrichmentRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal enrichment")
	}
	return &rec, nil
}

func (s *SQLiteStore) PutEnrichment(ctx context.Context, rec *model.EnrichmentRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichments (id, subject_id, provider_id, record, requested_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject_id, provider_id) DO UPDATE SET
		   id = excluded.id, record = excluded.record,
		   requested_at = excluded.requested_at, expires_at = excluded.expires_at`,
		rec.ID, rec.SubjectID, rec.ProviderID, string(recordJSON), rec.RequestedAt.UTC(), rec.ExpiresAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put enrichment %s/%s", rec.SubjectID, rec.ProviderID)
}

func (s *SQLiteStore) GetParty(ctx context.Context, subjectID, partyID string) (*model.RelatedParty, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM related_parties WHERE subject_id = ? AND id = ?`,
		subjectID, partyID,
	)

	var dataJSON string
	err := row.Scan(&dataJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get party %s/%s", subjectID, partyID)
	}

	var party model.RelatedParty
	if err := json.Unmarshal([]byte(dataJSON), &party); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal party")
	}
	return &party, nil
}

func (s *SQLiteStore) UpsertParty(ctx context.Context, party *model.RelatedParty) error {
	dataJSON, err := json.Marshal(party)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal party")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO related_parties (subject_id, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (subject_id, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		party.SubjectID, party.ID, string(dataJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert party %s/%s", party.SubjectID, party.ID)
}

func (s *SQLiteStore) ListParties(ctx context.Context, subjectID string) ([]model.RelatedParty, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM related_parties WHERE subject_id = ? ORDER BY id ASC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parties")
	}
	defer rows.Close()

	var parties []model.RelatedParty
	for rows.Next() {
		var dataJSON string
		if err := rows.Scan(&dataJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan party")
		}
		var party model.RelatedParty
		if err := json.Unmarshal([]byte(dataJSON), &party); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal party")
		}
		parties = append(parties, party)
	}
	return parties, eris.Wrap(rows.Err(), "sqlite: list parties iterate")
}

// helpers

func crmJSONPath(kind model.FactKind) (string, error) {
	switch kind {
	case model.FactPhone:
		return "$.crm_details.phone", nil
	case model.FactEmail:
		return "$.crm_details.email", nil
	case model.FactAddress:
		return "$.crm_details.address", nil
	}
	return "", eris.Errorf("store: unknown crm field %q", kind)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
