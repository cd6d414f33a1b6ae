package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/roastcraft/enrich-cli/internal/model"
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichments (
	id          TEXT PRIMARY KEY,
	record_id   TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	field       TEXT NOT NULL,
	result      TEXT NOT NULL,
	evaluation  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	reviewer_id TEXT,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	UNIQUE(record_id, field, run_id)
);

CREATE INDEX IF NOT EXISTS idx_enrichments_history ON enrichments(record_id, field, created_at);
CREATE INDEX IF NOT EXISTS idx_enrichments_status ON enrichments(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Persist(ctx context.Context, rec *model.EnrichmentRecord) error {
	resultJSON, evalJSON, err := marshalPayload(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichments (id, record_id, run_id, field, result, evaluation, status, reviewer_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(record_id, field, run_id) DO NOTHING`,
		rec.ID, rec.RecordID, rec.RunID, rec.Field, resultJSON, evalJSON,
		string(rec.Status), nullable(rec.ReviewerID), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert enrichment")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if affected == 0 {
		// Replay of an already-persisted attempt: adopt the stored id.
		var existingID string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM enrichments WHERE record_id = ? AND field = ? AND run_id = ?`,
			rec.RecordID, rec.Field, rec.RunID,
		).Scan(&existingID)
		if err != nil {
			return eris.Wrap(err, "sqlite: lookup existing enrichment")
		}
		rec.ID = existingID
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.EnrichmentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, record_id, run_id, field, result, evaluation, status, reviewer_id, created_at, updated_at
		 FROM enrichments WHERE id = ?`, id)
	rec, err := scanEnrichment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get enrichment %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, recordID, field string) ([]model.EnrichmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record_id, run_id, field, result, evaluation, status, reviewer_id, created_at, updated_at
		 FROM enrichments WHERE record_id = ? AND field = ? ORDER BY created_at, id`,
		recordID, field)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query history")
	}
	defer rows.Close()
	return collectEnrichments(rows)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, from, to model.EnrichmentStatus, reviewerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichments SET status = ?, reviewer_id = COALESCE(NULLIF(?, ''), reviewer_id), updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), reviewerID, time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if affected == 0 {
		// Lost the CAS or the record is missing; tell the caller which.
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM enrichments WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: check status %s", id)
		}
		return ErrStatusConflict
	}
	return nil
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status model.EnrichmentStatus, limit int) ([]model.EnrichmentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record_id, run_id, field, result, evaluation, status, reviewer_id, created_at, updated_at
		 FROM enrichments WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list by status")
	}
	defer rows.Close()
	return collectEnrichments(rows)
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, status model.EnrichmentStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrichments WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count by status")
	}
	return n, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrichment(row rowScanner) (*model.EnrichmentRecord, error) {
	var rec model.EnrichmentRecord
	var resultJSON, evalJSON, status string
	var reviewer sql.NullString

	if err := row.Scan(&rec.ID, &rec.RecordID, &rec.RunID, &rec.Field,
		&resultJSON, &evalJSON, &status, &reviewer, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
		return nil, eris.Wrap(err, "unmarshal result")
	}
	if err := json.Unmarshal([]byte(evalJSON), &rec.Evaluation); err != nil {
		return nil, eris.Wrap(err, "unmarshal evaluation")
	}
	rec.Status = model.EnrichmentStatus(status)
	if reviewer.Valid {
		rec.ReviewerID = reviewer.String
	}
	return &rec, nil
}

func collectEnrichments(rows *sql.Rows) ([]model.EnrichmentRecord, error) {
	var out []model.EnrichmentRecord
	for rows.Next() {
		rec, err := scanEnrichment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scan enrichment")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "iterate enrichments")
}

func marshalPayload(rec *model.EnrichmentRecord) (string, string, error) {
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return "", "", err
	}
	evalJSON, err := json.Marshal(rec.Evaluation)
	if err != nil {
		return "", "", err
	}
	return string(resultJSON), string(evalJSON), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
