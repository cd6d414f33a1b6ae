package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/roastcraft/enrich-cli/internal/config"
	"github.com/roastcraft/enrich-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock implements
// it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists queries prepared on each new connection for the
// hot-path store operations.
var preparedStatements = map[string]string{
	"insert_enrichment": `INSERT INTO enrichments (id, record_id, run_id, field, result, evaluation, status, reviewer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (record_id, field, run_id) DO NOTHING`,
	"get_enrichment": `SELECT id, record_id, run_id, field, result, evaluation, status, reviewer_id, created_at, updated_at
		FROM enrichments WHERE id = $1`,
	"lookup_enrichment": `SELECT id FROM enrichments WHERE record_id = $1 AND field = $2 AND run_id = $3`,
	"update_status": `UPDATE enrichments SET status = $1, reviewer_id = COALESCE(NULLIF($2, ''), reviewer_id), updated_at = $3
		WHERE id = $4 AND status = $5`,
	"count_by_status": `SELECT COUNT(*) FROM enrichments WHERE status = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg config.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg.MaxConns > 0 {
		maxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		minConns = poolCfg.MinConns
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
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS enrichments (
	id          TEXT PRIMARY KEY,
	record_id   TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	field       TEXT NOT NULL,
	result      JSONB NOT NULL,
	evaluation  JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	reviewer_id TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(record_id, field, run_id)
);

CREATE INDEX IF NOT EXISTS idx_enrichments_history ON enrichments(record_id, field, created_at);
CREATE INDEX IF NOT EXISTS idx_enrichments_status ON enrichments(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Persist(ctx context.Context, rec *model.EnrichmentRecord) error {
	resultJSON, evalJSON, err := marshalPayload(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enrichment")
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

	tag, err := s.pool.Exec(ctx, "insert_enrichment",
		rec.ID, rec.RecordID, rec.RunID, rec.Field, resultJSON, evalJSON,
		string(rec.Status), nullable(rec.ReviewerID), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert enrichment")
	}
	if tag.RowsAffected() == 0 {
		var existingID string
		err := s.pool.QueryRow(ctx, "lookup_enrichment", rec.RecordID, rec.Field, rec.RunID).Scan(&existingID)
		if err != nil {
			return eris.Wrap(err, "postgres: lookup existing enrichment")
		}
		rec.ID = existingID
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.EnrichmentRecord, error) {
	rec, err := scanPgEnrichment(s.pool.QueryRow(ctx, "get_enrichment", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get enrichment %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) GetHistory(ctx context.Context, recordID, field string) ([]model.EnrichmentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, record_id, run_id, field, result, evaluation, status, reviewer_id, created_at, updated_at
		 FROM enrichments WHERE record_id = $1 AND field = $2 ORDER BY created_at, id`,
		recordID, field)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query history")
	}
	defer rows.Close()
	return collectPgEnrichments(rows)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to model.EnrichmentStatus, reviewerID string) error {
	tag, err := s.pool.Exec(ctx, "update_status",
		string(to), reviewerID, time.Now().UTC(), id, string(from))
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", id)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := s.pool.QueryRow(ctx, `SELECT status FROM enrichments WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: check status %s", id)
		}
		return ErrStatusConflict
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status model.EnrichmentStatus, limit int) ([]model.EnrichmentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, record_id, run_id, field, result, evaluation, status, reviewer_id, created_at, updated_at
		 FROM enrichments WHERE status = $1 ORDER BY created_at, id LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list by status")
	}
	defer rows.Close()
	return collectPgEnrichments(rows)
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status model.EnrichmentStatus) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "count_by_status", string(status)).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count by status")
	}
	return n, nil
}

func scanPgEnrichment(row pgx.Row) (*model.EnrichmentRecord, error) {
	var rec model.EnrichmentRecord
	var resultJSON, evalJSON []byte
	var status string
	var reviewer *string

	if err := row.Scan(&rec.ID, &rec.RecordID, &rec.RunID, &rec.Field,
		&resultJSON, &evalJSON, &status, &reviewer, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
		return nil, eris.Wrap(err, "unmarshal result")
	}
	if err := json.Unmarshal(evalJSON, &rec.Evaluation); err != nil {
		return nil, eris.Wrap(err, "unmarshal evaluation")
	}
	rec.Status = model.EnrichmentStatus(status)
	if reviewer != nil {
		rec.ReviewerID = *reviewer
	}
	return &rec, nil
}

func collectPgEnrichments(rows pgx.Rows) ([]model.EnrichmentRecord, error) {
	var out []model.EnrichmentRecord
	for rows.Next() {
		rec, err := scanPgEnrichment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scan enrichment")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "iterate enrichments")
}
