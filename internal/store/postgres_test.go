package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Persist_Insert(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`insert_enrichment`).
		WithArgs(pgxmock.AnyArg(), "rec-1", "run-1", "weight", pgxmock.AnyArg(), pgxmock.AnyArg(),
			"applied", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := newEnrichment("rec-1", "weight", "run-1")
	rec.ID = ""
	require.NoError(t, s.Persist(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Persist_ReplayAdoptsExistingID(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`insert_enrichment`).
		WithArgs(pgxmock.AnyArg(), "rec-1", "run-1", "weight", pgxmock.AnyArg(), pgxmock.AnyArg(),
			"applied", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`lookup_enrichment`).
		WithArgs("rec-1", "weight", "run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("enr-original"))

	rec := newEnrichment("rec-1", "weight", "run-1")
	require.NoError(t, s.Persist(context.Background(), rec))
	assert.Equal(t, "enr-original", rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatus_Conflict(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`update_status`).
		WithArgs("approved", "alice", pgxmock.AnyArg(), "enr-1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM enrichments WHERE id = \$1`).
		WithArgs("enr-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("rejected"))

	err := s.UpdateStatus(context.Background(), "enr-1", model.StatusPending, model.StatusApproved, "alice")
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatus_NotFound(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`update_status`).
		WithArgs("approved", "alice", pgxmock.AnyArg(), "missing", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM enrichments WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	err := s.UpdateStatus(context.Background(), "missing", model.StatusPending, model.StatusApproved, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`get_enrichment`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
