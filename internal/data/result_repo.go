package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/data/pgxutil"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

const defaultResultListLimit = 50

const testResultColumns = `id, job_id, serial, device, test_type, state,
	result, started_at, ended_at, created_at`

// TestResultRepo provides database operations for terminal test outcomes.
// Rows are append-only history; the reaper prunes them by age.
type TestResultRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewTestResultRepo creates a new TestResultRepo with real time provider.
func NewTestResultRepo(db *sql.DB) *TestResultRepo {
	return &TestResultRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewTestResultRepoWithTimeProvider creates a new TestResultRepo with a custom time provider (useful for tests).
func NewTestResultRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *TestResultRepo {
	return &TestResultRepo{DB: db, timeProvider: tp}
}

// Insert persists one terminal test outcome.
func (r *TestResultRepo) Insert(ctx context.Context, params core.InsertTestResultParams) error {
	if params.JobID == "" {
		return apperrors.Validation("job id is required")
	}
	if err := params.Device.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid device")
	}
	if !params.State.Terminal() {
		return apperrors.Validationf("state %q is not terminal", params.State)
	}

	var payload any
	if len(params.Result) > 0 {
		payload = string(params.Result)
	}

	endedAt := params.EndedAt
	if endedAt.IsZero() {
		endedAt = r.timeProvider.Now()
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO test_results (
				job_id, serial, device, test_type, state, result, started_at, ended_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9)
		`,
			params.JobID,
			params.Device.Serial,
			params.Device.Path,
			params.TestType,
			params.State,
			payload,
			params.StartedAt.UTC(),
			endedAt.UTC(),
			r.timeProvider.Now().UTC(),
		)
		return execErr
	})
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("insert test result %s: %w", params.JobID, err))
	}
	return nil
}

// ListBySerial returns the most recent outcomes for one drive, newest first.
func (r *TestResultRepo) ListBySerial(ctx context.Context, serial string, limit int) ([]model.TestResultRow, error) {
	if serial == "" {
		return nil, apperrors.Validation("serial is required")
	}
	if limit <= 0 {
		limit = defaultResultListLimit
	}

	var out []model.TestResultRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, `
			SELECT `+testResultColumns+`
			FROM test_results
			WHERE serial = $1
			ORDER BY ended_at DESC, id DESC
			LIMIT $2
		`, serial, limit)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectRows(rows, pgx.RowToStructByName[model.TestResultRow])
		if collectErr != nil {
			return collectErr
		}
		out = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list test results for %s: %w", serial, err))
	}
	return out, nil
}

// DeleteOlderThan removes at most batchSize results that ended before the
// cutoff and reports how many rows were deleted. Callers loop until zero.
func (r *TestResultRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var deleted int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx, `
			DELETE FROM test_results
			WHERE id IN (
				SELECT id FROM test_results
				WHERE ended_at < $1
				ORDER BY ended_at
				LIMIT $2
			)
		`, cutoff.UTC(), batchSize)
		if execErr != nil {
			return execErr
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("delete old test results: %w", err))
	}
	return deleted, nil
}
