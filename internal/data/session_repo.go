package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/compudrive/drivebench/internal/data/pgxutil"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

const sessionColumns = `id, po_number, active, created_at, updated_at`

// SessionRepo provides database operations for the bench session. A partial
// unique index guarantees at most one active session; closed sessions remain
// as history.
type SessionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSessionRepo creates a new SessionRepo with real time provider.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewSessionRepoWithTimeProvider creates a new SessionRepo with a custom time provider (useful for tests).
func NewSessionRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: tp}
}

// GetActive returns the active session, or ErrSessionNotFound when the bench
// has no session yet.
func (r *SessionRepo) GetActive(ctx context.Context) (*model.BenchSession, error) {
	var out model.BenchSession
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx,
			`SELECT `+sessionColumns+` FROM bench_sessions WHERE active LIMIT 1`)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.BenchSession])
		if collectErr != nil {
			return collectErr
		}
		out = collected
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, apperrors.MapDBError(fmt.Errorf("get active session: %w", err))
	}
	return &out, nil
}

// GetOrCreateActive returns the active session, creating one with the given
// PO number when none exists. An existing session's PO number is never
// overwritten here; use UpdatePONumber for that.
func (r *SessionRepo) GetOrCreateActive(ctx context.Context, poNumber string) (*model.BenchSession, error) {
	poNumber = strings.TrimSpace(poNumber)

	var out model.BenchSession
	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		existing, lockErr := lockActiveSession(ctx, tx)
		if lockErr == nil {
			out = *existing
			return nil
		}
		if !errors.Is(lockErr, pgx.ErrNoRows) {
			return lockErr
		}

		now := r.timeProvider.Now().UTC()
		rows, insertErr := tx.Query(ctx, `
			INSERT INTO bench_sessions (po_number, active, created_at, updated_at)
			VALUES ($1, TRUE, $2, $2)
			RETURNING `+sessionColumns,
			poNumber, now)
		if insertErr != nil {
			return insertErr
		}
		defer rows.Close()
		created, collectErr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.BenchSession])
		if collectErr != nil {
			return collectErr
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get or create session: %w", err))
	}
	return &out, nil
}

// UpdatePONumber sets the PO number on the active session, creating the
// session first when the bench has none.
func (r *SessionRepo) UpdatePONumber(ctx context.Context, poNumber string) (*model.BenchSession, error) {
	poNumber = strings.TrimSpace(poNumber)
	if poNumber == "" {
		return nil, apperrors.Validation("po number is required")
	}

	var out model.BenchSession
	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		now := r.timeProvider.Now().UTC()

		existing, lockErr := lockActiveSession(ctx, tx)
		if lockErr != nil && !errors.Is(lockErr, pgx.ErrNoRows) {
			return lockErr
		}

		var (
			rows     pgx.Rows
			queryErr error
		)
		if lockErr == nil {
			rows, queryErr = tx.Query(ctx, `
				UPDATE bench_sessions
				SET po_number = $1, updated_at = $2
				WHERE id = $3
				RETURNING `+sessionColumns,
				poNumber, now, existing.ID)
		} else {
			rows, queryErr = tx.Query(ctx, `
				INSERT INTO bench_sessions (po_number, active, created_at, updated_at)
				VALUES ($1, TRUE, $2, $2)
				RETURNING `+sessionColumns,
				poNumber, now)
		}
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		updated, collectErr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.BenchSession])
		if collectErr != nil {
			return collectErr
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("update po number: %w", err))
	}
	return &out, nil
}

func lockActiveSession(ctx context.Context, tx pgx.Tx) (*model.BenchSession, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+sessionColumns+` FROM bench_sessions WHERE active LIMIT 1 FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	session, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.BenchSession])
	if err != nil {
		return nil, err
	}
	return &session, nil
}
