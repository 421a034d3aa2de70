package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBErrorNil(t *testing.T) {
	assert.NoError(t, MapDBError(nil))
}

func TestMapDBErrorPassesThroughUnknownErrors(t *testing.T) {
	err := errors.New("something unrelated")
	assert.Same(t, err, MapDBError(err))
}

func TestMapDBErrorContext(t *testing.T) {
	mapped := MapDBError(fmt.Errorf("query: %w", context.DeadlineExceeded))
	var appErr *AppError
	require.ErrorAs(t, mapped, &appErr)
	assert.Equal(t, ErrCodeTimeout, appErr.Code)

	mapped = MapDBError(context.Canceled)
	require.ErrorAs(t, mapped, &appErr)
	assert.Equal(t, ErrCodeCanceled, appErr.Code)
}

func TestMapDBErrorNoRows(t *testing.T) {
	mapped := MapDBError(fmt.Errorf("get drive: %w", pgx.ErrNoRows))
	var appErr *AppError
	require.ErrorAs(t, mapped, &appErr)
	assert.Equal(t, ErrCodeNotFound, appErr.Code)
	assert.True(t, IsNotFound(mapped))
}

func TestMapDBErrorPgErrors(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantCode  ErrorCode
		wantField string
	}{
		{
			name: "unique violation with detail",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: "Key (serial)=(WD-1234) already exists.",
			},
			wantCode:  ErrCodeConflict,
			wantField: "serial",
		},
		{
			name: "unique violation with column metadata",
			pgErr: &pgconn.PgError{
				Code:       pgerrcode.UniqueViolation,
				ColumnName: "job_id",
			},
			wantCode:  ErrCodeConflict,
			wantField: "job_id",
		},
		{
			name:     "foreign key violation",
			pgErr:    &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation},
			wantCode: ErrCodeConflict,
		},
		{
			name: "not null violation",
			pgErr: &pgconn.PgError{
				Code:       pgerrcode.NotNullViolation,
				ColumnName: "device",
			},
			wantCode:  ErrCodeValidation,
			wantField: "device",
		},
		{
			name:     "check violation",
			pgErr:    &pgconn.PgError{Code: pgerrcode.CheckViolation},
			wantCode: ErrCodeValidation,
		},
		{
			name:     "anything else is internal",
			pgErr:    &pgconn.PgError{Code: pgerrcode.SerializationFailure},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapDBError(fmt.Errorf("exec: %w", tt.pgErr))
			var appErr *AppError
			require.ErrorAs(t, mapped, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantField, appErr.Field)
			assert.ErrorIs(t, mapped, error(tt.pgErr))
		})
	}
}
