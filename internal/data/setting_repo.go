package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/compudrive/drivebench/internal/data/pgxutil"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

// Well-known settings keys for the JSON configuration documents.
const (
	SettingKeyTestConfig      = "test_configuration"
	SettingKeyBackplaneConfig = "backplane_config"
)

// SettingRepo provides database operations for the key/value settings store.
// The test configuration and backplane layout are stored as JSON documents
// under well-known keys.
type SettingRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSettingRepo creates a new SettingRepo with real time provider.
func NewSettingRepo(db *sql.DB) *SettingRepo {
	return &SettingRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewSettingRepoWithTimeProvider creates a new SettingRepo with a custom time provider (useful for tests).
func NewSettingRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *SettingRepo {
	return &SettingRepo{DB: db, timeProvider: tp}
}

// Get returns the value for key, or ErrSettingNotFound.
func (r *SettingRepo) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", apperrors.Validation("settings key is required")
	}

	var value string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", apperrors.MapDBError(fmt.Errorf("get setting %s: %w", key, err))
	}
	return value, nil
}

// Set stores the value for key, overwriting any existing value.
func (r *SettingRepo) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return apperrors.Validation("settings key is required")
	}

	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO settings (key, value, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`, key, value, now)
		return execErr
	})
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("set setting %s: %w", key, err))
	}
	return nil
}

// All returns every stored setting.
func (r *SettingRepo) All(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, `SELECT key, value FROM settings ORDER BY key`)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		for rows.Next() {
			var k, v string
			if scanErr := rows.Scan(&k, &v); scanErr != nil {
				return scanErr
			}
			out[k] = v
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list settings: %w", err))
	}
	return out, nil
}

// GetTestConfig returns the stored test configuration, or the built-in
// default plan when the operator has not saved one yet.
func (r *SettingRepo) GetTestConfig(ctx context.Context) (*model.TestConfiguration, error) {
	raw, err := r.Get(ctx, SettingKeyTestConfig)
	if errors.Is(err, ErrSettingNotFound) {
		cfg := DefaultTestConfiguration()
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg model.TestConfiguration
	if unmarshalErr := json.Unmarshal([]byte(raw), &cfg); unmarshalErr != nil {
		return nil, apperrors.Wrap(unmarshalErr, apperrors.ErrCodeInternal, "stored test configuration is corrupt")
	}
	return &cfg, nil
}

// SaveTestConfig validates and stores the test configuration.
func (r *SettingRepo) SaveTestConfig(ctx context.Context, cfg model.TestConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid test configuration")
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal test configuration")
	}
	return r.Set(ctx, SettingKeyTestConfig, string(raw))
}

// GetBackplaneConfig returns the stored backplane layout, or nil when the
// operator has not configured one. Callers fall back to positional bay
// mapping in that case.
func (r *SettingRepo) GetBackplaneConfig(ctx context.Context) (*model.BackplaneConfig, error) {
	raw, err := r.Get(ctx, SettingKeyBackplaneConfig)
	if errors.Is(err, ErrSettingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg model.BackplaneConfig
	if unmarshalErr := json.Unmarshal([]byte(raw), &cfg); unmarshalErr != nil {
		return nil, apperrors.Wrap(unmarshalErr, apperrors.ErrCodeInternal, "stored backplane configuration is corrupt")
	}
	return &cfg, nil
}

// SaveBackplaneConfig validates and stores the backplane layout.
func (r *SettingRepo) SaveBackplaneConfig(ctx context.Context, cfg model.BackplaneConfig) error {
	if err := cfg.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid backplane configuration")
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal backplane configuration")
	}
	return r.Set(ctx, SettingKeyBackplaneConfig, string(raw))
}

// DefaultTestConfiguration is the plan used until an operator saves one:
// the quick non-destructive checks only.
func DefaultTestConfiguration() model.TestConfiguration {
	return model.TestConfiguration{
		Name: "default",
		EnabledTests: []model.TestType{
			model.TestTypeSmartFull,
			model.TestTypeSmartShort,
			model.TestTypeHealthCheck,
		},
		IsDefault: true,
	}
}
