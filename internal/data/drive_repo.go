// Package data implements the Postgres persistence layer: drive inventory,
// terminal test results, bench sessions and the settings store. The test
// engine itself never touches this package; bootstrap wires repositories
// into the scanner, the recorder and the HTTP layer.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/compudrive/drivebench/internal/data/pgxutil"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

const driveColumns = `serial, device_path, device_name, model, capacity,
	connection_type, sata_version, stable_path,
	scsi_host, scsi_channel, scsi_target, scsi_lun, bay_number`

// DriveRepo provides database operations for the drive inventory. Drives are
// keyed by serial number; device paths are refreshed on every upsert because
// the kernel may re-letter devices between scans.
type DriveRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewDriveRepo creates a new DriveRepo with real time provider.
func NewDriveRepo(db *sql.DB) *DriveRepo {
	return &DriveRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewDriveRepoWithTimeProvider creates a new DriveRepo with a custom time provider (useful for tests).
func NewDriveRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *DriveRepo {
	return &DriveRepo{DB: db, timeProvider: tp}
}

// Upsert inserts the drive or refreshes an existing row with the same serial.
func (r *DriveRepo) Upsert(ctx context.Context, drive model.Drive) error {
	if drive.Serial == "" {
		return apperrors.Validation("drive serial is required")
	}
	if err := drive.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid drive")
	}

	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO drives (
				serial, device_path, device_name, model, capacity,
				connection_type, sata_version, stable_path,
				scsi_host, scsi_channel, scsi_target, scsi_lun, bay_number,
				first_seen, last_seen
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
			ON CONFLICT (serial) DO UPDATE SET
				device_path     = EXCLUDED.device_path,
				device_name     = EXCLUDED.device_name,
				model           = EXCLUDED.model,
				capacity        = EXCLUDED.capacity,
				connection_type = EXCLUDED.connection_type,
				sata_version    = EXCLUDED.sata_version,
				stable_path     = EXCLUDED.stable_path,
				scsi_host       = EXCLUDED.scsi_host,
				scsi_channel    = EXCLUDED.scsi_channel,
				scsi_target     = EXCLUDED.scsi_target,
				scsi_lun        = EXCLUDED.scsi_lun,
				bay_number      = EXCLUDED.bay_number,
				last_seen       = EXCLUDED.last_seen
		`,
			drive.Serial,
			drive.Path,
			drive.Name,
			drive.Model,
			drive.Capacity,
			drive.ConnectionType,
			drive.SATAVersion,
			drive.StablePath,
			drive.SCSIHost,
			drive.SCSIChannel,
			drive.SCSITarget,
			drive.SCSILun,
			drive.BayNumber,
			now,
		)
		return execErr
	})
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("upsert drive %s: %w", drive.Serial, err))
	}
	return nil
}

// GetBySerial retrieves a drive by serial number.
func (r *DriveRepo) GetBySerial(ctx context.Context, serial string) (*model.Drive, error) {
	return r.getByQuery(ctx,
		`SELECT `+driveColumns+` FROM drives WHERE serial = $1`,
		serial,
	)
}

// GetByBay retrieves the drive currently mapped to the given bay.
func (r *DriveRepo) GetByBay(ctx context.Context, bay int) (*model.Drive, error) {
	return r.getByQuery(ctx,
		`SELECT `+driveColumns+` FROM drives WHERE bay_number = $1 ORDER BY last_seen DESC LIMIT 1`,
		bay,
	)
}

// List retrieves the full drive inventory ordered by bay, unmapped drives last.
func (r *DriveRepo) List(ctx context.Context) ([]model.Drive, error) {
	var out []model.Drive
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, `
			SELECT `+driveColumns+`
			FROM drives
			ORDER BY CASE WHEN bay_number > 0 THEN 0 ELSE 1 END, bay_number, serial
		`)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectRows(rows, pgx.RowToStructByName[model.Drive])
		if collectErr != nil {
			return collectErr
		}
		out = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list drives: %w", err))
	}
	return out, nil
}

func (r *DriveRepo) getByQuery(ctx context.Context, query string, arg any) (*model.Drive, error) {
	var out model.Drive
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, arg)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Drive])
		if collectErr != nil {
			return collectErr
		}
		out = collected
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDriveNotFound
		}
		return nil, apperrors.MapDBError(fmt.Errorf("get drive: %w", err))
	}
	return &out, nil
}
