// Package core defines the contracts between the drivebench layers: the
// test-handler capability surface, the safety gate, the collaborator
// repositories and the outbound notification sink.
package core

import (
	"context"
	"time"

	"github.com/compudrive/drivebench/internal/domain/model"
)

// This file contains the port definitions (hexagonal-architecture style).
// The executor, HTTP layer and adapters depend on these interfaces, never on
// concrete implementations.

// ProgressSink receives progress updates from a running test handler. Each
// worker gets its own sink bound to its job's progress channel; handlers
// must never share sinks across devices.
type ProgressSink interface {
	// Report publishes a progress update. Percent values are clamped to
	// [0,100] and forced monotonically non-decreasing by the sink.
	Report(percent float64, step string)
}

// TestHandler runs one test type against one device. Implementations do
// their blocking work in child OS processes and must honor ctx cancellation
// promptly; the executor escalates to forceful child termination after the
// configured grace period.
type TestHandler interface {
	Execute(
		ctx context.Context,
		device model.DeviceIdentity,
		params model.TestParameters,
		sink ProgressSink,
	) (model.Result, error)
}

// SafetyGuard decides whether a device hosts the running operating system.
// Implementations are fail-closed: inconclusive signals mean protected.
type SafetyGuard interface {
	IsProtected(ctx context.Context, devicePath string) bool
}

// DeviceEnumerator supplies the currently present drives. The executor uses
// it to resolve serials to device identities; the guard remains
// authoritative regardless of any protected-status hint in the result.
type DeviceEnumerator interface {
	Drives(ctx context.Context) []model.Drive
	DriveBySerial(ctx context.Context, serial string) (model.Drive, bool)
	DriveByPath(ctx context.Context, path string) (model.Drive, bool)
}

// TestStarter is the inbound surface of the test executor consumed by the
// HTTP layer.
type TestStarter interface {
	Start(ctx context.Context, req StartTestRequest) (string, error)
	StartAll(ctx context.Context, devices []model.DeviceIdentity, testType model.TestType, params model.TestParameters) map[string]StartResult
	Stop(device string) bool
	StopAll(devices []string) map[string]bool
	Progress(device string) (model.JobRecord, bool)
	ActiveCount() int
}

// StartTestRequest groups the arguments to Start.
type StartTestRequest struct {
	Device     model.DeviceIdentity
	TestType   model.TestType
	Parameters model.TestParameters
}

// StartResult is one device's outcome from a fan-out start.
type StartResult struct {
	JobID string `json:"job_id,omitempty"`
	Err   error  `json:"-"`
}

// DriveRepository persists detected drives.
type DriveRepository interface {
	Upsert(ctx context.Context, drive model.Drive) error
	GetBySerial(ctx context.Context, serial string) (*model.Drive, error)
	GetByBay(ctx context.Context, bay int) (*model.Drive, error)
	List(ctx context.Context) ([]model.Drive, error)
}

// InsertTestResultParams groups parameters for TestResultRepository.Insert.
type InsertTestResultParams struct {
	JobID     string
	Device    model.DeviceIdentity
	TestType  model.TestType
	State     model.TestState
	Result    []byte
	StartedAt time.Time
	EndedAt   time.Time
}

// TestResultRepository persists terminal test outcomes for history queries.
type TestResultRepository interface {
	Insert(ctx context.Context, params InsertTestResultParams) error
	ListBySerial(ctx context.Context, serial string, limit int) ([]model.TestResultRow, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// SessionRepository persists the active bench session and its PO number.
type SessionRepository interface {
	GetActive(ctx context.Context) (*model.BenchSession, error)
	GetOrCreateActive(ctx context.Context, poNumber string) (*model.BenchSession, error)
	UpdatePONumber(ctx context.Context, poNumber string) (*model.BenchSession, error)
}

// SettingRepository persists key/value settings and the JSON configuration
// documents (enabled tests, backplane layout).
type SettingRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
	GetTestConfig(ctx context.Context) (*model.TestConfiguration, error)
	SaveTestConfig(ctx context.Context, cfg model.TestConfiguration) error
	GetBackplaneConfig(ctx context.Context) (*model.BackplaneConfig, error)
	SaveBackplaneConfig(ctx context.Context, cfg model.BackplaneConfig) error
}
