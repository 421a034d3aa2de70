// Package model defines the core data types for the drivebench test engine:
// device identities, test types, job records and progress events.
package model

import (
	"fmt"
	"strings"
	"time"
)

// TestType identifies one kind of drive test. The set is closed; adding a
// test type means registering a new handler, never branching on strings in
// the executor.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type TestType string

// TestState represents the lifecycle state of one test job.
type TestState string

const (
	// TestTypeSmartFull reads and evaluates the full SMART attribute table.
	TestTypeSmartFull TestType = "smart_full"
	// TestTypeSmartShort runs the drive's short self-test (~2 minutes).
	TestTypeSmartShort TestType = "smart_short"
	// TestTypeSmartExtended runs the drive's extended self-test (1-2 hours).
	TestTypeSmartExtended TestType = "smart_extended"
	// TestTypeSmartConveyance runs the conveyance self-test (shipping damage).
	TestTypeSmartConveyance TestType = "smart_conveyance"
	// TestTypeBadblocksRead runs a read-only surface scan.
	TestTypeBadblocksRead TestType = "badblocks_read"
	// TestTypeBadblocksWrite runs a destructive write surface scan.
	TestTypeBadblocksWrite TestType = "badblocks_write"
	// TestTypePerformanceSequential measures sequential read/write throughput.
	TestTypePerformanceSequential TestType = "performance_sequential"
	// TestTypePerformanceRandom measures random I/O performance via fio.
	TestTypePerformanceRandom TestType = "performance_random"
	// TestTypeFormat re-creates the filesystem with a chosen block size.
	TestTypeFormat TestType = "format"
	// TestTypeHealthCheck runs the composite smartctl health check.
	TestTypeHealthCheck TestType = "health_check"
	// TestTypeHDSentinelHealth runs the HDSentinel binary health check.
	TestTypeHDSentinelHealth TestType = "hdsentinel_health"

	// TestStatePending indicates the job was accepted but its worker has not
	// started executing yet.
	TestStatePending TestState = "pending"
	// TestStateRunning indicates the worker is executing.
	TestStateRunning TestState = "running"
	// TestStateCompleted indicates the test finished successfully.
	TestStateCompleted TestState = "completed"
	// TestStateFailed indicates the test failed or its worker crashed.
	TestStateFailed TestState = "failed"
	// TestStateCancelled indicates the job was stopped by a caller.
	TestStateCancelled TestState = "cancelled"
)

// AllTestTypes returns every registered test type identifier.
func AllTestTypes() []TestType {
	return []TestType{
		TestTypeSmartFull,
		TestTypeSmartShort,
		TestTypeSmartExtended,
		TestTypeSmartConveyance,
		TestTypeBadblocksRead,
		TestTypeBadblocksWrite,
		TestTypePerformanceSequential,
		TestTypePerformanceRandom,
		TestTypeFormat,
		TestTypeHealthCheck,
		TestTypeHDSentinelHealth,
	}
}

// Valid returns true if the TestType is one of the closed set.
func (t TestType) Valid() bool {
	for _, known := range AllTestTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler for TestType to allow
// env and JSON parsing.
func (t *TestType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	tt := TestType(v)
	if tt.Valid() {
		*t = tt
		return nil
	}
	return fmt.Errorf("invalid TestType: %q", v)
}

// Destructive reports whether this test type writes to the device.
func (t TestType) Destructive() bool {
	return t == TestTypeBadblocksWrite || t == TestTypeFormat
}

// Valid returns true if the TestState is valid.
func (s TestState) Valid() bool {
	switch s {
	case TestStatePending, TestStateRunning, TestStateCompleted, TestStateFailed, TestStateCancelled:
		return true
	}
	return false
}

// Terminal reports whether the state frees the device slot. A device with a
// job in a terminal state accepts a new start immediately.
func (s TestState) Terminal() bool {
	return s == TestStateCompleted || s == TestStateFailed || s == TestStateCancelled
}

// Result is the success payload of a finished test.
type Result struct {
	// Summary is a one-line human-readable outcome, e.g. "SMART health PASSED".
	Summary string `json:"summary"`
	// Details carries tool-specific data: parsed SMART attributes, measured
	// speeds, bad-block lists.
	Details map[string]any `json:"details,omitempty"`
	// Warnings are non-fatal findings (high temperature, low health percent).
	Warnings []string `json:"warnings,omitempty"`
}

// FailureDetail describes why a test reached the Failed state.
type FailureDetail struct {
	// Reason is the error code string, e.g. "tool_failure" or "worker_crashed".
	Reason string `json:"reason"`
	// Detail is the tool diagnostic or crash message.
	Detail string `json:"detail,omitempty"`
}

// ProgressEvent is an immutable message sent from a worker to the
// supervising executor. Events for one device arrive FIFO with
// non-decreasing ProgressPercent; there is no cross-device ordering.
type ProgressEvent struct {
	ProgressPercent float64   `json:"progress_percent"`
	CurrentStep     string    `json:"current_step"`
	Timestamp       time.Time `json:"timestamp"`
}

// JobRecord is the state of one in-flight or completed test for one device.
// The executor is the sole writer; callers only ever see snapshot copies.
type JobRecord struct {
	ID              string         `json:"id"`
	Device          DeviceIdentity `json:"device"`
	TestType        TestType       `json:"test_type"`
	Parameters      TestParameters `json:"parameters,omitempty"`
	State           TestState      `json:"state"`
	ProgressPercent float64        `json:"progress_percent"`
	CurrentStep     string         `json:"current_step,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	Result          *Result        `json:"result,omitempty"`
	Failure         *FailureDetail `json:"failure,omitempty"`
}

// Snapshot returns a copy safe to hand outside the executor. Parameter maps
// and result payloads are not deep-copied; they are treated as immutable
// once the record reaches the caller.
func (j *JobRecord) Snapshot() JobRecord {
	return *j
}
