package model

import (
	"encoding/json"
	"errors"
	"time"
)

// BenchSession is the active operator session. A session groups every test
// run on the bench under one purchase-order number.
type BenchSession struct {
	ID        int64     `json:"id"                  db:"id"`
	PONumber  string    `json:"po_number,omitempty" db:"po_number"`
	Active    bool      `json:"active"              db:"active"`
	CreatedAt time.Time `json:"created_at"          db:"created_at"`
	UpdatedAt time.Time `json:"updated_at"          db:"updated_at"`
}

// TestResultRow is one persisted terminal test outcome.
type TestResultRow struct {
	ID        int64           `json:"id"         db:"id"`
	JobID     string          `json:"job_id"     db:"job_id"`
	Serial    string          `json:"serial"     db:"serial"`
	Device    string          `json:"device"     db:"device"`
	TestType  TestType        `json:"test_type"  db:"test_type"`
	State     TestState       `json:"state"      db:"state"`
	Result    json.RawMessage `json:"result,omitempty" db:"result"`
	StartedAt time.Time       `json:"started_at" db:"started_at"`
	EndedAt   time.Time       `json:"ended_at"   db:"ended_at"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// TestConfiguration is the operator-chosen default test plan.
type TestConfiguration struct {
	Name         string         `json:"name"`
	EnabledTests []TestType     `json:"enabled_tests"`
	Parameters   TestParameters `json:"parameters,omitempty"`
	IsDefault    bool           `json:"is_default"`
}

// Validate checks the configuration references known test types only.
func (c *TestConfiguration) Validate() error {
	if c.Name == "" {
		return errors.New("configuration name is required")
	}
	if len(c.EnabledTests) == 0 {
		return errors.New("at least one test must be enabled")
	}
	for _, tt := range c.EnabledTests {
		if !tt.Valid() {
			return errors.New("unknown test type " + string(tt))
		}
	}
	return nil
}

// BackplaneConfig maps SCSI addresses to physical bay numbers.
type BackplaneConfig struct {
	TotalBays  int    `json:"total_bays"`
	LayoutType string `json:"layout_type"`
	// SlotMap maps "host:channel:target:lun" SCSI addresses to bay numbers.
	SlotMap map[string]int `json:"slot_map,omitempty"`
}

// Validate checks the backplane configuration is internally consistent.
func (c *BackplaneConfig) Validate() error {
	if c.TotalBays < 1 {
		return errors.New("total_bays must be at least 1")
	}
	for addr, bay := range c.SlotMap {
		if bay < 1 || bay > c.TotalBays {
			return errors.New("slot map bay out of range for " + addr)
		}
	}
	return nil
}

// BayFor resolves a drive's SCSI address to a bay number. Without an
// explicit slot map entry the target id orders bays within a host.
func (c *BackplaneConfig) BayFor(drive Drive) int {
	addr := drive.SCSIAddress()
	if addr == "" {
		return 0
	}
	if bay, ok := c.SlotMap[addr]; ok {
		return bay
	}
	bay := drive.SCSITarget + 1
	if bay < 1 || bay > c.TotalBays {
		return 0
	}
	return bay
}
