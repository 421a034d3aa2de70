package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the REST API and WebSocket event stream. The test
	// executor is always constructed alongside it.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeScanner runs the periodic drive enumeration loop.
	ServiceModeScanner ServiceMode = "scanner"
	// ServiceModeReaper runs the test-result retention loop.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeScanner, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeScanner, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, scanner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ExecutorConfig contains test executor configuration.
type ExecutorConfig struct {
	// MaxConcurrentTests caps how many devices may be under test at once.
	MaxConcurrentTests int `env:"EXECUTOR_MAX_CONCURRENT_TESTS" envDefault:"20"`

	// ProgressBuffer is the per-job progress channel capacity.
	ProgressBuffer int `env:"EXECUTOR_PROGRESS_BUFFER" envDefault:"64"`

	// StopGracePeriod is how long a cancelled test's child process gets
	// between SIGTERM and SIGKILL.
	StopGracePeriod time.Duration `env:"EXECUTOR_STOP_GRACE_PERIOD" envDefault:"5s"`

	// ScratchDir is where the sequential write probe creates its temp file.
	ScratchDir string `env:"EXECUTOR_SCRATCH_DIR" envDefault:"/tmp"`

	// HDSentinelPath overrides HDSentinel binary discovery when set.
	HDSentinelPath string `env:"EXECUTOR_HDSENTINEL_PATH" envDefault:""`
}

// Sanitize applies guardrails to executor configuration values.
func (e *ExecutorConfig) Sanitize() {
	if e.MaxConcurrentTests < 1 {
		e.MaxConcurrentTests = 1
	}
	if e.ProgressBuffer < 1 {
		e.ProgressBuffer = 1
	}
	if e.StopGracePeriod <= 0 {
		e.StopGracePeriod = 5 * time.Second
	}
	if strings.TrimSpace(e.ScratchDir) == "" {
		e.ScratchDir = "/tmp"
	}
}

// ScannerConfig contains drive scanner configuration.
type ScannerConfig struct {
	// Interval is the scan loop interval.
	Interval time.Duration `env:"SCANNER_INTERVAL" envDefault:"5s"`
}

// Sanitize applies guardrails to scanner configuration values.
func (s *ScannerConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
}

// ReaperConfig contains test-result retention configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// ResultsMaxAge is the maximum age for terminal test results before deletion.
	ResultsMaxAge time.Duration `env:"REAPER_RESULTS_MAX_AGE" envDefault:"2160h"` // 90 days

	// BatchSize caps how many rows one delete pass removes.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < time.Minute {
		r.Interval = time.Minute
	}
	if r.ResultsMaxAge < time.Hour {
		r.ResultsMaxAge = time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
}
