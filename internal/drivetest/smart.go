package drivetest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/tools"
)

// Temperature above which a warning is attached to SMART results.
const tempWarnCelsius = 60

// SmartFull reads the full SMART attribute table and evaluates the critical
// attributes. Any reallocated, pending or uncorrectable sector fails the
// drive outright; temperature only warns.
type SmartFull struct {
	Runner  tools.Runner
	Timeout time.Duration
}

var _ core.TestHandler = (*SmartFull)(nil)

// NewSmartFull constructs the handler with a 60s tool timeout.
func NewSmartFull(runner tools.Runner) *SmartFull {
	return &SmartFull{Runner: runner, Timeout: 60 * time.Second}
}

// Execute implements core.TestHandler.
func (h *SmartFull) Execute(
	ctx context.Context,
	device model.DeviceIdentity,
	_ model.TestParameters,
	sink core.ProgressSink,
) (model.Result, error) {
	sink.Report(10, "Reading SMART attributes")
	res, err := h.Runner.Output(ctx, tools.Command{
		Name:    "smartctl",
		Args:    []string{"-a", device.Path},
		Timeout: h.Timeout,
	})
	if err != nil {
		return model.Result{}, apperrors.Wrap(err, apperrors.ErrCodeToolFailure, "smartctl -a failed")
	}
	// smartctl sets informational exit bits; only command-line and device
	// open errors (bits 0 and 1) mean the read itself failed.
	if res.ExitCode&0x03 != 0 {
		return model.Result{}, apperrors.ToolFailuref("smartctl -a exited with status %d: %s",
			res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	sink.Report(30, "Parsing SMART attributes")
	attrs := ParseSmartAttributes(res.Stdout)

	sink.Report(50, "Checking critical attributes")
	var failures, warnings []string

	if a, ok := attrs["Reallocated_Sector_Ct"]; ok && a.RawValue > 0 {
		failures = append(failures, fmt.Sprintf("reallocated sectors detected: %d", a.RawValue))
	}
	if a, ok := attrs["Current_Pending_Sector"]; ok && a.RawValue > 0 {
		failures = append(failures, fmt.Sprintf("pending sectors: %d", a.RawValue))
	}
	if a, ok := attrs["Offline_Uncorrectable"]; ok && a.RawValue > 0 {
		failures = append(failures, fmt.Sprintf("offline uncorrectable sectors: %d", a.RawValue))
	}
	if a, ok := attrs["Temperature_Celsius"]; ok && a.RawValue > tempWarnCelsius {
		warnings = append(warnings, fmt.Sprintf("high temperature: %d C", a.RawValue))
	}

	details := map[string]any{
		"smart_attributes": attrs,
	}
	if a, ok := attrs["Power_On_Hours"]; ok {
		details["power_on_hours"] = a.RawValue
	}
	if a, ok := attrs["Power_Cycle_Count"]; ok {
		details["power_cycle_count"] = a.RawValue
	}

	sink.Report(80, "Evaluating health status")
	if health, ok := ParseOverallHealth(res.Stdout); ok {
		details["health_status"] = health
		if health != "PASSED" && health != "OK" {
			failures = append(failures, fmt.Sprintf("SMART overall health: %s", health))
		}
	}

	if len(failures) > 0 {
		details["failures"] = failures
		return model.Result{}, apperrors.ToolFailure("SMART evaluation failed: " + strings.Join(failures, "; "))
	}

	sink.Report(100, "SMART test passed")
	return model.Result{
		Summary:  "SMART health PASSED",
		Details:  details,
		Warnings: warnings,
	}, nil
}

// SmartAttribute is one parsed row of the SMART attribute table.
type SmartAttribute struct {
	ID        int    `json:"id"`
	Value     int    `json:"value"`
	Worst     int    `json:"worst"`
	Threshold int    `json:"threshold"`
	RawValue  int64  `json:"raw_value"`
	WhenFail  string `json:"when_failed,omitempty"`
}

// Attribute table row, e.g.
// "  5 Reallocated_Sector_Ct   0x0033   200   200   140    Pre-fail  Always       -       0"
var attrLine = regexp.MustCompile(
	`^\s*(\d+)\s+(\S+)\s+0x[0-9a-fA-F]+\s+(\d+)\s+(\d+)\s+(\d+)\s+\S+\s+\S+\s+(\S+)\s+(\d+)`)

var healthLine = regexp.MustCompile(
	`SMART overall-health self-assessment test result: (\w+)`)

// ParseSmartAttributes extracts the attribute table from smartctl -a output.
func ParseSmartAttributes(output string) map[string]SmartAttribute {
	attrs := make(map[string]SmartAttribute)
	inTable := false
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "ID#") && strings.Contains(line, "ATTRIBUTE_NAME") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		if strings.TrimSpace(line) == "" {
			break
		}

		m := attrLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, _ := strconv.Atoi(m[1])
		value, _ := strconv.Atoi(m[3])
		worst, _ := strconv.Atoi(m[4])
		threshold, _ := strconv.Atoi(m[5])
		raw, _ := strconv.ParseInt(m[7], 10, 64)
		whenFail := m[6]
		if whenFail == "-" {
			whenFail = ""
		}
		attrs[m[2]] = SmartAttribute{
			ID:        id,
			Value:     value,
			Worst:     worst,
			Threshold: threshold,
			RawValue:  raw,
			WhenFail:  whenFail,
		}
	}
	return attrs
}

// ParseOverallHealth extracts the overall-health verdict from smartctl
// output.
func ParseOverallHealth(output string) (string, bool) {
	m := healthLine.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}
