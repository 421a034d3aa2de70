package drivetest

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/tools"
)

// HealthCheck is the composite quick health probe: overall SMART verdict,
// temperature, power-on hours and connection type in one pass. Individual
// probe failures degrade the report instead of failing the test; only a
// negative SMART verdict fails it.
type HealthCheck struct {
	Runner  tools.Runner
	Timeout time.Duration
}

var _ core.TestHandler = (*HealthCheck)(nil)

// NewHealthCheck constructs the handler with a 30s per-probe timeout.
func NewHealthCheck(runner tools.Runner) *HealthCheck {
	return &HealthCheck{Runner: runner, Timeout: 30 * time.Second}
}

var (
	tempAttr = regexp.MustCompile(`Temperature[_a-zA-Z]*\s.*?(\d+)\s*$`)
	pohAttr  = regexp.MustCompile(`Power_On_Hours.*?(\d+)\s*$`)
)

// Execute implements core.TestHandler.
func (h *HealthCheck) Execute(
	ctx context.Context,
	device model.DeviceIdentity,
	_ model.TestParameters,
	sink core.ProgressSink,
) (model.Result, error) {
	details := map[string]any{}
	var warnings []string

	sink.Report(20, "Checking SMART health")
	healthRes, err := h.Runner.Output(ctx, tools.Command{
		Name:    "smartctl",
		Args:    []string{"-H", device.Path},
		Timeout: h.Timeout,
	})
	if err != nil {
		return model.Result{}, apperrors.Wrap(err, apperrors.ErrCodeToolFailure, "smartctl -H failed")
	}
	verdict, hasVerdict := ParseOverallHealth(healthRes.Stdout)
	if hasVerdict {
		details["smart_health"] = verdict
	} else {
		warnings = append(warnings, "SMART verdict unavailable")
	}

	sink.Report(40, "Reading SMART attributes")
	attrRes, err := h.Runner.Output(ctx, tools.Command{
		Name:    "smartctl",
		Args:    []string{"-A", device.Path},
		Timeout: h.Timeout,
	})
	if err == nil && attrRes.ExitCode&0x03 == 0 {
		for _, line := range strings.Split(attrRes.Stdout, "\n") {
			if m := tempAttr.FindStringSubmatch(line); m != nil {
				if v, perr := strconv.Atoi(m[1]); perr == nil {
					details["temperature"] = v
					if v > tempWarnCelsius {
						warnings = append(warnings, "high temperature")
					}
				}
			}
			if m := pohAttr.FindStringSubmatch(line); m != nil {
				if v, perr := strconv.Atoi(m[1]); perr == nil {
					details["power_on_hours"] = v
				}
			}
		}
	}

	sink.Report(80, "Checking connection type")
	infoRes, err := h.Runner.Output(ctx, tools.Command{
		Name:    "smartctl",
		Args:    []string{"-i", device.Path},
		Timeout: h.Timeout,
	})
	if err == nil && infoRes.ExitCode&0x03 == 0 {
		switch {
		case strings.Contains(infoRes.Stdout, "SATA"):
			details["connection_type"] = "SATA"
		case strings.Contains(infoRes.Stdout, "SAS"):
			details["connection_type"] = "SAS"
		case strings.Contains(infoRes.Stdout, "NVMe"):
			details["connection_type"] = "NVMe"
		}
	}

	if hasVerdict && verdict != "PASSED" && verdict != "OK" {
		return model.Result{}, apperrors.ToolFailuref("SMART overall health: %s", verdict)
	}

	sink.Report(100, "Health check completed")
	return model.Result{
		Summary:  "health check completed",
		Details:  details,
		Warnings: warnings,
	}, nil
}
