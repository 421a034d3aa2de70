package drivetest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/tools"
)

// HDSentinel runs the proprietary Hard Disk Sentinel binary when it is
// installed and evaluates its health report. Below 50% health or any
// reallocated sector fails the drive; 50-79% health only warns.
type HDSentinel struct {
	Runner tools.Runner
	// BinaryPath overrides binary discovery; empty searches the usual
	// install locations and PATH.
	BinaryPath string
	Timeout    time.Duration
}

var _ core.TestHandler = (*HDSentinel)(nil)

var hdsentinelLocations = []string{
	"/usr/local/bin/hdsentinel",
	"/usr/bin/hdsentinel",
	"/opt/hdsentinel/hdsentinel",
}

// HDSentinelReport is the parsed health output.
type HDSentinelReport struct {
	HealthPercent      int    `json:"health_percent"`
	Temperature        int    `json:"temperature"`
	PowerOnHours       int    `json:"power_on_hours"`
	ReallocatedSectors int    `json:"reallocated_sectors"`
	Model              string `json:"model,omitempty"`
	Serial             string `json:"serial,omitempty"`
}

// Execute implements core.TestHandler.
func (h *HDSentinel) Execute(
	ctx context.Context,
	device model.DeviceIdentity,
	_ model.TestParameters,
	sink core.ProgressSink,
) (model.Result, error) {
	sink.Report(5, "Locating HDSentinel binary")
	binary, err := h.locate()
	if err != nil {
		return model.Result{}, err
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	sink.Report(20, "Running HDSentinel health check")
	res, err := h.Runner.Output(ctx, tools.Command{
		Name:    binary,
		Args:    []string{"-r", device.Path},
		Timeout: timeout,
	})
	if err != nil {
		return model.Result{}, apperrors.Wrap(err, apperrors.ErrCodeToolFailure, "hdsentinel failed")
	}
	if res.ExitCode != 0 {
		// Older builds reject -r; retry bare.
		res, err = h.Runner.Output(ctx, tools.Command{
			Name:    binary,
			Args:    []string{device.Path},
			Timeout: timeout,
		})
		if err != nil {
			return model.Result{}, apperrors.Wrap(err, apperrors.ErrCodeToolFailure, "hdsentinel failed")
		}
		if res.ExitCode != 0 {
			return model.Result{}, apperrors.ToolFailuref("hdsentinel exited with status %d", res.ExitCode)
		}
	}

	sink.Report(60, "Evaluating HDSentinel report")
	report := ParseHDSentinelOutput(res.Stdout)

	var failures, warnings []string
	switch {
	case report.HealthPercent > 0 && report.HealthPercent < 50:
		failures = append(failures, fmt.Sprintf("critical health: %d%%", report.HealthPercent))
	case report.HealthPercent > 0 && report.HealthPercent < 80:
		warnings = append(warnings, fmt.Sprintf("low health: %d%%", report.HealthPercent))
	}
	if report.ReallocatedSectors > 0 {
		failures = append(failures, fmt.Sprintf("reallocated sectors: %d", report.ReallocatedSectors))
	}
	if report.Temperature > tempWarnCelsius {
		warnings = append(warnings, fmt.Sprintf("high temperature: %d C", report.Temperature))
	}

	if len(failures) > 0 {
		return model.Result{}, apperrors.ToolFailure("HDSentinel health check failed: " + strings.Join(failures, "; "))
	}

	sink.Report(100, "HDSentinel health check completed")
	return model.Result{
		Summary:  fmt.Sprintf("HDSentinel health %d%%", report.HealthPercent),
		Details:  map[string]any{"hdsentinel": report},
		Warnings: warnings,
	}, nil
}

func (h *HDSentinel) locate() (string, error) {
	if h.BinaryPath != "" {
		if _, err := os.Stat(h.BinaryPath); err != nil {
			return "", apperrors.ToolFailuref("hdsentinel binary not found at %s", h.BinaryPath)
		}
		return h.BinaryPath, nil
	}
	for _, loc := range hdsentinelLocations {
		if info, err := os.Stat(loc); err == nil && !info.IsDir() {
			return loc, nil
		}
	}
	if path, err := exec.LookPath("hdsentinel"); err == nil {
		return path, nil
	}
	return "", apperrors.ToolFailure("hdsentinel binary not installed")
}

var (
	hdsHealth  = regexp.MustCompile(`(?i)health.*?(\d+)\s*%`)
	hdsTemp    = regexp.MustCompile(`(?i)temperature.*?(\d+)\s*°?C`)
	hdsPOH     = regexp.MustCompile(`(?i)power.?on.*?(\d+)`)
	hdsRealloc = regexp.MustCompile(`(?i)reallocated.*?(\d+)`)
	hdsModel   = regexp.MustCompile(`(?i)model(?:\s+id)?[:\s]+(.+)`)
	hdsSerial  = regexp.MustCompile(`(?i)serial(?:\s+no)?[:\s]+(.+)`)
)

// ParseHDSentinelOutput extracts the health fields from HDSentinel's text
// report.
func ParseHDSentinelOutput(output string) HDSentinelReport {
	var r HDSentinelReport
	for _, line := range strings.Split(output, "\n") {
		if m := hdsHealth.FindStringSubmatch(line); m != nil && r.HealthPercent == 0 {
			r.HealthPercent, _ = strconv.Atoi(m[1])
		}
		if m := hdsTemp.FindStringSubmatch(line); m != nil && r.Temperature == 0 {
			r.Temperature, _ = strconv.Atoi(m[1])
		}
		if m := hdsPOH.FindStringSubmatch(line); m != nil && r.PowerOnHours == 0 {
			r.PowerOnHours, _ = strconv.Atoi(m[1])
		}
		if m := hdsRealloc.FindStringSubmatch(line); m != nil {
			r.ReallocatedSectors, _ = strconv.Atoi(m[1])
		}
		if m := hdsModel.FindStringSubmatch(line); m != nil && r.Model == "" {
			r.Model = strings.TrimSpace(m[1])
		}
		if m := hdsSerial.FindStringSubmatch(line); m != nil && r.Serial == "" {
			r.Serial = strings.TrimSpace(m[1])
		}
	}
	return r
}
