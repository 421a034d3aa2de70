package drivetest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/tools"
)

// SelfTestVariant selects which drive-internal self-test to run.
type SelfTestVariant string

const (
	SelfTestShort      SelfTestVariant = "short"
	SelfTestExtended   SelfTestVariant = "long"
	SelfTestConveyance SelfTestVariant = "conveyance"
)

// SelfTest starts a drive-internal self-test with smartctl -t and polls the
// self-test log until it reports completion, failure or the deadline
// expires. The drive does the actual work; polling is cheap.
type SelfTest struct {
	Runner       tools.Runner
	Variant      SelfTestVariant
	PollInterval time.Duration
	Deadline     time.Duration

	startPercent float64
	capPercent   float64
	label        string
}

var _ core.TestHandler = (*SelfTest)(nil)

// NewSelfTest constructs a self-test handler with the variant's
// conventional deadline and poll cadence.
func NewSelfTest(runner tools.Runner, variant SelfTestVariant) *SelfTest {
	h := &SelfTest{Runner: runner, Variant: variant}
	switch variant {
	case SelfTestExtended:
		h.PollInterval = 30 * time.Second
		h.Deadline = 150 * time.Minute
		h.startPercent = 10
		h.capPercent = 95
		h.label = "extended"
	case SelfTestConveyance:
		h.PollInterval = 15 * time.Second
		h.Deadline = 10 * time.Minute
		h.startPercent = 10
		h.capPercent = 90
		h.label = "conveyance"
	default:
		h.Variant = SelfTestShort
		h.PollInterval = 10 * time.Second
		h.Deadline = 5 * time.Minute
		h.startPercent = 20
		h.capPercent = 90
		h.label = "short"
	}
	return h
}

// Execute implements core.TestHandler.
func (h *SelfTest) Execute(
	ctx context.Context,
	device model.DeviceIdentity,
	_ model.TestParameters,
	sink core.ProgressSink,
) (model.Result, error) {
	sink.Report(5, fmt.Sprintf("Starting SMART %s self-test", h.label))
	res, err := h.Runner.Output(ctx, tools.Command{
		Name:    "smartctl",
		Args:    []string{"-t", string(h.Variant), device.Path},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return model.Result{}, apperrors.Wrap(err, apperrors.ErrCodeToolFailure,
			fmt.Sprintf("failed to start SMART %s self-test", h.label))
	}
	if res.ExitCode != 0 {
		return model.Result{}, apperrors.ToolFailuref("failed to start SMART %s self-test: %s",
			h.label, strings.TrimSpace(res.Stderr))
	}

	sink.Report(h.startPercent, fmt.Sprintf("Running SMART %s self-test", h.label))

	started := time.Now()
	for {
		if time.Since(started) >= h.Deadline {
			return model.Result{}, apperrors.Timeout(
				fmt.Sprintf("SMART %s self-test did not finish within %s", h.label, h.Deadline))
		}
		if err := sleepCtx(ctx, h.PollInterval); err != nil {
			return model.Result{}, err
		}

		status, err := h.Runner.Output(ctx, tools.Command{
			Name:    "smartctl",
			Args:    []string{"-l", "selftest", device.Path},
			Timeout: 10 * time.Second,
		})
		if err != nil {
			return model.Result{}, apperrors.Wrap(err, apperrors.ErrCodeToolFailure, "self-test status poll failed")
		}
		// Transient poll failures are retried until the deadline.
		if status.ExitCode != 0 {
			continue
		}

		out := strings.ToLower(status.Stdout)
		switch {
		case strings.Contains(out, "completed without error"):
			sink.Report(100, fmt.Sprintf("SMART %s self-test completed", h.label))
			return model.Result{
				Summary: fmt.Sprintf("SMART %s self-test PASSED", h.label),
				Details: map[string]any{"test_result": "PASSED"},
			}, nil
		case strings.Contains(out, "self-test in progress"):
			elapsed := time.Since(started)
			pct := h.startPercent + (h.capPercent-h.startPercent)*float64(elapsed)/float64(h.Deadline)
			if pct > h.capPercent {
				pct = h.capPercent
			}
			sink.Report(pct, fmt.Sprintf("SMART %s self-test in progress (%s elapsed)",
				h.label, elapsed.Round(time.Second)))
		case strings.Contains(out, "failed") || strings.Contains(out, "read failure") ||
			strings.Contains(out, "completed: "):
			return model.Result{}, apperrors.ToolFailuref("SMART %s self-test reported failure", h.label)
		}
	}
}

// sleepCtx waits d or until the context ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
