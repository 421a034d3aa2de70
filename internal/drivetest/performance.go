package drivetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/tools"
)

// SequentialPerf measures sequential throughput with dd: a direct-IO read
// from the device and a direct-IO write to a scratch file. The device itself
// is never written.
type SequentialPerf struct {
	Runner tools.Runner
	// ScratchDir holds the temporary write-test file; defaults to the
	// system temp directory.
	ScratchDir string
}

var _ core.TestHandler = (*SequentialPerf)(nil)

// dd reports e.g. "1073741824 bytes (1.1 GB) copied, 4.8 s, 224 MB/s"
var ddSpeed = regexp.MustCompile(`(\d+\.?\d*)\s*(MB/s|GB/s)`)

// Execute implements core.TestHandler.
func (h *SequentialPerf) Execute(
	ctx context.Context,
	device model.DeviceIdentity,
	_ model.TestParameters,
	sink core.ProgressSink,
) (model.Result, error) {
	sink.Report(10, "Running sequential read test")
	readRes, err := h.Runner.Output(ctx, tools.Command{
		Name: "dd",
		Args: []string{
			"if=" + device.Path, "of=/dev/null",
			"bs=1M", "count=1024", "iflag=direct",
		},
		Timeout: 5 * time.Minute,
	})
	if err != nil {
		return model.Result{}, apperrors.Wrap(err, apperrors.ErrCodeToolFailure, "sequential read test failed")
	}
	if readRes.ExitCode != 0 {
		return model.Result{}, apperrors.ToolFailuref("sequential read test failed: %s",
			strings.TrimSpace(readRes.Stderr))
	}
	readSpeed := parseDDSpeed(readRes.Stderr)

	sink.Report(60, "Running sequential write test")
	dir := h.ScratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	scratch := filepath.Join(dir, fmt.Sprintf("drivebench_perf_%d.tmp", os.Getpid()))
	defer os.Remove(scratch)

	writeSpeed := "N/A"
	writeRes, err := h.Runner.Output(ctx, tools.Command{
		Name: "dd",
		Args: []string{
			"if=/dev/zero", "of=" + scratch,
			"bs=1M", "count=1024", "oflag=direct",
		},
		Timeout: 5 * time.Minute,
	})
	if err == nil && writeRes.ExitCode == 0 {
		writeSpeed = parseDDSpeed(writeRes.Stderr)
	}

	sink.Report(100, "Performance test completed")
	return model.Result{
		Summary: fmt.Sprintf("sequential read %s, write %s", readSpeed, writeSpeed),
		Details: map[string]any{
			"sequential_read_speed":  readSpeed,
			"sequential_write_speed": writeSpeed,
		},
	}, nil
}

func parseDDSpeed(stderr string) string {
	m := ddSpeed.FindStringSubmatch(stderr)
	if m == nil {
		return "N/A"
	}
	return m[1] + " " + m[2]
}

// RandomPerf measures random 4k IOPS with fio against the raw device in
// read-only and write-only phases. A missing fio binary skips the test
// instead of failing it.
type RandomPerf struct {
	Runner tools.Runner
	// Runtime bounds each fio phase; defaults to 60s.
	Runtime time.Duration
}

var _ core.TestHandler = (*RandomPerf)(nil)

// Execute implements core.TestHandler.
func (h *RandomPerf) Execute(
	ctx context.Context,
	device model.DeviceIdentity,
	_ model.TestParameters,
	sink core.ProgressSink,
) (model.Result, error) {
	runtime := h.Runtime
	if runtime <= 0 {
		runtime = time.Minute
	}

	sink.Report(10, "Running random I/O performance test")

	jobFile := fmt.Sprintf(`[global]
filename=%s
direct=1
runtime=%d
time_based=1

[random-read]
rw=randread
bs=4k
iodepth=16

[random-write]
rw=randwrite
bs=4k
iodepth=16
`, device.Path, int(runtime.Seconds()))

	res, err := h.Runner.Output(ctx, tools.Command{
		Name:    "fio",
		Args:    []string{"--output-format=json", "-"},
		Stdin:   jobFile,
		Timeout: 2*runtime + time.Minute,
	})
	if errors.Is(err, tools.ErrToolNotFound) {
		sink.Report(100, "fio not available, skipping random I/O test")
		return model.Result{
			Summary:  "random I/O test skipped",
			Details:  map[string]any{"random_io_test": "SKIPPED (fio not installed)"},
			Warnings: []string{"fio not installed"},
		}, nil
	}
	if err != nil {
		return model.Result{}, apperrors.Wrap(err, apperrors.ErrCodeToolFailure, "fio failed")
	}
	if res.ExitCode != 0 {
		return model.Result{}, apperrors.ToolFailuref("fio exited with status %d: %s",
			res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	details := map[string]any{}
	var parsed map[string]any
	if jerr := json.Unmarshal([]byte(res.Stdout), &parsed); jerr == nil {
		details["random_io"] = parsed
	} else {
		details["random_io_raw"] = res.Stdout
	}

	sink.Report(100, "Random I/O test completed")
	return model.Result{
		Summary: "random I/O test completed",
		Details: details,
	}, nil
}
