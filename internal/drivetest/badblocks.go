package drivetest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/tools"
)

// badblocks stops after this many errors; a drive that bad is condemned
// without scanning the rest of the surface.
const badblocksErrorLimit = 10

// Badblocks runs a full-surface scan. Read mode is non-destructive; write
// mode overwrites every block with test patterns and destroys all data.
type Badblocks struct {
	Runner tools.Runner
	Write  bool
}

var _ core.TestHandler = (*Badblocks)(nil)

// NewBadblocks constructs the handler.
func NewBadblocks(runner tools.Runner, write bool) *Badblocks {
	return &Badblocks{Runner: runner, Write: write}
}

// "Testing with random pattern: 12.34% done, 0:05 elapsed"
var badblocksProgress = regexp.MustCompile(`(\d+\.\d+)% done`)

// "Pass completed, 3 bad blocks found. (1/1/1 errors)"
var badblocksSummary = regexp.MustCompile(`(\d+) bad blocks found`)

// badblocks prints each discovered block number on its own stdout line.
var blockNumber = regexp.MustCompile(`^\d+$`)

// Execute implements core.TestHandler.
func (h *Badblocks) Execute(
	ctx context.Context,
	device model.DeviceIdentity,
	_ model.TestParameters,
	sink core.ProgressSink,
) (model.Result, error) {
	mode := "read"
	args := []string{"-v", "-s", "-e", strconv.Itoa(badblocksErrorLimit)}
	base, span := 5.0, 0.90
	if h.Write {
		mode = "write"
		args = append(args, "-w")
		base, span = 10.0, 0.85
		sink.Report(5, "Write scan will destroy all data on the device")
	}
	args = append(args, device.Path)

	sink.Report(base, fmt.Sprintf("Starting badblocks %s scan", mode))

	var badBlocks []string
	reported := 0
	res, err := h.Runner.Stream(ctx, tools.Command{Name: "badblocks", Args: args}, func(line string) {
		switch {
		case badblocksProgress.MatchString(line):
			m := badblocksProgress.FindStringSubmatch(line)
			if pct, perr := strconv.ParseFloat(m[1], 64); perr == nil {
				sink.Report(base+pct*span, fmt.Sprintf("Badblocks %s scan: %.1f%%", mode, pct))
			}
		case blockNumber.MatchString(line):
			badBlocks = append(badBlocks, line)
		case badblocksSummary.MatchString(line):
			m := badblocksSummary.FindStringSubmatch(line)
			if n, perr := strconv.Atoi(m[1]); perr == nil {
				reported = n
			}
		}
	})
	if err != nil {
		return model.Result{}, apperrors.Wrap(err, apperrors.ErrCodeToolFailure, "badblocks failed")
	}

	if found := max(len(badBlocks), reported); found > 0 {
		return model.Result{}, apperrors.ToolFailuref("badblocks %s scan found %d bad blocks", mode, found)
	}
	if res.ExitCode != 0 {
		return model.Result{}, apperrors.ToolFailuref("badblocks exited with status %d: %s",
			res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	sink.Report(100, fmt.Sprintf("Badblocks %s scan completed, no errors found", mode))
	return model.Result{
		Summary: fmt.Sprintf("badblocks %s scan clean", mode),
		Details: map[string]any{"bad_blocks": []string{}, "mode": mode},
	}, nil
}
