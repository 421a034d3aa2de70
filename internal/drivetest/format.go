package drivetest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/tools"
)

// Format re-creates the filesystem on the device with a chosen block size.
// Destructive: everything on the device is lost.
type Format struct {
	Runner  tools.Runner
	Timeout time.Duration
}

var _ core.TestHandler = (*Format)(nil)

// NewFormat constructs the handler with a 10 minute mkfs timeout.
func NewFormat(runner tools.Runner) *Format {
	return &Format{Runner: runner, Timeout: 10 * time.Minute}
}

// Execute implements core.TestHandler.
func (h *Format) Execute(
	ctx context.Context,
	device model.DeviceIdentity,
	params model.TestParameters,
	sink core.ProgressSink,
) (model.Result, error) {
	opts, err := params.FormatParams()
	if err != nil {
		return model.Result{}, err
	}

	sink.Report(5, "Preparing format operation")

	// Record the block size we are replacing; failure to read it is not
	// fatal.
	oldBlockSize := 0
	if res, berr := h.Runner.Output(ctx, tools.Command{
		Name:    "blockdev",
		Args:    []string{"--getbsz", device.Path},
		Timeout: 10 * time.Second,
	}); berr == nil && res.ExitCode == 0 {
		if v, perr := strconv.Atoi(strings.TrimSpace(res.Stdout)); perr == nil {
			oldBlockSize = v
		}
	}

	sink.Report(20, "Unmounting device")
	// Unmount is best-effort; an unmounted device makes umount exit nonzero.
	_, _ = h.Runner.Output(ctx, tools.Command{
		Name:    "umount",
		Args:    []string{device.Path},
		Timeout: 30 * time.Second,
	})

	sink.Report(40, fmt.Sprintf("Formatting with %s (block size %d)", opts.Filesystem, opts.BlockSize))
	args := []string{"-t", opts.Filesystem, "-b", strconv.Itoa(opts.BlockSize)}
	if opts.FastFormat {
		args = append(args, "-q")
	}
	args = append(args, device.Path)

	res, err := h.Runner.Output(ctx, tools.Command{
		Name:    "mkfs",
		Args:    args,
		Timeout: h.Timeout,
	})
	if err != nil {
		return model.Result{}, apperrors.Wrap(err, apperrors.ErrCodeToolFailure, "mkfs failed")
	}
	if res.ExitCode != 0 {
		return model.Result{}, apperrors.ToolFailuref("format failed: %s", strings.TrimSpace(res.Stderr))
	}

	sink.Report(100, "Format completed")
	return model.Result{
		Summary: fmt.Sprintf("formatted %s with %s, block size %d", device.Path, opts.Filesystem, opts.BlockSize),
		Details: map[string]any{
			"old_block_size": oldBlockSize,
			"new_block_size": opts.BlockSize,
			"filesystem":     opts.Filesystem,
			"fast_format":    opts.FastFormat,
		},
	}, nil
}
