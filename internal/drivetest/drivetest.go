// Package drivetest implements the per-test-type handlers: SMART attribute
// evaluation, drive self-tests, badblocks surface scans, performance probes,
// formatting and composite health checks. Handlers run their tools through
// tools.Runner, report through the progress sink they are handed, and honor
// context cancellation between tool invocations.
package drivetest

import (
	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	"github.com/compudrive/drivebench/internal/tools"
)

// HandlerSetOptions configures the full handler set.
type HandlerSetOptions struct {
	Runner tools.Runner
	// HDSentinelPath points at the optional HDSentinel binary; empty
	// searches the usual install locations and PATH.
	HDSentinelPath string
	// ScratchDir holds the sequential write probe's temporary file.
	ScratchDir string
}

// Handlers builds the complete test-type to handler map for the registry.
func Handlers(opts HandlerSetOptions) map[model.TestType]core.TestHandler {
	runner := opts.Runner
	if runner == nil {
		runner = &tools.ExecRunner{}
	}

	return map[model.TestType]core.TestHandler{
		model.TestTypeSmartFull:       NewSmartFull(runner),
		model.TestTypeSmartShort:      NewSelfTest(runner, SelfTestShort),
		model.TestTypeSmartExtended:   NewSelfTest(runner, SelfTestExtended),
		model.TestTypeSmartConveyance: NewSelfTest(runner, SelfTestConveyance),
		model.TestTypeBadblocksRead:   NewBadblocks(runner, false),
		model.TestTypeBadblocksWrite:  NewBadblocks(runner, true),
		model.TestTypePerformanceSequential: &SequentialPerf{
			Runner:     runner,
			ScratchDir: opts.ScratchDir,
		},
		model.TestTypePerformanceRandom: &RandomPerf{
			Runner: runner,
		},
		model.TestTypeFormat:      NewFormat(runner),
		model.TestTypeHealthCheck: NewHealthCheck(runner),
		model.TestTypeHDSentinelHealth: &HDSentinel{
			Runner:     runner,
			BinaryPath: opts.HDSentinelPath,
		},
	}
}
