package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	"github.com/compudrive/drivebench/internal/notify"
)

// ResultRecorderOptions groups dependencies for ResultRecorder.
type ResultRecorderOptions struct {
	Hub     *notify.Hub               // Required: event hub to subscribe to
	Results core.TestResultRepository // Required: result repository
	Logger  *slog.Logger              // Optional: structured logger
}

// ResultRecorder subscribes to the notification hub and persists every
// terminal test transition. The executor stays persistence-free; this is the
// only writer of test_results rows.
type ResultRecorder struct {
	hub     *notify.Hub
	results core.TestResultRepository
	logger  *slog.Logger
}

// NewResultRecorder constructs a ResultRecorder.
func NewResultRecorder(opts ResultRecorderOptions) (*ResultRecorder, error) {
	if opts.Hub == nil {
		return nil, errors.New("notification hub is required")
	}
	if opts.Results == nil {
		return nil, errors.New("test result repository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ResultRecorder{
		hub:     opts.Hub,
		results: opts.Results,
		logger:  logger.With("component", "result_recorder"),
	}, nil
}

// Run consumes hub events until the context is cancelled. Returns nil on
// graceful shutdown.
func (r *ResultRecorder) Run(ctx context.Context) error {
	unsubscribe, events := r.hub.Subscribe()
	defer unsubscribe()

	r.logger.InfoContext(ctx, "starting result recorder")

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "result recorder stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.record(ctx, ev)
		}
	}
}

// resultEnvelope is the persisted JSON payload: the success result for
// completed runs, the failure detail for failed ones, neither for cancels.
type resultEnvelope struct {
	Result  *model.Result        `json:"result,omitempty"`
	Failure *model.FailureDetail `json:"failure,omitempty"`
}

func (r *ResultRecorder) record(ctx context.Context, ev notify.Event) {
	if ev.Kind != notify.KindTestProgress || ev.Test == nil || !ev.Test.State.Terminal() {
		return
	}
	te := ev.Test

	payload, err := json.Marshal(resultEnvelope{Result: te.Result, Failure: te.Failure})
	if err != nil {
		r.logger.ErrorContext(ctx, "marshal result payload failed", "job_id", te.JobID, "error", err)
		payload = nil
	}

	endedAt := ev.Timestamp
	if te.EndedAt != nil {
		endedAt = *te.EndedAt
	}

	params := core.InsertTestResultParams{
		JobID: te.JobID,
		Device: model.DeviceIdentity{
			Path:   te.Device,
			Name:   path.Base(te.Device),
			Serial: te.Serial,
		},
		TestType:  te.TestType,
		State:     te.State,
		Result:    payload,
		StartedAt: te.StartedAt,
		EndedAt:   endedAt,
	}

	if insertErr := r.results.Insert(ctx, params); insertErr != nil {
		// History is best-effort; the engine's in-memory record is authoritative
		// until the next start on the device.
		r.logger.ErrorContext(ctx, "persist test result failed",
			"job_id", te.JobID,
			"device", te.Device,
			"state", te.State,
			"error", insertErr,
		)
		return
	}

	r.logger.DebugContext(ctx, "persisted test result",
		"job_id", te.JobID,
		"device", te.Device,
		"test_type", te.TestType,
		"state", te.State,
	)
}
