package testexec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/notify"
	"github.com/compudrive/drivebench/internal/observability/metrics"
	"github.com/compudrive/drivebench/internal/observability/statsd"
)

const (
	defaultProgressBuffer = 64
	defaultMaxConcurrent  = 20
)

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	Registry *Registry
	Guard    core.SafetyGuard
	Hub      *notify.Hub
	Metrics  statsd.Sink
	Logger   *slog.Logger
	// ProgressBuffer sizes each job's progress channel; defaults to 64.
	ProgressBuffer int
	// MaxConcurrent caps simultaneously active jobs across all devices;
	// defaults to 20. Zero or negative uses the default.
	MaxConcurrent int
}

// jobEntry is the supervisor's bookkeeping for one active job. The record
// is only read or written under the supervisor mutex.
type jobEntry struct {
	record    *model.JobRecord
	cancel    context.CancelFunc
	progress  chan model.ProgressEvent
	drained   chan struct{}
	finalized bool
}

// Supervisor runs tests: at most one non-terminal job per device, each in
// its own worker goroutine supervising child tool processes. A crashing
// worker fails its own job and nothing else.
type Supervisor struct {
	registry *Registry
	guard    core.SafetyGuard
	hub      *notify.Hub
	metrics  statsd.Sink
	logger   *slog.Logger
	bufSize  int
	maxJobs  int
	now      func() time.Time

	mu sync.Mutex
	// active holds one entry per device with a non-terminal job. Entries
	// leave the map at finalization, so presence alone means busy.
	active map[string]*jobEntry
	// history keeps the last terminal record per device for progress
	// queries after completion.
	history map[string]model.JobRecord
}

var _ core.TestStarter = (*Supervisor)(nil)

// NewSupervisor constructs the executor.
func NewSupervisor(opts SupervisorOptions) (*Supervisor, error) {
	if opts.Registry == nil {
		return nil, apperrors.Internal("supervisor requires a handler registry")
	}
	if opts.Guard == nil {
		return nil, apperrors.Internal("supervisor requires a safety guard")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bufSize := opts.ProgressBuffer
	if bufSize <= 0 {
		bufSize = defaultProgressBuffer
	}
	maxJobs := opts.MaxConcurrent
	if maxJobs <= 0 {
		maxJobs = defaultMaxConcurrent
	}
	return &Supervisor{
		registry: opts.Registry,
		guard:    opts.Guard,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		logger:   logger,
		bufSize:  bufSize,
		maxJobs:  maxJobs,
		now:      time.Now,
		active:   make(map[string]*jobEntry),
		history:  make(map[string]model.JobRecord),
	}, nil
}

// Start validates the request, consults the safety guard, atomically claims
// the device slot and spawns the worker. It returns the job ID once the job
// is registered; execution proceeds asynchronously.
func (s *Supervisor) Start(ctx context.Context, req core.StartTestRequest) (string, error) {
	if err := req.Device.Validate(); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid device")
	}
	handler, err := s.registry.Lookup(req.TestType)
	if err != nil {
		return "", err
	}
	if err := req.Parameters.Validate(req.TestType); err != nil {
		return "", err
	}

	// The guard is consulted on every start, before the slot is claimed.
	// It is fail-closed, so an unreadable system state blocks everything.
	if s.guard.IsProtected(ctx, req.Device.Path) {
		return "", apperrors.ProtectedDevice(req.Device.Path)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	entry, err := s.claim(req, cancel)
	if err != nil {
		cancel()
		return "", err
	}

	s.logger.InfoContext(ctx, "test accepted",
		"job_id", entry.record.ID,
		"device", req.Device.Path,
		"test_type", req.TestType,
	)
	s.publishSnapshot(entry.record.Snapshot())
	metrics.EmitTestLifecycle(s.metrics, metrics.TestMetric{
		TestType:   string(req.TestType),
		Transition: metrics.TransitionStarted,
		Result:     metrics.ResultSuccess,
	})

	go s.drain(entry)
	go s.runWorker(workerCtx, entry, handler, req)

	return entry.record.ID, nil
}

// claim performs the busy check and slot registration as one step under the
// lock. Two concurrent starts for the same device can never both pass.
func (s *Supervisor) claim(req core.StartTestRequest, cancel context.CancelFunc) (*jobEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.active[req.Device.Path]; busy {
		return nil, apperrors.DeviceBusy(req.Device.Path)
	}
	if len(s.active) >= s.maxJobs {
		return nil, apperrors.CapacityExhausted(s.maxJobs)
	}

	entry := &jobEntry{
		record: &model.JobRecord{
			ID:         uuid.NewString(),
			Device:     req.Device,
			TestType:   req.TestType,
			Parameters: req.Parameters,
			State:      model.TestStatePending,
			StartedAt:  s.now(),
		},
		cancel:   cancel,
		progress: make(chan model.ProgressEvent, s.bufSize),
		drained:  make(chan struct{}),
	}
	s.active[req.Device.Path] = entry
	return entry, nil
}

// StartAll fans a start out over many devices. Each device is evaluated
// independently; one rejection never blocks the others.
func (s *Supervisor) StartAll(
	ctx context.Context,
	devices []model.DeviceIdentity,
	testType model.TestType,
	params model.TestParameters,
) map[string]core.StartResult {
	out := make(map[string]core.StartResult, len(devices))
	for _, dev := range devices {
		jobID, err := s.Start(ctx, core.StartTestRequest{
			Device:     dev,
			TestType:   testType,
			Parameters: params,
		})
		out[dev.Path] = core.StartResult{JobID: jobID, Err: err}
	}
	return out
}

// Stop requests cancellation of the device's active job. The job record is
// marked Cancelled and the slot freed immediately; worker teardown, with
// SIGTERM-then-SIGKILL escalation of any child process, continues in the
// background. Returns false when no active job exists.
func (s *Supervisor) Stop(device string) bool {
	s.mu.Lock()
	entry, ok := s.active[device]
	if !ok {
		s.mu.Unlock()
		return false
	}
	record, final := s.finalizeLocked(entry, model.TestStateCancelled, nil, nil)
	s.mu.Unlock()

	entry.cancel()
	if final {
		s.emitTerminal(record, nil)
	}
	return true
}

// StopAll stops the active jobs on the given devices.
func (s *Supervisor) StopAll(devices []string) map[string]bool {
	out := make(map[string]bool, len(devices))
	for _, dev := range devices {
		out[dev] = s.Stop(dev)
	}
	return out
}

// Progress returns a snapshot of the device's active job, or its most
// recent terminal job when nothing is running.
func (s *Supervisor) Progress(device string) (model.JobRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.active[device]; ok {
		return entry.record.Snapshot(), true
	}
	rec, ok := s.history[device]
	return rec, ok
}

// ActiveCount returns the number of non-terminal jobs.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Active returns snapshots of every non-terminal job.
func (s *Supervisor) Active() []model.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.JobRecord, 0, len(s.active))
	for _, entry := range s.active {
		out = append(out, entry.record.Snapshot())
	}
	return out
}

// runWorker executes the handler and drives the job to a terminal state.
// It owns the progress channel close and always waits for the drain
// goroutine so no update is lost before the terminal event.
func (s *Supervisor) runWorker(ctx context.Context, entry *jobEntry, handler core.TestHandler, req core.StartTestRequest) {
	defer entry.cancel()

	s.transitionRunning(entry)

	sink := &chanSink{ctx: ctx, ch: entry.progress, now: s.now}
	result, err := s.executeGuarded(ctx, entry, handler, req, sink)

	close(entry.progress)
	<-entry.drained

	state, res, failure := outcome(ctx, result, err)

	s.mu.Lock()
	record, final := s.finalizeLocked(entry, state, res, failure)
	s.mu.Unlock()
	if final {
		s.emitTerminal(record, err)
	}
}

// executeGuarded invokes the handler with panic isolation. A panicking
// worker fails only its own job.
func (s *Supervisor) executeGuarded(
	ctx context.Context,
	entry *jobEntry,
	handler core.TestHandler,
	req core.StartTestRequest,
	sink core.ProgressSink,
) (result model.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "test worker crashed",
				"job_id", entry.record.ID,
				"device", req.Device.Path,
				"panic", r,
			)
			err = apperrors.WorkerCrashed(fmt.Errorf("%v", r))
		}
	}()
	return handler.Execute(ctx, req.Device, req.Parameters, sink)
}

func (s *Supervisor) transitionRunning(entry *jobEntry) {
	s.mu.Lock()
	if entry.finalized {
		s.mu.Unlock()
		return
	}
	entry.record.State = model.TestStateRunning
	snap := entry.record.Snapshot()
	s.mu.Unlock()

	s.publishSnapshot(snap)
}

// drain forwards progress events from the worker into the job record and
// the notification hub until the channel closes.
func (s *Supervisor) drain(entry *jobEntry) {
	defer close(entry.drained)
	for ev := range entry.progress {
		s.mu.Lock()
		if entry.finalized {
			s.mu.Unlock()
			continue
		}
		entry.record.ProgressPercent = ev.ProgressPercent
		entry.record.CurrentStep = ev.CurrentStep
		snap := entry.record.Snapshot()
		s.mu.Unlock()

		s.publishSnapshot(snap)
	}
}

// outcome maps a handler result to the terminal state. Cancellation wins
// over whatever error the interrupted tool reported.
func outcome(ctx context.Context, result model.Result, err error) (model.TestState, *model.Result, *model.FailureDetail) {
	if err == nil {
		return model.TestStateCompleted, &result, nil
	}
	if ctx.Err() != nil {
		return model.TestStateCancelled, nil, nil
	}
	reason := string(apperrors.GetCode(err))
	if reason == "" {
		reason = string(apperrors.ErrCodeToolFailure)
	}
	return model.TestStateFailed, nil, &model.FailureDetail{Reason: reason, Detail: err.Error()}
}

// finalizeLocked performs the exactly-once terminal transition: fills the
// record, frees the slot and records history. Callers hold s.mu. The second
// return is false when the job was already finalized.
func (s *Supervisor) finalizeLocked(
	entry *jobEntry,
	state model.TestState,
	result *model.Result,
	failure *model.FailureDetail,
) (model.JobRecord, bool) {
	if entry.finalized {
		return model.JobRecord{}, false
	}
	entry.finalized = true

	ended := s.now()
	entry.record.State = state
	entry.record.EndedAt = &ended
	entry.record.Result = result
	entry.record.Failure = failure
	if state == model.TestStateCompleted {
		entry.record.ProgressPercent = 100
	}

	snap := entry.record.Snapshot()
	delete(s.active, entry.record.Device.Path)
	s.history[entry.record.Device.Path] = snap
	return snap, true
}

// emitTerminal publishes the terminal event and lifecycle metrics.
func (s *Supervisor) emitTerminal(record model.JobRecord, err error) {
	s.publishSnapshot(record)

	result := metrics.ResultSuccess
	switch record.State {
	case model.TestStateFailed:
		result = metrics.ResultError
	case model.TestStateCancelled:
		result = metrics.ResultCancelled
	}
	var duration time.Duration
	if record.EndedAt != nil {
		duration = record.EndedAt.Sub(record.StartedAt)
	}
	metrics.EmitTestLifecycle(s.metrics, metrics.TestMetric{
		TestType:   string(record.TestType),
		Transition: metrics.TransitionFinished,
		Result:     result,
		Duration:   duration,
		Err:        err,
	})

	s.logger.Info("test finished",
		"job_id", record.ID,
		"device", record.Device.Path,
		"test_type", record.TestType,
		"state", record.State,
	)
}

func (s *Supervisor) publishSnapshot(record model.JobRecord) {
	if s.hub == nil {
		return
	}
	s.hub.PublishTest(context.Background(), notify.TestEvent{
		JobID:           record.ID,
		Device:          record.Device.Path,
		Serial:          record.Device.Serial,
		TestType:        record.TestType,
		State:           record.State,
		ProgressPercent: record.ProgressPercent,
		CurrentStep:     record.CurrentStep,
		Result:          record.Result,
		Failure:         record.Failure,
		StartedAt:       record.StartedAt,
		EndedAt:         record.EndedAt,
	})
}

// chanSink is the per-job progress sink handed to the handler. It clamps
// percents to [0,100], forces them monotonically non-decreasing and never
// outlives its job: once the worker context ends, reports are dropped.
type chanSink struct {
	ctx  context.Context
	ch   chan model.ProgressEvent
	now  func() time.Time
	mu   sync.Mutex
	last float64
}

var _ core.ProgressSink = (*chanSink)(nil)

func (c *chanSink) Report(percent float64, step string) {
	c.mu.Lock()
	if percent < c.last {
		percent = c.last
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	c.last = percent
	c.mu.Unlock()

	select {
	case c.ch <- model.ProgressEvent{ProgressPercent: percent, CurrentStep: step, Timestamp: c.now()}:
	case <-c.ctx.Done():
	}
}
