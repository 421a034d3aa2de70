package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/compudrive/drivebench/config"
	"github.com/compudrive/drivebench/internal/core"
	obserrors "github.com/compudrive/drivebench/internal/observability/errors"
	"github.com/compudrive/drivebench/internal/observability/metrics"
	"github.com/compudrive/drivebench/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Results core.TestResultRepository // Required: result repository
	Config  config.ReaperConfig       // Required: reaper configuration
	Logger  *slog.Logger              // Optional: structured logger
	Metrics statsd.Sink               // Optional: metrics sink (StatsD-compatible)
}

// ReaperService prunes old test results so the table stays bounded. Terminal
// results are durable history, not working state; anything older than the
// configured retention is deleted in batches.
type ReaperService struct {
	results core.TestResultRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Results == nil {
		return nil, errors.New("test result repository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ReaperService{
		results: opts.Results,
		config:  opts.Config,
		logger:  logger.With("component", "reaper_service"),
		metrics: opts.Metrics,
		now:     time.Now,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service",
		"interval", s.config.Interval,
		"results_max_age", s.config.ResultsMaxAge,
		"batch_size", s.config.BatchSize,
	)

	// Jitter so multiple instances starting together do not prune in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.runCleanup(ctx); err != nil && !isContextCancellation(err) {
		s.logger.Error("initial cleanup failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCleanup(ctx); err != nil && !isContextCancellation(err) {
				// Keep running despite errors.
				s.logger.Error("cleanup failed", "error", err)
			}
		}
	}
}

// waitWithJitter sleeps a random duration up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// runCleanup deletes old results in batches until a pass comes back empty.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	start := s.now()
	cutoff := start.Add(-s.config.ResultsMaxAge)

	var total int64
	var runErr error
	for {
		count, err := s.results.DeleteOlderThan(ctx, cutoff, s.config.BatchSize)
		total += count
		if err != nil {
			runErr = err
			break
		}
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
	}

	s.emitCleanupMetrics(total, s.now().Sub(start), runErr)

	if runErr != nil {
		return runErr
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "deleted old test results",
			"count", total,
			"max_age", s.config.ResultsMaxAge,
		)
	}
	return nil
}

func (s *ReaperService) emitCleanupMetrics(deleted int64, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case deleted == 0:
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if deleted > 0 {
		s.metrics.Count("reaper.deleted_results", deleted, nil)
	}
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if err == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.now().Unix()), nil)
	}
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
