package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	"github.com/compudrive/drivebench/internal/notify"
	"github.com/compudrive/drivebench/internal/observability/statsd"
)

// Prober produces the current drive list. Implemented by Detector;
// substituted in tests.
type Prober interface {
	Scan(ctx context.Context) []model.Drive
}

// ServiceOptions groups dependencies for Service.
type ServiceOptions struct {
	Detector Prober // Required
	// Drives persists scan results; optional.
	Drives core.DriveRepository
	// Settings supplies the backplane layout for bay mapping; optional.
	Settings core.SettingRepository
	Hub      *notify.Hub
	Metrics  statsd.Sink
	Logger   *slog.Logger
	// Interval between scans; defaults to 5s.
	Interval time.Duration
}

// Service runs periodic drive scans and serves as the live drive inventory
// (core.DeviceEnumerator) for the executor and the HTTP layer.
type Service struct {
	detector Prober
	drives   core.DriveRepository
	settings core.SettingRepository
	hub      *notify.Hub
	metrics  statsd.Sink
	logger   *slog.Logger
	interval time.Duration

	mu      sync.RWMutex
	current []model.Drive
}

var _ core.DeviceEnumerator = (*Service)(nil)

// NewService constructs the scanner service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Detector == nil {
		return nil, errors.New("detector is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Service{
		detector: opts.Detector,
		drives:   opts.Drives,
		settings: opts.Settings,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "scanner"),
		interval: interval,
	}, nil
}

// Run scans immediately and then on every tick until the context ends.
// Returns nil on graceful shutdown.
func (s *Service) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting drive scanner", "interval", s.interval)

	s.ScanOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "drive scanner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.ScanOnce(ctx)
		}
	}
}

// ScanOnce performs one scan pass: detect, map bays, persist, and notify on
// inventory changes.
func (s *Service) ScanOnce(ctx context.Context) {
	start := time.Now()
	drives := s.detector.Scan(ctx)
	s.applyBayMapping(ctx, drives)

	if s.drives != nil {
		for _, d := range drives {
			if err := s.drives.Upsert(ctx, d); err != nil {
				s.logger.WarnContext(ctx, "drive upsert failed", "device", d.Path, "error", err)
			}
		}
	}

	changed := s.replace(drives)

	if s.metrics != nil {
		s.metrics.Gauge("scanner.drives", float64(len(drives)), nil)
		s.metrics.Timing("scanner.scan_duration", time.Since(start), nil)
	}

	if changed && s.hub != nil {
		s.logger.InfoContext(ctx, "drive inventory changed", "drives", len(drives))
		s.hub.PublishData(ctx, notify.KindDrivesUpdated, map[string]any{
			"drives": drives,
		})
	}
}

// applyBayMapping overrides the SCSI-derived bay numbers with the
// configured backplane layout when one exists.
func (s *Service) applyBayMapping(ctx context.Context, drives []model.Drive) {
	if s.settings == nil {
		return
	}
	cfg, err := s.settings.GetBackplaneConfig(ctx)
	if err != nil || cfg == nil {
		return
	}
	for i := range drives {
		if bay := cfg.BayFor(drives[i]); bay > 0 {
			drives[i].BayNumber = bay
		}
	}
}

// replace swaps in the new inventory and reports whether it differs from
// the previous one.
func (s *Service) replace(drives []model.Drive) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := len(drives) != len(s.current)
	if !changed {
		for i := range drives {
			if drives[i].Path != s.current[i].Path ||
				drives[i].Serial != s.current[i].Serial ||
				drives[i].BayNumber != s.current[i].BayNumber {
				changed = true
				break
			}
		}
	}
	s.current = drives
	return changed
}

// Drives implements core.DeviceEnumerator.
func (s *Service) Drives(_ context.Context) []model.Drive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Drive, len(s.current))
	copy(out, s.current)
	return out
}

// DriveBySerial implements core.DeviceEnumerator.
func (s *Service) DriveBySerial(_ context.Context, serial string) (model.Drive, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.current {
		if d.Serial == serial {
			return d, true
		}
	}
	return model.Drive{}, false
}

// DriveByPath implements core.DeviceEnumerator.
func (s *Service) DriveByPath(_ context.Context, path string) (model.Drive, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.current {
		if d.Path == path {
			return d, true
		}
	}
	return model.Drive{}, false
}
