package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/compudrive/drivebench/config"
	redisadapter "github.com/compudrive/drivebench/internal/adapters/redis"
	"github.com/compudrive/drivebench/internal/adapters/scanner"
	"github.com/compudrive/drivebench/internal/data"
	"github.com/compudrive/drivebench/internal/drivetest"
	"github.com/compudrive/drivebench/internal/notify"
	"github.com/compudrive/drivebench/internal/observability/statsd"
	"github.com/compudrive/drivebench/internal/safety"
	"github.com/compudrive/drivebench/internal/service"
	"github.com/compudrive/drivebench/internal/testexec"
	"github.com/compudrive/drivebench/internal/tools"
)

// ServiceDeps contains the shared dependencies for building services.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// ServiceContainer holds the constructed application services.
type ServiceContainer struct {
	Hub      *notify.Hub
	Exec     *testexec.Supervisor
	Scanner  *scanner.Service
	Reaper   *service.ReaperService
	Recorder *service.ResultRecorder

	Drives   *data.DriveRepo
	Results  *data.TestResultRepo
	Sessions *data.SessionRepo
	Settings *data.SettingRepo

	Metrics *statsd.Client
}

// NewServices builds the full service graph: repositories, the safety
// guard, the test executor, the scanner, the reaper and the notification
// fan-out (including the Redis publisher when a client is wired).
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  cfg.Observability.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		// Metrics are best-effort; a dead statsd endpoint must not stop the bench.
		logger.Error("statsd client init failed, metrics disabled", "error", err)
		metrics = nil
	}
	var sink statsd.Sink
	if metrics != nil {
		sink = metrics
	}

	hub := notify.NewHub(logger)
	if deps.RedisClient != nil {
		publisher, perr := redisadapter.NewPublisher(redisadapter.PublisherOptions{
			Client:  deps.RedisClient,
			Channel: cfg.Redis.Channel,
			Logger:  logger,
		})
		if perr != nil {
			return nil, fmt.Errorf("build redis publisher: %w", perr)
		}
		hub.RegisterSink(publisher)
	}

	drives := data.NewDriveRepo(deps.DB)
	results := data.NewTestResultRepo(deps.DB)
	sessions := data.NewSessionRepo(deps.DB)
	settings := data.NewSettingRepo(deps.DB)

	guard := safety.NewGuard(safety.GuardOptions{Logger: logger})
	runner := &tools.ExecRunner{GracePeriod: cfg.Executor.StopGracePeriod}

	registry, err := testexec.NewRegistry(drivetest.Handlers(drivetest.HandlerSetOptions{
		Runner:         runner,
		HDSentinelPath: cfg.Executor.HDSentinelPath,
		ScratchDir:     cfg.Executor.ScratchDir,
	}))
	if err != nil {
		return nil, fmt.Errorf("build test registry: %w", err)
	}

	exec, err := testexec.NewSupervisor(testexec.SupervisorOptions{
		Registry:       registry,
		Guard:          guard,
		Hub:            hub,
		Metrics:        sink,
		Logger:         logger,
		ProgressBuffer: cfg.Executor.ProgressBuffer,
		MaxConcurrent:  cfg.Executor.MaxConcurrentTests,
	})
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}

	detector := scanner.NewDetector(scanner.DetectorOptions{
		Runner: runner,
		Guard:  guard,
		Logger: logger,
	})
	scan, err := scanner.NewService(scanner.ServiceOptions{
		Detector: detector,
		Drives:   drives,
		Settings: settings,
		Hub:      hub,
		Metrics:  sink,
		Logger:   logger,
		Interval: cfg.Scanner.Interval,
	})
	if err != nil {
		return nil, fmt.Errorf("build scanner: %w", err)
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Results: results,
		Config:  cfg.Reaper,
		Logger:  logger,
		Metrics: sink,
	})
	if err != nil {
		return nil, fmt.Errorf("build reaper: %w", err)
	}

	recorder, err := service.NewResultRecorder(service.ResultRecorderOptions{
		Hub:     hub,
		Results: results,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build result recorder: %w", err)
	}

	return &ServiceContainer{
		Hub:      hub,
		Exec:     exec,
		Scanner:  scan,
		Reaper:   reaper,
		Recorder: recorder,
		Drives:   drives,
		Results:  results,
		Sessions: sessions,
		Settings: settings,
		Metrics:  metrics,
	}, nil
}
