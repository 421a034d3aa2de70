package bootstrap

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/compudrive/drivebench/config"
	httpx "github.com/compudrive/drivebench/internal/http"
)

// NewHTTPServer builds the API server around the service container.
func NewHTTPServer(
	cfg config.HTTPConfig,
	services *ServiceContainer,
	version string,
	logger *slog.Logger,
) *http.Server {
	handler := httpx.NewRouter(httpx.RouterServices{
		Exec:       services.Exec,
		Enumerator: services.Scanner,
		Results:    services.Results,
		Sessions:   services.Sessions,
		Settings:   services.Settings,
		Hub:        services.Hub,
		Version:    version,
		StartedAt:  time.Now(),
		Logger:     logger,
	})

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
