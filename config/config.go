// Package config defines the environment-driven configuration for the
// drivebench service. Values load from environment variables via
// github.com/caarlos0/env; Sanitize applies guardrails after loading.
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files:
//   - database.go: Postgres and Redis configuration
//   - http.go: HTTP server configuration
//   - services.go: service modes, executor, scanner and reaper configuration
//   - observability.go: metrics configuration
type AppConfig struct {
	// IsDev controls development mode behavior (text log handler, debug level).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Services is the comma-delimited list of service modes to run.
	Services string `env:"SERVICES" envDefault:"http,scanner,reaper"`

	// Executor configuration (test engine)
	Executor ExecutorConfig

	// Scanner configuration (drive enumeration)
	Scanner ScannerConfig

	// Reaper configuration (result retention)
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Executor.Sanitize()
	c.Scanner.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
}

// detectDevMode checks APP_ENV as a fallback for the DEV flag.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isServiceEnabled(ServiceModeHTTP)
}

// IsScannerEnabled returns true if the drive scanner service is enabled.
func (c *AppConfig) IsScannerEnabled() bool {
	return c.isServiceEnabled(ServiceModeScanner)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.isServiceEnabled(ServiceModeReaper)
}

func (c *AppConfig) isServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
