package config

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"drivebench"`
	Password string `env:"PASSWORD" envDefault:"drivebench"`
	Name     string `env:"NAME"     envDefault:"drivebench"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the event publisher.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
	// Enabled controls whether hub events are mirrored to Redis pub/sub.
	Enabled bool `env:"ENABLED" envDefault:"false"`
	// Channel is the pub/sub channel events are published on.
	Channel string `env:"CHANNEL" envDefault:"drivebench:events"`
}
