package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"docuvet"`
	Password string `env:"PASSWORD" envDefault:"docuvet"`
	Name     string `env:"NAME"     envDefault:"docuvet"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the document-type config cache.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
	// Enabled controls whether the Redis-backed config cache is wired at all.
	// When false the pipeline resolves configs straight from the database.
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

// CacheConfig contains cache TTL configuration.
type CacheConfig struct {
	// DocTypeTTL is the TTL for cached document-type configs.
	DocTypeTTL time.Duration `env:"CACHE_DOCTYPE_TTL" envDefault:"5m"`
}
