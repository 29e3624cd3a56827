package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"matchday"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres Postgres
	Redis    Redis
	NATS     NATS
	Remote   Remote
	Session  Session
	CORS     CORS
}

// Postgres captures connection info for the attendance database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// Redis holds snapshot, lock and alert pub/sub configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// NATS is optional; alerts are also published there when URL is set.
type NATS struct {
	URL string `env:"NATS_URL" envDefault:""`
}

// Remote configures the match service client. An empty BaseURL runs every
// session local-only.
type Remote struct {
	BaseURL     string        `env:"REMOTE_BASE_URL" envDefault:""`
	APIKey      string        `env:"REMOTE_API_KEY" envDefault:""`
	HTTPTimeout time.Duration `env:"REMOTE_HTTP_TIMEOUT" envDefault:"8s"`
}

// Session groups engine timing and persistence settings.
type Session struct {
	PollInterval      time.Duration `env:"SESSION_POLL_INTERVAL" envDefault:"5s"`
	TickInterval      time.Duration `env:"SESSION_TICK_INTERVAL" envDefault:"1s"`
	RemoteTimeout     time.Duration `env:"SESSION_REMOTE_TIMEOUT" envDefault:"10s"`
	SnapshotTTL       time.Duration `env:"SESSION_SNAPSHOT_TTL" envDefault:"72h"`
	ActiveScopes      []string      `env:"SESSION_ACTIVE_SCOPES" envSeparator:"," envDefault:""`
	Timezone          string        `env:"SESSION_TIMEZONE" envDefault:"UTC"`
	MatchDefaultsFile string        `env:"MATCH_DEFAULTS_FILE" envDefault:""`
	DefaultMode       string        `env:"SESSION_DEFAULT_MODE" envDefault:"server_backed"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Session.Timezone); err != nil {
		return nil, fmt.Errorf("parse config: SESSION_TIMEZONE: %w", err)
	}
	switch cfg.Session.DefaultMode {
	case "server_backed", "local_only":
	default:
		return nil, fmt.Errorf("parse config: SESSION_DEFAULT_MODE must be server_backed or local_only, got %q", cfg.Session.DefaultMode)
	}
	return cfg, nil
}

// LoadPostgres parses only the database settings, for tools that do not run the API.
func LoadPostgres() (*Postgres, error) {
	pg := &Postgres{}
	if err := env.ParseWithOptions(pg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	return pg, nil
}
