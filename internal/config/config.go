// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// EnvFileVar names the variable pointing at an optional env file.
const EnvFileVar = "SENTINEL_ENV_FILE"

// Config is the full process configuration shared by web, worker and beat.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Paths     PathsConfig
	Logging   LoggingConfig
	Email     EmailConfig
	Push      PushConfig
	HTTP      HTTPConfig
	Readiness ReadinessConfig
	Worker    WorkerConfig

	TimeZone        string `env:"TIME_ZONE,default=UTC"`
	DetectorsConfig string `env:"DETECTORS_CONFIG"`
	Version         string `env:"SENTINEL_VERSION,default=1.0.0"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `env:"SERVER_HOST,default=0.0.0.0"`
	Port int    `env:"SERVER_PORT,default=8000"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig describes the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	Host            string        `env:"POSTGRES_HOST,default=db"`
	Port            int           `env:"POSTGRES_PORT,default=5432"`
	User            string        `env:"POSTGRES_USER,default=postgres"`
	Password        string        `env:"POSTGRES_PASSWORD"`
	Name            string        `env:"POSTGRES_DB,default=sentinel"`
	SSLMode         string        `env:"POSTGRES_SSLMODE,default=disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=300s"`
}

// DSN returns DATABASE_URL when set, otherwise a URL built from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisConfig describes the cache and broker connection.
type RedisConfig struct {
	URL string `env:"REDIS_URL,default=redis://redis:6379/0"`
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TTL,default=60m"`
	RefreshTTL time.Duration `env:"JWT_REFRESH_TTL,default=24h"`
}

// PathsConfig locates the on-disk artifact directories.
type PathsConfig struct {
	MediaRoot  string `env:"MEDIA_ROOT,default=/app/media"`
	StaticRoot string `env:"STATIC_ROOT,default=/app/staticfiles"`
	ModelsDir  string `env:"MODELS_DIR,default=/app/models"`
	LogDir     string `env:"LOG_DIR,default=/app/logs"`
}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
	Output string `env:"LOG_OUTPUT,default=stdout"`
}

// EmailConfig configures the SMTP relay.
type EmailConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT,default=587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"DEFAULT_FROM_EMAIL,default=noreply@sentinel.local"`
}

// Enabled reports whether an SMTP host is configured.
func (e EmailConfig) Enabled() bool { return strings.TrimSpace(e.Host) != "" }

// PushConfig configures the push notification webhook.
type PushConfig struct {
	WebhookURL   string `env:"PUSH_WEBHOOK_URL"`
	WebhookToken string `env:"PUSH_WEBHOOK_TOKEN"`
}

// HTTPConfig holds API edge settings.
type HTTPConfig struct {
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RateLimitRPS       int    `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst     int    `env:"RATE_LIMIT_BURST,default=40"`
}

// AllowedOrigins splits the comma separated origin list.
func (h HTTPConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(h.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ReadinessConfig controls the dependency wait performed at startup.
type ReadinessConfig struct {
	Interval time.Duration `env:"READINESS_INTERVAL,default=10s"`
	Timeout  time.Duration `env:"READINESS_TIMEOUT,default=5s"`
	Retries  int           `env:"READINESS_RETRIES,default=5"`
}

// WorkerConfig controls the task worker.
type WorkerConfig struct {
	Concurrency int    `env:"WORKER_CONCURRENCY,default=4"`
	Queue       string `env:"TASK_QUEUE,default=default"`
}

// Load reads the optional env file and decodes the environment.
func Load() (*Config, error) {
	envFile := os.Getenv(EnvFileVar)
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv decodes the current environment without touching env files.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the decoded values and names the offending key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Auth.AccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be positive")
	}
	if c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("JWT_REFRESH_TTL must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	if strings.TrimSpace(c.Worker.Queue) == "" {
		return fmt.Errorf("TASK_QUEUE must not be empty")
	}
	if c.Readiness.Retries < 0 {
		return fmt.Errorf("READINESS_RETRIES must not be negative")
	}
	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("TIME_ZONE %q: %w", c.TimeZone, err)
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MediaDirs lists the media subdirectories prepared at startup.
var MediaDirs = []string{
	"alerts/videos",
	"alerts/thumbnails",
	"faces/images",
	"faces/verification",
	"profile_pictures",
}
