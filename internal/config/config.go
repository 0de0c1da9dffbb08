// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, session lifetimes, the revocation backend, realtime
// connection tuning, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxMessageRunes is the size of the messages.text column.
const maxMessageRunes = 2000

// Default secrets are only acceptable outside production.
const (
	devJWTSecret  = "dev-jwt-secret-change-me"
	devCSRFSecret = "dev-csrf-secret-change-me"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	CookieSecure bool // mark the access_token cookie Secure
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	DSN    string // Postgres DSN
}

// AuthConfig holds token secrets and lifetimes.
type AuthConfig struct {
	JWTSecret       string
	CSRFSecret      string
	AccessTokenTTL  time.Duration // default 30m
	RefreshTokenTTL time.Duration // default 7 days
	AdminEmail      string        // optional bootstrap admin
	AdminPassword   string
	JanitorInterval time.Duration // expired refresh token purge cadence
}

// RevocationConfig selects the access-token blacklist backend.
type RevocationConfig struct {
	Backend       string // memory|redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// RealtimeConfig tunes websocket connections and fanout.
type RealtimeConfig struct {
	SendBuffer      int           // per-connection outbound queue
	MaxMessageBytes int64         // inbound frame cap
	PingInterval    time.Duration // server ping cadence
	PongWait        time.Duration // read deadline extended on pong
	WriteWait       time.Duration
	SweepInterval   time.Duration // stale connection sweep; 0 disables
	EventRPS        float64       // inbound events per second per connection
	EventBurst      int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Env               string        // dev|prod
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB DBConfig

	// Messages
	MaxMessageRunes int

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	Auth       AuthConfig
	Revocation RevocationConfig
	Realtime   RealtimeConfig

	// Observability
	OTEL OTELConfig
}

// Load reads the environment, applies defaults and normalization, and
// validates the result. A malformed value such as READ_TIMEOUT=abc is an
// error rather than a silent fallback. All problems are returned joined.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Env:               strings.ToLower(e.str("APP_ENV", "dev")),
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.duration("IDLE_TIMEOUT", time.Minute),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.boolean("LOG_PRETTY", false),
		SwaggerEnabled: e.boolean("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			Path:   e.str("DB_PATH", "chat.db"),
			DSN:    e.str("DATABASE_DSN", ""),
		},
		MaxMessageRunes: e.integer("MAX_MESSAGE_RUNES", maxMessageRunes),

		RateRPS:   e.decimal("RATE_RPS", 10),
		RateBurst: e.integer("RATE_BURST", 20),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS:   e.boolean("ENABLE_HSTS", false),
			HSTSMaxAge:   e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
			CookieSecure: e.boolean("COOKIE_SECURE", false),
		},

		Auth: AuthConfig{
			JWTSecret:       e.str("JWT_SECRET", devJWTSecret),
			CSRFSecret:      e.str("CSRF_SECRET", devCSRFSecret),
			AccessTokenTTL:  e.duration("ACCESS_TOKEN_TTL", 30*time.Minute),
			RefreshTokenTTL: e.duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			AdminEmail:      strings.ToLower(strings.TrimSpace(e.str("ADMIN_EMAIL", ""))),
			AdminPassword:   e.str("ADMIN_PASSWORD", ""),
			JanitorInterval: e.duration("JANITOR_INTERVAL", time.Hour),
		},
		Revocation: RevocationConfig{
			Backend:       strings.ToLower(e.str("REVOCATION_BACKEND", "memory")),
			RedisAddr:     e.str("REDIS_ADDR", "localhost:6379"),
			RedisPassword: e.str("REDIS_PASSWORD", ""),
			RedisDB:       e.integer("REDIS_DB", 0),
		},
		Realtime: RealtimeConfig{
			SendBuffer:      e.integer("WS_SEND_BUFFER", 256),
			MaxMessageBytes: int64(e.integer("WS_MAX_MESSAGE_BYTES", 16<<10)),
			PingInterval:    e.duration("WS_PING_INTERVAL", 30*time.Second),
			PongWait:        e.duration("WS_PONG_WAIT", time.Minute),
			WriteWait:       e.duration("WS_WRITE_WAIT", 10*time.Second),
			SweepInterval:   e.duration("WS_SWEEP_INTERVAL", time.Minute),
			EventRPS:        e.decimal("WS_EVENT_RPS", 10),
			EventBurst:      e.integer("WS_EVENT_BURST", 20),
		},
		OTEL: OTELConfig{
			Enabled:     e.boolean("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-realtime-chat"),
			SampleRatio: e.decimal("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}
	cfg.normalize()
	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	switch c.DB.Driver {
	case "postgresql", "pg":
		c.DB.Driver = "postgres"
	}
}

// validate returns one error per violated constraint.
func (c Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}
	oneOf := func(v string, allowed ...string) bool {
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
		return false
	}

	check(oneOf(c.LogLevel, "debug", "info", "warn", "error", "fatal", "panic"),
		"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"server timeouts must be positive")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch c.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(c.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DB.DSN) != "", "DATABASE_DSN is required when DB_DRIVER=postgres")
	default:
		check(false, "DB_DRIVER must be one of: sqlite, postgres")
	}
	check(c.MaxMessageRunes >= 1 && c.MaxMessageRunes <= maxMessageRunes,
		fmt.Sprintf("MAX_MESSAGE_RUNES must be in [1,%d]", maxMessageRunes))
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")

	a := c.Auth
	check(a.AccessTokenTTL > 0 && a.RefreshTokenTTL > 0, "token lifetimes must be positive")
	check(a.RefreshTokenTTL >= a.AccessTokenTTL, "REFRESH_TOKEN_TTL must not be shorter than ACCESS_TOKEN_TTL")
	check(len(a.JWTSecret) >= 16 && len(a.CSRFSecret) >= 16, "JWT_SECRET and CSRF_SECRET must be at least 16 bytes")
	check(c.Env != "prod" || (a.JWTSecret != devJWTSecret && a.CSRFSecret != devCSRFSecret),
		"default secrets are not allowed when APP_ENV=prod")
	check((a.AdminEmail == "") == (a.AdminPassword == ""), "ADMIN_EMAIL and ADMIN_PASSWORD must be set together")

	switch c.Revocation.Backend {
	case "memory":
	case "redis":
		check(strings.TrimSpace(c.Revocation.RedisAddr) != "", "REDIS_ADDR is required when REVOCATION_BACKEND=redis")
	default:
		check(false, "REVOCATION_BACKEND must be one of: memory, redis")
	}

	rt := c.Realtime
	check(rt.SendBuffer >= 1, "WS_SEND_BUFFER must be >= 1")
	check(rt.MaxMessageBytes >= 512, "WS_MAX_MESSAGE_BYTES must be >= 512")
	check(rt.PingInterval > 0 && rt.PongWait > rt.PingInterval, "WS_PONG_WAIT must exceed a positive WS_PING_INTERVAL")
	check(rt.WriteWait > 0, "WS_WRITE_WAIT must be > 0")
	check(rt.SweepInterval >= 0, "WS_SWEEP_INTERVAL must be >= 0")
	check(rt.EventRPS > 0 && rt.EventBurst >= 1, "WS_EVENT_RPS must be > 0 and WS_EVENT_BURST >= 1")

	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// env reads typed variables. Unset or empty variables yield the default;
// unparsable ones yield the default and record an error.
type env struct {
	errs []error
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	return v, ok && v != ""
}

func (e *env) bad(k, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, want))
}

func (e *env) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.bad(k, v, "integer")
		return def
	}
	return i
}

func (e *env) decimal(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		e.bad(k, v, "number")
		return def
	}
	return f
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.bad(k, v, "duration")
		return def
	}
	return d
}

func (e *env) boolean(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.bad(k, v, "boolean")
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with a leading slash and no trailing one;
// empty means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
