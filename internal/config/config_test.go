package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "APP_ENV", "JWT_SECRET", "CSRF_SECRET", "DB_DRIVER", "REVOCATION_BACKEND", "LOG_LEVEL"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checks := []struct {
		name string
		ok   bool
	}{
		{"base path", cfg.APIBasePath == "/api/v1"},
		{"access ttl", cfg.Auth.AccessTokenTTL == 30*time.Minute},
		{"refresh ttl", cfg.Auth.RefreshTokenTTL == 7*24*time.Hour},
		{"db driver", cfg.DB.Driver == "sqlite"},
		{"revocation", cfg.Revocation.Backend == "memory"},
		{"message runes", cfg.MaxMessageRunes == 2000},
		{"send buffer", cfg.Realtime.SendBuffer == 256},
		{"pong after ping", cfg.Realtime.PongWait > cfg.Realtime.PingInterval},
		{"no cors list", cfg.CORS.AllowedOrigins == nil},
		{"otel off", !cfg.OTEL.Enabled},
	}
	for _, c := range checks {
		if !c.ok {
			t.Fatalf("default %s unexpected: %+v", c.name, cfg)
		}
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	for k, v := range map[string]string{
		"PORT":                 "8088",
		"READ_TIMEOUT":         " 2s ",
		"GIN_MODE":             "weird",
		"LOG_LEVEL":            "WARNING",
		"LOG_PRETTY":           "yes",
		"API_BASE_PATH":        "api/v2/",
		"DB_DRIVER":            "PostgreSQL",
		"DATABASE_DSN":         "postgres://u:p@localhost/chat",
		"CORS_ALLOWED_ORIGINS": " https://a.com , , http://b ",
		"ACCESS_TOKEN_TTL":     "5m",
		"REFRESH_TOKEN_TTL":    "24h",
		"REVOCATION_BACKEND":   "Redis",
		"REDIS_ADDR":           "cache:6379",
		"REDIS_DB":             "2",
		"WS_SEND_BUFFER":       "32",
		"ADMIN_EMAIL":          " Root@Example.com ",
		"ADMIN_PASSWORD":       "secret123",
	} {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second {
		t.Fatalf("server: port=%q read=%v", cfg.Port, cfg.ReadTimeout)
	}
	if cfg.GinMode != "release" || cfg.LogLevel != "warn" || !cfg.LogPretty {
		t.Fatalf("normalization: gin=%q level=%q pretty=%v", cfg.GinMode, cfg.LogLevel, cfg.LogPretty)
	}
	if cfg.APIBasePath != "/api/v2" || cfg.DB.Driver != "postgres" {
		t.Fatalf("base=%q driver=%q", cfg.APIBasePath, cfg.DB.Driver)
	}
	if want := []string{"https://a.com", "http://b"}; !reflect.DeepEqual(cfg.CORS.AllowedOrigins, want) {
		t.Fatalf("origins = %#v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Auth.AccessTokenTTL != 5*time.Minute || cfg.Auth.RefreshTokenTTL != 24*time.Hour {
		t.Fatalf("ttls = %+v", cfg.Auth)
	}
	if cfg.Revocation != (RevocationConfig{Backend: "redis", RedisAddr: "cache:6379", RedisDB: 2}) {
		t.Fatalf("revocation = %+v", cfg.Revocation)
	}
	if cfg.Realtime.SendBuffer != 32 || cfg.Auth.AdminEmail != "root@example.com" {
		t.Fatalf("buffer=%d admin=%q", cfg.Realtime.SendBuffer, cfg.Auth.AdminEmail)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"blank port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"zero timeout", map[string]string{"READ_TIMEOUT": "0s"}, "server timeouts"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"blank db path", map[string]string{"DB_PATH": "   "}, "DB_PATH"},
		{"postgres without dsn", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_DSN"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"message runes", map[string]string{"MAX_MESSAGE_RUNES": "0"}, "MAX_MESSAGE_RUNES"},
		{"message runes above column", map[string]string{"MAX_MESSAGE_RUNES": "2001"}, "MAX_MESSAGE_RUNES must be in [1,2000]"},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS must be >= 0"},
		{"burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"zero access ttl", map[string]string{"ACCESS_TOKEN_TTL": "0s"}, "token lifetimes"},
		{"refresh before access", map[string]string{"ACCESS_TOKEN_TTL": "2h", "REFRESH_TOKEN_TTL": "1h"}, "REFRESH_TOKEN_TTL"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "at least 16 bytes"},
		{"dev secrets in prod", map[string]string{"APP_ENV": "prod"}, "default secrets"},
		{"half admin", map[string]string{"ADMIN_EMAIL": "a@b.c"}, "ADMIN_EMAIL"},
		{"revocation backend", map[string]string{"REVOCATION_BACKEND": "memcached"}, "REVOCATION_BACKEND"},
		{"send buffer", map[string]string{"WS_SEND_BUFFER": "0"}, "WS_SEND_BUFFER"},
		{"frame cap", map[string]string{"WS_MAX_MESSAGE_BYTES": "10"}, "WS_MAX_MESSAGE_BYTES"},
		{"pong before ping", map[string]string{"WS_PING_INTERVAL": "60s", "WS_PONG_WAIT": "30s"}, "WS_PONG_WAIT"},
		{"event rate", map[string]string{"WS_EVENT_RPS": "0"}, "WS_EVENT_RPS"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
		{"malformed number", map[string]string{"RATE_RPS": "x"}, `RATE_RPS="x" is not a valid number`},
		{"malformed integer", map[string]string{"REDIS_DB": "two"}, `REDIS_DB="two" is not a valid integer`},
		{"malformed duration", map[string]string{"WS_PONG_WAIT": "soon"}, "is not a valid duration"},
		{"malformed boolean", map[string]string{"LOG_PRETTY": "maybe"}, "is not a valid boolean"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("RATE_BURST", "0")
	t.Setenv("WS_WRITE_WAIT", "later")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"LOG_LEVEL", "RATE_BURST", "WS_WRITE_WAIT"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("joined error lacks %s: %v", want, err)
		}
	}
}

func TestEnvReader(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	t.Setenv("X_STR", "val")
	t.Setenv("X_F", "3.14")
	t.Setenv("X_D", "150ms")

	var e env
	if e.str("X_EMPTY", "d") != "d" || e.str("X_STR", "d") != "val" || e.str("X_UNSET", "d") != "d" {
		t.Fatal("str")
	}
	if e.decimal("X_F", 0) != 3.14 || e.duration("X_D", time.Second) != 150*time.Millisecond {
		t.Fatal("typed parse")
	}
	for _, v := range []string{"1", "TRUE", " yes ", "on"} {
		t.Setenv("X_B", v)
		if !e.boolean("X_B", false) {
			t.Fatalf("boolean(%q) = false", v)
		}
	}
	for _, v := range []string{"0", "FALSE", " no ", "off"} {
		t.Setenv("X_B", v)
		if e.boolean("X_B", true) {
			t.Fatalf("boolean(%q) = true", v)
		}
	}
	if len(e.errs) != 0 {
		t.Fatalf("unexpected errors: %v", e.errs)
	}

	t.Setenv("X_I", "seven")
	if e.integer("X_I", 7) != 7 || len(e.errs) != 1 {
		t.Fatalf("malformed integer: errs=%v", e.errs)
	}
}

func TestSplitCSVAndBasePath(t *testing.T) {
	if splitCSV("") != nil || splitCSV(" , ") != nil {
		t.Fatal("empty lists must be nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
	for in, want := range map[string]string{"": "/", "/": "/", "v1": "/v1", "/v1/": "/v1", " /api/v1// ": "/api/v1"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
