// Command server runs the realtime chat backend.
//
// @title                      Realtime Chat API
// @version                    1.0
// @description                Personal and group conversations with JWT sessions, idempotent messages, and WebSocket fanout.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/config"
	httpapi "github.com/tbourn/go-realtime-chat/internal/http"
	"github.com/tbourn/go-realtime-chat/internal/http/handlers"
	"github.com/tbourn/go-realtime-chat/internal/observability"
	"github.com/tbourn/go-realtime-chat/internal/realtime"
	"github.com/tbourn/go-realtime-chat/internal/repo"
	"github.com/tbourn/go-realtime-chat/internal/revocation"
	"github.com/tbourn/go-realtime-chat/internal/services"
	"github.com/tbourn/go-realtime-chat/internal/sysutil"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile     string
		migrateOnly bool
	)
	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing file is ignored)")
	flagSet.BoolVar(&migrateOnly, "migrate-only", false, "apply database migrations and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, os.Stdout)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, cfg.Env, appVersion)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB, cfg.OTEL.Enabled)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("driver", cfg.DB.Driver).Msg("database ready")
	if migrateOnly {
		return nil
	}

	users := services.NewUserService(db)
	if cfg.Auth.AdminEmail != "" {
		if _, err := users.EnsureAdmin(ctx, "Administrator", cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		log.Info().Str("email", cfg.Auth.AdminEmail).Msg("admin account ensured")
	}

	revoked, err := openRevocation(ctx, cfg.Revocation)
	if err != nil {
		return err
	}
	defer revoked.Close()

	sessions := services.NewSessionService(db, users,
		auth.NewTokenService(cfg.Auth.JWTSecret),
		auth.NewForgeryGuard(cfg.Auth.CSRFSecret, cfg.Auth.AccessTokenTTL),
		revoked, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	convs := services.NewConversationService(db)
	msgs := services.NewMessageService(db, cfg.MaxMessageRunes)

	transport := realtime.TransportConfig{
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		PingInterval:    cfg.Realtime.PingInterval,
		PongWait:        cfg.Realtime.PongWait,
		WriteWait:       cfg.Realtime.WriteWait,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
	}
	hub := realtime.NewHub(realtime.NewRegistry(), sessions, convs, msgs, realtime.Options{
		SendBuffer: cfg.Realtime.SendBuffer,
		EventRPS:   cfg.Realtime.EventRPS,
		EventBurst: cfg.Realtime.EventBurst,
		StaleAfter: 2 * cfg.Realtime.PongWait,
	})

	h := handlers.New(handlers.Deps{
		Accounts:      users,
		Sessions:      sessions,
		Conversations: convs,
		Messages:      msgs,
		Broadcaster:   hub,
		Sockets:       hub,
		Options: handlers.Options{
			AccessTTL:    cfg.Auth.AccessTokenTTL,
			CookieSecure: cfg.Security.CookieSecure,
			Transport:    transport,
		},
	})

	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, httpapi.Deps{Handlers: h, Sessions: sessions, KeyLookup: msgs.HasKey})

	go sessions.RunJanitor(ctx, cfg.Auth.JanitorInterval)
	go hub.RunSweeper(ctx, cfg.Realtime.SweepInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Str("version", appVersion).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	// Hijacked sockets are invisible to Shutdown; close them first.
	hub.Shutdown()
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}

func openRevocation(ctx context.Context, cfg config.RevocationConfig) (revocation.Store, error) {
	switch cfg.Backend {
	case "redis":
		s, err := revocation.NewRedisStore(ctx, revocation.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("revocation store: %w", err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("revocation backend: redis")
		return s, nil
	default:
		log.Warn().Msg("revocation backend: memory (single instance only)")
		return revocation.NewMemoryStore(), nil
	}
}
