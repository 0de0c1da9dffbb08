// Package httpapi wires the HTTP transport (Gin) to the chat handlers and
// middleware. It centralizes cross-cutting concerns such as tracing,
// correlation IDs, logging/redaction, panic recovery, metrics, CORS,
// security headers, authentication, anti-forgery, idempotency, and rate
// limiting.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with credential scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS, security headers, gzip (REST only)
//  8. Identify: soft authentication for every API route
//  9. Per route: RequireAuth, AntiForgery, Idempotency, rate limiter
//
// The idempotency validator runs before the rate limiter on message posts so
// a replayed key bypasses the bucket.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/tbourn/go-realtime-chat/docs"
	"github.com/tbourn/go-realtime-chat/internal/config"
	"github.com/tbourn/go-realtime-chat/internal/http/handlers"
	"github.com/tbourn/go-realtime-chat/internal/http/middleware"
)

// SessionChecker authenticates access tokens and anti-forgery tokens.
type SessionChecker interface {
	middleware.Authenticator
	middleware.CSRFVerifier
}

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	Handlers *handlers.Handlers
	Sessions SessionChecker
	// KeyLookup reports whether an Idempotency-Key was already stored; nil
	// disables replay detection in the middleware (the ledger still dedups).
	KeyLookup middleware.IdempotencyLookup
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
func RegisterRoutes(r *gin.Engine, cfg config.Config, d Deps) {
	r.HandleMethodNotAllowed = true

	base := cfg.APIBasePath
	wsPath := joinPath(base, "/ws/conversations/:id")

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics; the socket route would only record upgrade latency.
	r.Use(middleware.Metrics("/metrics", wsPath))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture, security headers, compression
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		EnablePolicy:  true,
		ExposeHeaders: exposedHeaders,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{joinPath(base, "/ws/"), "/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := d.Handlers
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	limited := rl.Handler()

	// 8) Public API
	api := groupWithPrefix(r, base)
	api.Use(middleware.Identify(d.Sessions))

	// The socket authenticates itself from ?token= or the bearer header.
	api.GET("/ws/conversations/:id", limited, h.ServeWS)

	authPublic := api.Group("/auth", middleware.NoStore(), limited)
	{
		authPublic.POST("/register", h.Register)
		authPublic.POST("/login", h.Login)
		authPublic.POST("/refresh", h.Refresh)
	}

	// 9) Authenticated routes
	authed := api.Group("", middleware.RequireAuth(), middleware.AntiForgery(d.Sessions))
	{
		authed.POST("/auth/logout", middleware.NoStore(), limited, h.Logout)
		authed.GET("/auth/csrf", middleware.NoStore(), limited, h.CSRF)
		authed.GET("/users/me", limited, h.Me)

		// Conversations
		authed.GET("/conversations", limited, h.ListConversations)
		authed.POST("/conversations/personal", limited, h.CreatePersonal)
		authed.POST("/conversations/group", limited, h.CreateGroup)
		authed.GET("/conversations/:id", limited, h.GetConversation)
		authed.GET("/conversations/:id/members", limited, h.ListMembers)
		authed.POST("/conversations/:id/members", limited, h.AddMember)
		authed.DELETE("/conversations/:id/members/:userID", limited, h.RemoveMember)

		// Messages
		authed.GET("/conversations/:id/messages", limited, h.ListMessages)
		authed.POST("/conversations/:id/messages",
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{Required: true}, d.KeyLookup),
			limited,
			h.PostMessage)
		authed.POST("/messages/:id/read", limited, h.MarkRead)
	}
}

var (
	allowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	allowedHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderCSRFToken, middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	exposedHeaders = []string{"ETag", "Idempotency-Replayed", "Retry-After"}
)

// corsMiddleware allows any origin without credentials when origins is
// empty, and otherwise echoes allow-listed origins with credentials so the
// access_token cookie can be sent.
func corsMiddleware(origins []string) gin.HandlerFunc {
	expose := append([]string{"X-Request-ID", "Content-Length"}, exposedHeaders...)
	if len(origins) == 0 {
		return cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     allowedMethods,
			AllowHeaders:     allowedHeaders,
			ExposeHeaders:    expose,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		})
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     allowedMethods,
		AllowHeaders:     allowedHeaders,
		ExposeHeaders:    expose,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
