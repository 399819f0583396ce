// Package httpapi wires the HTTP transport (Gin) to the inbox pipelines,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - The gateway webhook is never rate limited; console routes are
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-whatsapp-inbox/internal/config"
	"github.com/tbourn/go-whatsapp-inbox/internal/http/handlers"
	"github.com/tbourn/go-whatsapp-inbox/internal/http/middleware"
	"github.com/tbourn/go-whatsapp-inbox/internal/realtime"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
	"github.com/tbourn/go-whatsapp-inbox/internal/services"
)

// Deps carries the wired application services into the router.
type Deps struct {
	DB            *gorm.DB
	Ingest        *services.IngestService
	Dispatch      *services.DispatchService
	Messages      *services.MessageService
	Conversations *services.ConversationService
	Unread        *realtime.UnreadSynchronizer
	Hub           *realtime.Hub // nil disables /ws
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, the
// gateway webhook, the websocket feed, and then mounts the console API under
// cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. StaffUser: resolve X-User-ID before anything keys on the user
//  4. RedactingLogger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Gzip (websocket and metrics excluded)
//  9. CORS and Security headers
//
// On the API group only:
//  1. Idempotency validator (before rate limiter to allow bypass on replay)
//  2. Rate limiter (per user/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Acting staff user
	r.Use(middleware.StaffUser())

	// 4) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (base64 media travels in JSON bodies)
	r.Use(limitBody(cfg.MaxBodyBytes))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics("/ws"))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	// 9) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers: API answers carry patient data, /media serves client uploads
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{cfg.APIBasePath},
		SandboxPrefixes: []string{"/media"},
		EnablePolicy:    true,
	}))

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

	// Locally stored media is served by this process; S3 serves its own.
	if cfg.Storage.Driver == "local" {
		r.Static("/media", cfg.Storage.LocalPath)
	}

	if deps.Hub != nil {
		r.GET("/ws", gin.WrapF(deps.Hub.ServeWS))
	}

	h := handlers.New(deps.Ingest, deps.Dispatch, deps.Messages, deps.Conversations, deps.Unread)

	// Gateway webhook
	r.POST("/webhooks/evolution", h.EvolutionWebhook)
	r.POST("/webhooks/evolution/:event", h.EvolutionWebhook)

	// Console API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	db := deps.DB
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, userID, key, now)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				return false, nil
			case err != nil:
				return false, err
			}
			return true, nil
		},
	))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByStaffOrIP())
	api.Use(rl.Handler())
	{
		// Messages
		api.POST("/messages/send", h.SendMessage)

		// Conversations
		api.GET("/conversations/:id/messages", h.ListMessages)
		api.POST("/conversations/:id/read", h.MarkConversationRead)
		api.GET("/unread", h.Unread)
	}
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
