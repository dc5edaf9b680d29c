package http

import (
	"context"
	"log/slog"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/eventreg/internal/config"
	"github.com/geocoder89/eventreg/internal/http/handlers"
	"github.com/geocoder89/eventreg/internal/http/middlewares"
	"github.com/geocoder89/eventreg/internal/observability"
	"github.com/geocoder89/eventreg/internal/validation"
)

// Dependencies are the components the router binds routes onto.
type Dependencies struct {
	Directory   handlers.EventDirectory
	Coordinator handlers.RegistrationCoordinator

	// Ping backs /readyz. Nil means always ready.
	Ping func(ctx context.Context) error

	// Prom and Gatherer are optional; without them /metrics is not mounted.
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Dependencies) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	validation.Install()

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("eventreg-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))

	h := handlers.NewHealthHandler(deps.Ping)
	r.GET("/", handlers.Root)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", observability.Handler(deps.Gatherer))
	}

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	eventsHandler := handlers.NewEventsHandler(deps.Directory, log)
	registrationHandler := handlers.NewRegistrationHandler(deps.Coordinator, log)

	api := r.Group("/event")
	if cfg.RateLimitPerMinute > 0 {
		limiter := middlewares.NewRateLimiter(cfg.RateLimitPerMinute)
		api.Use(limiter.Middleware(middlewares.KeyByIP))
	}
	api.Use(middlewares.RequireJSON())

	api.POST("", eventsHandler.CreateEvent)
	api.GET("/upcoming", eventsHandler.ListUpcoming)
	api.GET("/:id", eventsHandler.GetEvent)
	api.GET("/:id/stats", eventsHandler.Stats)

	api.POST("/register", registrationHandler.Register)
	api.POST("/cancel", registrationHandler.Cancel)

	r.NoRoute(func(ctx *gin.Context) {
		handlers.RespondNotFound(ctx, "Route not found")
	})
	r.NoMethod(func(ctx *gin.Context) {
		handlers.AbortError(ctx, nethttp.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return r
}
