package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/zhejian/url-shortener/shortlink/internal/api"
	"github.com/zhejian/url-shortener/shortlink/internal/config"
	"github.com/zhejian/url-shortener/shortlink/internal/events"
	"github.com/zhejian/url-shortener/shortlink/internal/middleware"
	"github.com/zhejian/url-shortener/shortlink/internal/observability"
	"github.com/zhejian/url-shortener/shortlink/internal/repository"
	"github.com/zhejian/url-shortener/shortlink/internal/service"
	"github.com/zhejian/url-shortener/shortlink/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps are the long-lived resources the router is built on.
// Cache, Obs, Recorder and Publisher are optional.
type Deps struct {
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Obs       *observability.Observability
	Recorder  telemetry.Recorder
	Publisher events.ClickPublisher
}

// redisPinger adapts *redis.Client to api.CacheInterface.
type redisPinger struct{ client *redis.Client }

func (r *redisPinger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// NewRouter initializes all dependencies and returns a configured Gin router.
// This is useful for testing where you don't need the full HTTP server.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	logger := slog.Default()
	if deps.Obs != nil {
		logger = deps.Obs.Logger
	}

	var linkRepo repository.LinkRepositoryInterface = repository.NewLinkRepository(deps.DB, cfg.Database.Timeout)
	var cache api.CacheInterface
	if deps.Cache != nil {
		linkRepo = repository.NewCachedLinkRepository(linkRepo, deps.Cache, cfg.Cache.TTL)
		cache = &redisPinger{client: deps.Cache}
	}

	linkService := service.NewLinkService(linkRepo, service.Options{
		BaseURL:         cfg.App.BaseURL,
		DefaultValidity: cfg.App.DefaultValidity,
		CodeAttempts:    cfg.App.ShortCodeAttempts,
		ReservedCodes:   cfg.App.ReservedCodes,
		Generator:       service.NewRandomGenerator(cfg.App.ShortCodeLen),
		Recorder:        deps.Recorder,
		Publisher:       deps.Publisher,
		Logger:          logger,
	})
	handler := api.NewHandler(linkService, deps.DB, cache, deps.Recorder, logger)

	r := gin.New()
	r.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.Observability.ServiceName),
		middleware.Logging(logger),
	)

	if deps.Obs != nil && deps.Obs.Registry != nil {
		r.GET("/metrics", gin.WrapH(observability.MetricsHandler(deps.Obs.Registry)))
	}
	handler.RegisterRoutes(r)

	return r
}

// NewServer initializes all dependencies and returns a configured HTTP server.
// This includes the router plus HTTP server settings (timeouts, address, etc.).
func NewServer(cfg *config.Config, deps Deps) *http.Server {
	router := NewRouter(cfg, deps)

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
