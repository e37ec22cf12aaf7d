package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zhejian/url-shortener/shortlink/internal/model"
	"github.com/zhejian/url-shortener/shortlink/internal/service"
	"github.com/zhejian/url-shortener/shortlink/internal/telemetry"
)

// Handler holds HTTP handlers and dependencies.
// It receives interfaces rather than concrete implementations for testability.
type Handler struct {
	linkService service.LinkServiceInterface // short link business logic
	db          DBInterface                  // database connection for health checks
	cache       CacheInterface               // optional; nil when caching is disabled
	recorder    telemetry.Recorder           // remote log relay
	logger      *slog.Logger
}

// DBInterface defines the database operations needed by the handler.
type DBInterface interface {
	Ping(ctx context.Context) error
}

// CacheInterface defines the cache operations needed by the handler.
type CacheInterface interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new handler instance with the provided dependencies.
// cache and recorder may be nil.
func NewHandler(linkService service.LinkServiceInterface, db DBInterface, cache CacheInterface, recorder telemetry.Recorder, logger *slog.Logger) *Handler {
	if recorder == nil {
		recorder = telemetry.Nop{}
	}
	return &Handler{
		linkService: linkService,
		db:          db,
		cache:       cache,
		recorder:    recorder,
		logger:      logger,
	}
}

// RegisterRoutes registers all route definitions on the given Gin engine.
// The caller adds middleware before calling this method.
// Routes are organized into:
//   - Health check endpoint for monitoring
//   - Link management and analytics under /shorturls
//   - Public redirect endpoint for short link resolution
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.healthCheck)

	links := r.Group("/shorturls")
	{
		links.POST("", h.createShortURL)
		links.GET("", h.listLinks)
		links.GET("/stats/summary", h.summary)
		links.GET("/r/:code", h.redirect)
		links.GET("/:code", h.getStats)
	}

	// Redirect route (public); reserved codes keep it from shadowing the routes above
	r.GET("/:code", h.redirect)
}

// healthCheck handles GET /health
// Response codes:
//   - 200 OK: all dependencies are healthy
//   - 503 Service Unavailable: one or more dependencies are down
func (h *Handler) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	status := "ok"
	code := http.StatusOK
	deps := gin.H{"database": "up", "cache": "disabled"}

	if err := h.db.Ping(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		deps["database"] = "down"
	}
	if h.cache != nil {
		deps["cache"] = "up"
		if err := h.cache.Ping(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			deps["cache"] = "down"
		}
	}

	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// createShortURL handles POST /shorturls
// Request body: CreateLinkRequest (JSON)
// Response codes:
//   - 201 Created: short link created
//   - 400 Bad Request: invalid body, URL or shortcode
//   - 409 Conflict: shortcode already exists
//   - 500 Internal Server Error: unexpected error
func (h *Handler) createShortURL(c *gin.Context) {
	ctx := c.Request.Context()
	var req model.CreateLinkRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			slog.String("error", err.Error()),
			slog.String("path", c.Request.URL.Path))
		h.recorder.Record(ctx, telemetry.LevelWarn, "handler", "invalid request body")
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.linkService.CreateShortURL(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			h.errorResponse(c, http.StatusBadRequest, "Invalid URL")
		case errors.Is(err, service.ErrInvalidAlias):
			h.errorResponse(c, http.StatusBadRequest, "Invalid shortcode")
		case errors.Is(err, service.ErrCodeExists):
			h.errorResponse(c, http.StatusConflict, "Shortcode already exists")
		default:
			h.internalError(c, "unexpected error creating short URL", err)
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getStats handles GET /shorturls/:code
// Response codes:
//   - 200 OK: click count and click log
//   - 404 Not Found: short code does not exist
//   - 500 Internal Server Error: unexpected error
func (h *Handler) getStats(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	resp, err := h.linkService.GetStats(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLinkNotFound):
			h.errorResponse(c, http.StatusNotFound, "Short link not found")
		default:
			h.internalError(c, "unexpected error fetching stats", err, slog.String("code", code))
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// listLinks handles GET /shorturls?page=&limit=
// Missing or malformed query values fall back to page 1 and the default limit.
func (h *Handler) listLinks(c *gin.Context) {
	ctx := c.Request.Context()

	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", service.DefaultPageLimit)

	resp, err := h.linkService.ListLinks(ctx, page, limit)
	if err != nil {
		h.internalError(c, "unexpected error listing links", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// summary handles GET /shorturls/stats/summary
func (h *Handler) summary(c *gin.Context) {
	resp, err := h.linkService.Summary(c.Request.Context())
	if err != nil {
		h.internalError(c, "unexpected error building summary", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// redirect handles GET /shorturls/r/:code and GET /:code
// Response codes:
//   - 302 Found: redirects to the original URL
//   - 404 Not Found: short code does not exist
//   - 410 Gone: short link has expired
//   - 500 Internal Server Error: unexpected error
func (h *Handler) redirect(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	target, err := h.linkService.Resolve(ctx, code, model.ClickContext{
		Referer: c.Request.Referer(),
		IP:      c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLinkNotFound):
			h.errorResponse(c, http.StatusNotFound, "Short link not found")
		case errors.Is(err, service.ErrLinkExpired):
			h.errorResponse(c, http.StatusGone, "Short link has expired")
		default:
			h.internalError(c, "unexpected error during redirect", err, slog.String("code", code))
		}
		return
	}

	c.Redirect(http.StatusFound, target)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw, ok := c.GetQuery(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// internalError logs err and answers 500 without leaking details. Store
// timeouts additionally carry Retry-After since the call may succeed later.
func (h *Handler) internalError(c *gin.Context, msg string, err error, attrs ...any) {
	ctx := c.Request.Context()
	h.logger.ErrorContext(ctx, msg, append([]any{slog.String("error", err.Error())}, attrs...)...)
	h.recorder.Record(ctx, telemetry.LevelError, "handler", msg)

	if errors.Is(err, service.ErrStoreTimeout) {
		c.Header("Retry-After", "1")
	}
	h.errorResponse(c, http.StatusInternalServerError, "Internal server error")
}

// errorResponse sends a standardized JSON error response.
func (h *Handler) errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, model.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
