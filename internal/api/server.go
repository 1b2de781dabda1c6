// Package api is the public, read-only HTTP surface of the indexer.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/agent-ledger-indexer/internal/detail"
	"github.com/p-blackswan/agent-ledger-indexer/internal/health"
	"github.com/p-blackswan/agent-ledger-indexer/internal/metrics"
	"github.com/p-blackswan/agent-ledger-indexer/internal/projection"
	"github.com/p-blackswan/agent-ledger-indexer/internal/requestid"
)

// Projection serves the event-folded collections. *projection.Cache
// satisfies it.
type Projection interface {
	GetOrRebuild(ctx context.Context) (*projection.Snapshot, error)
	Agents(ctx context.Context) ([]projection.Agent, error)
	Tasks(ctx context.Context) ([]projection.Task, error)
	Curves(ctx context.Context) ([]projection.Curve, error)
}

// Details serves per-entity views. *detail.Service satisfies it.
type Details interface {
	Agent(ctx context.Context, principal string) (*detail.AgentDetail, error)
	Task(ctx context.Context, id uint64) (*detail.TaskDetail, error)
	Curve(ctx context.Context, id uint64) (*detail.CurveDetail, error)
	Quote(ctx context.Context, id uint64, side detail.Side, amount uint256.Int) (*detail.Quote, error)
	Balance(ctx context.Context, id uint64, holder string) (*detail.Balance, error)
	Stats(ctx context.Context, snap *projection.Snapshot) *detail.Stats
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr  string
	CORSOrigins string
	RateLimit   RateLimitConfig
	// CacheTTL is how long collection responses are cached at the boundary.
	CacheTTL time.Duration
}

// Deps are the services behind the routes.
type Deps struct {
	Projection Projection
	Details    Details
	Checker    *health.Checker
	Metrics    *metrics.Metrics
}

// Server is the API Fiber application.
type Server struct {
	app     *fiber.App
	limiter *rateLimiter
	logger  zerolog.Logger
	config  ServerConfig
}

// NewServer creates and configures the API server.
func NewServer(cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = projection.DefaultTTL
	}
	logger = logger.With().Str("component", "api").Logger()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:    app,
		logger: logger,
		config: cfg,
	}
	s.setupMiddleware(cfg, deps.Metrics)
	s.setupRoutes(cfg, deps)
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, m *metrics.Metrics) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(func(c *fiber.Ctx) error {
		id := requestid.Resolve(c.Get(requestid.Header))
		c.Set(requestid.Header, id)
		c.Locals("request_id", id)
		c.SetUserContext(requestid.WithRequestID(c.UserContext(), id))
		return c.Next()
	})

	s.app.Use(s.observe(m))

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, X-Request-ID",
			AllowMethods: "GET, HEAD, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit)
		go s.limiter.janitor()
		s.app.Use(s.limiter.middleware())
	}
}

// observe records request metrics and writes the access log. Probes are
// measured but not logged.
func (s *Server) observe(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
		}
		route := c.Route().Path
		m.RecordHTTP(route, status, elapsed.Seconds())

		if !isProbe(c.Path()) {
			s.logger.Info().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("route", route).
				Int("status", status).
				Dur("duration", elapsed).
				Str("ip", c.IP()).
				Str("request_id", fmt.Sprintf("%v", c.Locals("request_id"))).
				Msg("api request")
		}
		return err
	}
}

func (s *Server) setupRoutes(cfg ServerConfig, deps Deps) {
	h := &handlers{
		projection:   deps.Projection,
		details:      deps.Details,
		checker:      deps.Checker,
		cacheControl: fmt.Sprintf("public, max-age=%d", int(cfg.CacheTTL.Seconds())),
		logger:       s.logger,
	}

	s.app.Get("/healthz", h.liveness)
	s.app.Get("/readyz", h.readiness)
	s.app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))

	// Collections share one boundary cache keyed by the full URL. Only 200s
	// are stored so an outage is not pinned for a whole TTL.
	collections := cache.New(cache.Config{
		Expiration:   cfg.CacheTTL,
		CacheControl: true,
		KeyGenerator: func(c *fiber.Ctx) string {
			return utils.CopyString(c.OriginalURL())
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Response().StatusCode() != fiber.StatusOK
		},
	})

	api := s.app.Group("/api")
	api.Get("/agents", collections, h.listAgents)
	api.Get("/tasks", collections, h.listTasks)
	api.Get("/curves", collections, h.listCurves)
	api.Get("/leaderboard", collections, h.leaderboard)
	api.Get("/stats", h.stats)

	api.Get("/agents/:principal", h.agent)
	api.Get("/tasks/:id", h.task)
	api.Get("/curves/:id", h.curve)
	api.Get("/curves/:id/quote", h.quote)
	api.Get("/curves/:id/balance/:holder", h.balance)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("api server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server and stops the rate limiter's
// janitor.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("api server shutting down")
	if s.limiter != nil {
		s.limiter.close()
	}
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}
