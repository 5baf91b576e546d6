// Package httpapi exposes the ledger over HTTP/JSON for the browser client.
// It is plumbing around the engine: request parsing, bearer-token resolution
// through the auth gate, and mapping of typed ledger results to status codes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pavelzar/paylink/internal/auth"
	"github.com/pavelzar/paylink/internal/domain"
	"github.com/pavelzar/paylink/internal/ratelimit"
)

// principalKey is the fiber.Ctx local under which the authenticated account
// id is stored by the auth middleware.
const principalKey = "account_id"

// Server wires the fiber app, the ledger engine and the auth gate.
type Server struct {
	app     *fiber.App
	engine  *domain.LedgerEngine
	gate    *auth.Gate
	limiter *ratelimit.MapLimiter
	logger  *zap.Logger
}

// NewServer builds the HTTP surface. Registry may be nil to disable /metrics;
// limiter may be nil to disable transfer throttling.
func NewServer(
	engine *domain.LedgerEngine,
	gate *auth.Gate,
	limiter *ratelimit.MapLimiter,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		engine:  engine,
		gate:    gate,
		limiter: limiter,
		logger:  logger,
	}

	s.app.Use(cors.New())
	s.app.Use(s.requestLogger())

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if registry != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := s.app.Group("/api/v1")

	api.Post("/user/signup", s.handleSignup)
	api.Post("/user/signin", s.handleSignin)
	api.Get("/user/bulk", s.handleListUsers)

	account := api.Group("/account", s.protected())
	account.Get("/balance", s.handleBalance)
	account.Get("/history", s.handleHistory)
	account.Post("/transfer", s.rateLimited(), s.handleTransfer)

	return s
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops accepting new requests and drains active ones.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

// protected resolves the bearer token to an account identity before any
// ledger work happens; resolution never runs under a ledger lock.
func (s *Server) protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		accountID, err := s.gate.ResolvePrincipal(c.Context(), token)
		if err != nil {
			return sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing bearer token")
		}
		c.Locals(principalKey, accountID)
		return c.Next()
	}
}

// rateLimited throttles the calling principal with a token bucket.
func (s *Server) rateLimited() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := ""
		if id, ok := principal(c); ok {
			key = id.String()
		}
		if !s.limiter.Allow(key, time.Now()) {
			return sendError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many transfer requests")
		}
		return c.Next()
	}
}
