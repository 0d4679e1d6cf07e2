// Package httpapi exposes the ingestion trigger and read-only views over
// HTTP.
//
// Routes:
//
//	POST /api/v1/ingest       enqueue and run a refresh job (secret required)
//	GET  /api/v1/jobs/:id     inspect a job (secret required)
//	GET  /api/v1/events.ics   iCalendar feed of approved events
//	GET  /healthz             database liveness
//	GET  /metrics             Prometheus metrics
//
// Every error response is a JSON object {"error": ..., "code": ...}.
package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pfrederiksen/club-sync/internal/calendar"
	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/jobs"
	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/metrics"
	"github.com/pfrederiksen/club-sync/internal/storage"
)

// SecretHeader carries the pre-shared ingestion secret
const SecretHeader = "X-Ingest-Secret"

// Error codes
const (
	CodeUnauthorized = "unauthorized"
	CodeInvalidBody  = "invalid_body"
	CodeUnknownType  = "unknown_type"
	CodeInvalidID    = "invalid_id"
	CodeNotFound     = "not_found"
	CodeJobFailed    = "job_failed"
	CodeInternal     = "internal"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	JobID uint   `json:"job_id,omitempty"`
}

// Options configures a Server
type Options struct {
	Addr         string
	IngestSecret string
	Orchestrator *jobs.Orchestrator
	Store        *storage.Storage
	Metrics      *metrics.Metrics
	Calendar     calendar.Options
}

// Server is the HTTP front end
type Server struct {
	echo         *echo.Echo
	addr         string
	secret       [sha256.Size]byte
	hasSecret    bool
	orchestrator *jobs.Orchestrator
	store        *storage.Storage
	metrics      *metrics.Metrics
	calendar     calendar.Options
	now          func() time.Time
	enqueued     func(ctx context.Context, job *entity.Job) // runs between enqueue and claim
}

// New creates a server with its routes registered
func New(opts Options) *Server {
	s := &Server{
		echo:         echo.New(),
		addr:         opts.Addr,
		secret:       sha256.Sum256([]byte(opts.IngestSecret)),
		hasSecret:    opts.IngestSecret != "",
		orchestrator: opts.Orchestrator,
		store:        opts.Store,
		metrics:      opts.Metrics,
		calendar:     opts.Calendar,
		now:          time.Now,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestLogger)

	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/api/v1/events.ics", s.handleEventsICS)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.echo.Group("/api/v1", s.requireSecret)
	api.POST("/ingest", s.handleIngest)
	api.GET("/jobs/:id", s.handleGetJob)
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	logger.Info("HTTP server listening", logger.Fields{"addr": s.addr})
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requireSecret compares the secret header in constant time. Comparing
// digests keeps the comparison independent of the header length.
func (s *Server) requireSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		provided := sha256.Sum256([]byte(c.Request().Header.Get(SecretHeader)))
		if !s.hasSecret || subtle.ConstantTimeCompare(provided[:], s.secret[:]) != 1 {
			logger.Warn("Rejected request with bad ingest secret", logger.Fields{
				"path":      c.Path(),
				"remote_ip": c.RealIP(),
			})
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or missing ingest secret", Code: CodeUnauthorized})
		}
		return next(c)
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		logger.Debug("HTTP request", logger.Fields{
			"method":   c.Request().Method,
			"path":     c.Request().URL.Path,
			"status":   c.Response().Status,
			"duration": time.Since(start).String(),
		})
		return nil
	}
}

// handleError renders echo errors in the common error shape
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: "internal server error", Code: CodeInternal}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			resp.Error = msg
		} else {
			resp.Error = http.StatusText(status)
		}
		if status == http.StatusNotFound {
			resp.Code = CodeNotFound
		}
	} else {
		logger.Error("Unhandled HTTP error", logger.Fields{"path": c.Path()}, err)
	}

	if err := c.JSON(status, resp); err != nil {
		logger.Error("Writing error response failed", logger.Fields{}, err)
	}
}
