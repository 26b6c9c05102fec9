// Package httpapi provides the HTTP API for inboxd.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inboxd/internal/answer"
	"github.com/fyrsmithlabs/inboxd/internal/mail"
	syncpkg "github.com/fyrsmithlabs/inboxd/internal/sync"
)

// Syncer triggers and inspects sync runs. *sync.Orchestrator satisfies
// it.
type Syncer interface {
	Start(ctx context.Context) (string, error)
	Relevant(ctx context.Context, limit int) ([]*mail.Message, error)
}

// Answerer answers questions over the index. *answer.Pipeline satisfies
// it.
type Answerer interface {
	Answer(ctx context.Context, question, extraContext string) (*answer.Response, error)
	Summary(ctx context.Context, days int) (string, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
}

// Server provides HTTP endpoints for inboxd.
type Server struct {
	echo          *echo.Echo
	config        Config
	status        *syncpkg.Status
	syncer        Syncer
	answerer      Answerer
	authenticated bool
	logger        *zap.Logger
}

// NewServer creates the HTTP server. syncer and answerer may be nil when
// the corresponding subsystem is not configured; their endpoints then
// answer 503.
func NewServer(cfg Config, status *syncpkg.Status, syncer Syncer, answerer Answerer, authenticated bool, logger *zap.Logger) (*Server, error) {
	if status == nil {
		return nil, fmt.Errorf("status container is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:          e,
		config:        cfg,
		status:        status,
		syncer:        syncer,
		answerer:      answerer,
		authenticated: authenticated,
		logger:        logger,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/sync", s.handleSync)
	v1.POST("/ask", s.handleAsk)
	v1.GET("/emails/relevant", s.handleRelevant)
	v1.GET("/summary", s.handleSummary)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	IsAuthenticated bool           `json:"is_authenticated"`
	State           syncpkg.State  `json:"sync_state"`
	Progress        int            `json:"sync_progress"`
	Message         string         `json:"sync_message"`
	Ready           bool           `json:"is_ready"`
}

// SyncResponse is the response body for POST /api/v1/sync.
type SyncResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

// Source is a retrieval citation on an answer.
type Source struct {
	Sender   string  `json:"sender"`
	Subject  string  `json:"subject"`
	Date     string  `json:"date"`
	Distance float32 `json:"distance"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
}

// EmailSummary is one entry in the relevant-emails listing.
type EmailSummary struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Subject     string `json:"subject"`
	Date        string `json:"date"`
	Unread      bool   `json:"is_unread"`
	AccountType string `json:"account_type"`
}

// SummaryResponse is the response body for GET /api/v1/summary.
type SummaryResponse struct {
	Days    int    `json:"days"`
	Summary string `json:"summary"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	snap := s.status.Snapshot()
	return c.JSON(http.StatusOK, StatusResponse{
		IsAuthenticated: s.authenticated,
		State:           snap.State,
		Progress:        snap.Progress,
		Message:         snap.Message,
		Ready:           snap.Ready,
	})
}

func (s *Server) handleSync(c echo.Context) error {
	if s.syncer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "mail provider not configured")
	}

	runID, err := s.syncer.Start(c.Request().Context())
	if err != nil {
		if errors.Is(err, syncpkg.ErrSyncInProgress) {
			return echo.NewHTTPError(http.StatusConflict, "sync already in progress")
		}
		s.logger.Error("starting sync failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start sync")
	}

	return c.JSON(http.StatusAccepted, SyncResponse{Status: "started", RunID: runID})
}

func (s *Server) handleAsk(c echo.Context) error {
	if s.answerer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "generation provider not configured")
	}

	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	resp, err := s.answerer.Answer(c.Request().Context(), req.Question, req.Context)
	if err != nil {
		s.logger.Error("answer failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to answer question")
	}

	sources := make([]Source, len(resp.Sources))
	for i, hit := range resp.Sources {
		sources[i] = Source{
			Sender:   hit.Sender,
			Subject:  hit.Subject,
			Date:     hit.Date.Format(time.DateOnly),
			Distance: hit.Distance,
		}
	}

	return c.JSON(http.StatusOK, AskResponse{
		Question: req.Question,
		Answer:   resp.Answer,
		Sources:  sources,
	})
}

func (s *Server) handleRelevant(c echo.Context) error {
	if s.syncer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "mail provider not configured")
	}

	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}

	msgs, err := s.syncer.Relevant(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("listing relevant emails failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list emails")
	}

	out := make([]EmailSummary, len(msgs))
	for i, msg := range msgs {
		out[i] = EmailSummary{
			ID:          msg.ID,
			Sender:      msg.Sender,
			Subject:     msg.Subject,
			Date:        msg.Date.Format(time.RFC3339),
			Unread:      msg.Unread,
			AccountType: string(msg.Account),
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSummary(c echo.Context) error {
	if s.answerer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "generation provider not configured")
	}

	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be a positive integer")
		}
		days = n
	}

	text, err := s.answerer.Summary(c.Request().Context(), days)
	if err != nil {
		s.logger.Error("summary failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate summary")
	}

	return c.JSON(http.StatusOK, SummaryResponse{Days: days, Summary: text})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
