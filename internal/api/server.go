// Package api serves a read-only HTTP view of recorded markets, signals,
// indicators and trades, the position cache, health and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"SpikeSentinel/internal/model"
	"SpikeSentinel/internal/recorder"
)

const maxLimit = 500

// PositionLister exposes the cached open positions.
type PositionLister interface {
	Positions(ctx context.Context) ([]model.Position, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr        string
	CORSOrigins []string
	Production  bool
}

// Server is the read-only API.
type Server struct {
	router     *gin.Engine
	store      recorder.Store
	positions  PositionLister
	status     func() any
	cfg        Config
	httpServer *http.Server
	logger     zerolog.Logger
	started    time.Time
}

// NewServer builds the router. status may be nil.
func NewServer(cfg Config, store recorder.Store, positions PositionLister, status func() any, logger zerolog.Logger) *Server {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	if len(cfg.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
		router.Use(cors.New(corsConfig))
	}

	s := &Server{
		router:    router,
		store:     store,
		positions: positions,
		status:    status,
		cfg:       cfg,
		logger:    logger.With().Str("component", "api").Logger(),
		started:   time.Now(),
	}
	router.Use(s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/markets", s.handleList(recorder.KindMarket))
		api.GET("/indicators", s.handleList(recorder.KindIndicator))
		api.GET("/signals", s.handleList(recorder.KindSignal))
		api.GET("/trades", s.handleList(recorder.KindTrade))
		api.GET("/positions", s.handlePositions)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().Str("method", c.Request.Method).Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).Dur("latency", time.Since(start)).Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.status != nil {
		body["bot"] = s.status()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleList(kind recorder.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		recs, err := s.store.List(c.Request.Context(), kind, limit)
		if err != nil {
			s.logger.Error().Err(err).Str("kind", string(kind)).Msg("list records")
			errorResponse(c, http.StatusInternalServerError, "failed to load records")
			return
		}
		if recs == nil {
			recs = []recorder.Record{}
		}
		successResponse(c, recs)
	}
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.positions.Positions(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list positions")
		errorResponse(c, http.StatusInternalServerError, "failed to load positions")
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	successResponse(c, positions)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 100, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
