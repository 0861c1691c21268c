// Package http exposes the read-only observability API: pipeline metrics,
// risk state, positions, orders and journaled history. It never mutates
// trading state except for the explicit risk resume endpoint.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"riptide/internal/bridge"
	"riptide/internal/logger"
	"riptide/internal/order"
	"riptide/internal/position"
	"riptide/internal/risk"
	"riptide/internal/signal"
	"riptide/internal/store"
)

type Config struct {
	Addr    string
	Bridge  *bridge.Bridge
	Risk    *risk.Manager
	Orders  *order.Engine
	Ledger  *position.Ledger
	History *store.Store // optional
}

type Server struct {
	cfg    Config
	router *gin.Engine
	srv    *http.Server
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Bridge == nil || cfg.Risk == nil || cfg.Orders == nil || cfg.Ledger == nil {
		return nil, errors.New("http server: missing pipeline dependencies")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{cfg: cfg, router: router}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.POST("/signal", s.handleSignal)
	api.GET("/status", s.handleStatus)
	api.GET("/metrics", s.handleMetrics)
	api.GET("/positions", s.handlePositions)
	api.GET("/orders", s.handleOrders)
	api.GET("/risk/limits", s.handleRiskLimits)
	api.GET("/risk/metrics", s.handleRiskMetrics)
	api.GET("/risk/events", s.handleRiskEvents)
	api.POST("/risk/resume", s.handleRiskResume)
	api.GET("/history/orders", s.handleHistoryOrders)
	api.GET("/history/events", s.handleHistoryEvents)
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{Addr: s.cfg.Addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http api listening on %s", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// handleSignal is the ingest boundary for external strategy producers.
// The payload is schema-validated before it touches the pipeline; a full
// queue maps to 429 so producers can back off.
func (s *Server) handleSignal(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, err := signal.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch err := s.cfg.Bridge.Submit(sig); {
	case errors.Is(err, bridge.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, bridge.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"signal_id": sig.ID})
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"balance":  s.cfg.Ledger.TotalBalance(),
		"daily":    s.cfg.Ledger.DailyPnL(),
		"drawdown": s.cfg.Ledger.Drawdown(),
		"paused":   s.cfg.Risk.Paused(),
		"queue":    s.cfg.Bridge.Metrics().QueueDepth,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"bridge": s.cfg.Bridge.Metrics(),
		"orders": s.cfg.Orders.Stats(),
		"risk":   s.cfg.Risk.Stats(),
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	if c.Query("open") == "true" {
		c.JSON(http.StatusOK, s.cfg.Ledger.Open())
		return
	}
	c.JSON(http.StatusOK, s.cfg.Ledger.All())
}

func (s *Server) handleOrders(c *gin.Context) {
	if symbol := c.Query("symbol"); symbol != "" {
		c.JSON(http.StatusOK, s.cfg.Orders.BySymbol(symbol))
		return
	}
	if status := c.Query("status"); status != "" {
		c.JSON(http.StatusOK, s.cfg.Orders.ByStatus(order.Status(status)))
		return
	}
	c.JSON(http.StatusOK, s.cfg.Orders.Active())
}

func (s *Server) handleRiskLimits(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Risk.Limits())
}

func (s *Server) handleRiskMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Risk.Metrics())
}

func (s *Server) handleRiskEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active":   s.cfg.Risk.ActiveEvents(),
		"resolved": s.cfg.Risk.EventHistory(),
	})
}

func (s *Server) handleRiskResume(c *gin.Context) {
	s.cfg.Risk.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": s.cfg.Risk.Paused()})
}

func (s *Server) handleHistoryOrders(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	rows, err := s.cfg.History.RecentOrders(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleHistoryEvents(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	rows, err := s.cfg.History.RecentEvents(c.Request.Context(), c.Query("kind"), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || n <= 0 {
		return 100
	}
	return n
}
