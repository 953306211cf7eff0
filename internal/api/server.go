// Package api serves the generator's ops surface: positions,
// cooldowns, trade stats, Prometheus metrics and the consumer-group
// rewind hook.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/database"
	"meanrev-trading-bot/internal/engine"
	"meanrev-trading-bot/internal/logging"
	"meanrev-trading-bot/internal/signal"
)

// Server is the ops HTTP server.
type Server struct {
	router  *gin.Engine
	cfg     config.ServerConfig
	bus     config.BusConfig
	client  *redis.Client
	runtime *engine.Runtime
	db      *database.DB
	log     *logging.Logger
	httpSrv *http.Server
}

// NewServer builds the router.
func NewServer(cfg config.ServerConfig, bus config.BusConfig, client *redis.Client, rt *engine.Runtime, db *database.DB) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLogger())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" || cfg.AllowedOrigins == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:  router,
		cfg:     cfg,
		bus:     bus,
		client:  client,
		runtime: rt,
		db:      db,
		log:     logging.WithComponent("api"),
	}
	s.setupRoutes()
	return s
}

// accessLogger emits one structured line per request. Metric scrapes
// are skipped to keep the log readable.
func accessLogger() gin.HandlerFunc {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "api").Logger()
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/positions", s.handlePositions)
		v1.GET("/positions/:symbol", s.handlePosition)
		v1.GET("/cooldowns/:symbol", s.handleCooldowns)
		v1.GET("/stats", s.handleStats)
		v1.POST("/groups/:group/rewind", s.handleRewind)
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.log.Info("ops server listening", "addr", s.httpSrv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.client.Ping(c.Request.Context()).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePositions(c *gin.Context) {
	out := gin.H{}
	for sym, book := range s.runtime.Books() {
		out[sym] = gin.H{
			"direction": book.Direction(),
			"lots":      book.Lots(),
			"avg_entry": book.AvgEntryPrice(),
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handlePosition(c *gin.Context) {
	symbol := c.Param("symbol")
	book, ok := s.runtime.Books()[symbol]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"direction": book.Direction(),
		"lots":      book.Lots(),
		"avg_entry": book.AvgEntryPrice(),
	})
}

func (s *Server) handleCooldowns(c *gin.Context) {
	c.JSON(http.StatusOK, s.runtime.Cooldowns().State(c.Param("symbol")))
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.db.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if stats == nil {
		stats = []database.ClosedLotStats{}
	}
	c.JSON(http.StatusOK, stats)
}

type rewindRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	ID     string `json:"id" binding:"required"` // stream id, or "0" for the log start
}

// handleRewind moves a consumer group's cursor on one symbol's signal
// stream so executors replay retained history.
func (s *Server) handleRewind(c *gin.Context) {
	var req rewindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group := c.Param("group")
	stream := signal.IntentStream(s.bus.StreamPrefix, req.Symbol)
	if err := signal.Rewind(c.Request.Context(), s.client, stream, group, req.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.log.Warn("consumer group rewound", "group", group, "stream", stream, "id", req.ID)
	c.JSON(http.StatusOK, gin.H{"group": group, "stream": stream, "id": req.ID})
}
