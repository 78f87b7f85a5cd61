package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/database"
	"adaptive-trading-bot/internal/engine"
	"adaptive-trading-bot/internal/events"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	ProductionMode bool     `json:"production_mode"`
}

// DefaultServerConfig returns local-development settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:5173"},
	}
}

// Server exposes the engine over HTTP and WebSocket.
type Server struct {
	config     ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	engine     *engine.Engine
	db         *database.DB
	repo       *database.Repository
	broker     broker.HealthReporter
	hub        *WSHub
	logger     zerolog.Logger
}

// NewServer creates the API server. Repo and db may be nil when persistence
// is disabled; the trade-history endpoints then return 503. A nil health
// reporter leaves broker connectivity unreported.
func NewServer(config ServerConfig, eng *engine.Engine, db *database.DB, repo *database.Repository, health broker.HealthReporter, bus *events.Bus, logger zerolog.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		config: config,
		router: router,
		engine: eng,
		db:     db,
		repo:   repo,
		broker: health,
		hub:    NewWSHub(logger),
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()

	// Everything the engine publishes streams to connected clients.
	bus.SubscribeAll(s.hub.BroadcastEvent)

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/positions", s.handlePositions)
		api.GET("/positions/:ticket/adjustments", s.handlePositionAdjustments)
		api.GET("/regimes", s.handleRegimes)
		api.GET("/decisions", s.handleDecisions)
		api.GET("/adjustments", s.handleAdjustments)
		api.GET("/trades", s.handleTrades)
		api.GET("/performance", s.handlePerformance)
		api.GET("/config", s.handleGetConfig)
		api.PUT("/config", s.handlePutConfig)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Start runs the WebSocket hub and blocks serving HTTP.
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	dbStatus := "disabled"
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
			})
			return
		}
		dbStatus = "healthy"
	}

	body := gin.H{
		"status":   "healthy",
		"database": dbStatus,
		"engine":   s.engine.Status().Running,
	}
	code := http.StatusOK
	if s.broker != nil {
		health := s.broker.Health()
		body["broker"] = string(health)
		if err := s.broker.LastError(); err != nil {
			body["broker_error"] = err.Error()
		}
		if health == broker.HealthDown {
			body["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, body)
}
