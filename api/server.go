package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/cache"
	"example.com/hdtickets/services/discovery/config"
	"example.com/hdtickets/services/discovery/purchase"
	"example.com/hdtickets/services/discovery/repositories"
	"example.com/hdtickets/services/discovery/stats"
)

// Server is the HTTP server for the API
type Server struct {
	cfg        config.Config
	router     *gin.Engine
	httpServer *http.Server

	tickets   repositories.TicketRepository
	alerts    repositories.AlertRuleRepository
	purchases repositories.PurchaseRepository
	cache     *cache.RedisCache
	recorder  stats.Recorder
	engine    *purchase.Engine
}

// NewServer creates a new API server
func NewServer(
	cfg config.Config,
	tickets repositories.TicketRepository,
	alerts repositories.AlertRuleRepository,
	purchases repositories.PurchaseRepository,
	ticketCache *cache.RedisCache,
	recorder stats.Recorder,
	engine *purchase.Engine,
) *Server {
	server := &Server{
		cfg:       cfg,
		router:    gin.New(),
		tickets:   tickets,
		alerts:    alerts,
		purchases: purchases,
		cache:     ticketCache,
		recorder:  recorder,
		engine:    engine,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware adds middleware to the router
func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware())
	s.router.Use(CORSMiddleware())
	s.router.Use(gin.Recovery())
	s.router.Use(LoggingMiddleware())
}

// setupRoutes defines the API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	// Prometheus scrape endpoint
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")

	ticketRoutes := v1.Group("/tickets")
	{
		ticketRoutes.GET("", s.listTickets)
		ticketRoutes.GET("/:id", s.getTicket)
	}

	alertRoutes := v1.Group("/alerts")
	{
		alertRoutes.POST("/rules", s.createAlertRule)
	}

	purchaseRoutes := v1.Group("/purchases")
	{
		purchaseRoutes.POST("", s.createPurchase)
		purchaseRoutes.GET("/:id", s.getPurchase)
		purchaseRoutes.POST("/:id/cancel", s.cancelPurchase)
		purchaseRoutes.POST("/:id/refund", s.refundPurchase)
	}

	v1.GET("/stats/:platform", s.getStats)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.HTTPServerAddress,
		Handler: s.router,
	}

	log.Info().Msgf("HTTP server starting on %s", s.cfg.HTTPServerAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
