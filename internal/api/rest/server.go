package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/api/websocket"
	"github.com/KevinKickass/EcoShareCore/internal/config"
	"github.com/KevinKickass/EcoShareCore/internal/interfaces"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
	cfg    *config.Config
	lm     interfaces.LifecycleManager
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		cfg:    cfg,
		lm:     lm,
		logger: logger,
		wsHub:  wsHub,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware(s.cfg.Server.AllowedOrigins))

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ready", s.readinessCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== DEVICES ====================
		devices := v1.Group("/devices")
		{
			devices.GET("", s.listDevices)
			devices.POST("", s.createDevice)
			devices.GET("/:id", s.getDevice)
			devices.PUT("/:id", s.updateDevice)
			devices.DELETE("/:id", s.deleteDevice)
			devices.PUT("/:id/status", s.updateDeviceStatus)
			devices.POST("/:id/usage", s.recordUsage)
			devices.GET("/:id/usage", s.listUsage)
		}

		v1.GET("/usage/total", s.totalUsage)

		// ==================== LOCATIONS ====================
		locations := v1.Group("/locations")
		{
			locations.GET("", s.listLocations)
			locations.POST("/floors", s.addFloor)
			locations.DELETE("/floors/:floor", s.deleteFloor)
			locations.POST("/floors/:floor/spots", s.addSpot)
			locations.PUT("/spots/:spot", s.renameSpot)
			locations.PUT("/spots/:spot/status", s.setSpotStatus)
			locations.DELETE("/spots/:spot", s.deleteSpot)
		}

		// ==================== ONBOARDING ====================
		onboarding := v1.Group("/onboarding")
		{
			onboarding.GET("", s.listSessions)
			onboarding.POST("", s.startSession)
			onboarding.GET("/:session", s.getSession)
			onboarding.DELETE("/:session", s.closeSession)
			onboarding.POST("/:session/start", s.restartSession)
			onboarding.POST("/:session/basic-info", s.submitBasicInfo)
			onboarding.POST("/:session/location", s.selectLocation)
			onboarding.POST("/:session/scan", s.scanDevice)
			onboarding.POST("/:session/pair", s.pairDevice)
			onboarding.POST("/:session/cancel", s.cancelSession)
		}

		// ==================== SETTINGS ====================
		settings := v1.Group("/settings")
		{
			settings.GET("", s.getSettings)
			settings.PUT("", s.replaceSettings)
			settings.POST("/reset", s.resetSettings)
			settings.PATCH("/:section", s.patchSettings)
		}

		// ==================== SYSTEM ====================
		v1.GET("/system/status", s.getSystemStatus)

		// ==================== WEBSOCKET ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatusConnection)
			ws.GET("/clients", s.wsClients)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, websocket.StreamLive, s.cfg.Server.AllowedOrigins, c.Writer, c.Request)
}

func (s *Server) wsStatusConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, websocket.StreamStatus, s.cfg.Server.AllowedOrigins, c.Writer, c.Request)
}

func (s *Server) wsClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}
