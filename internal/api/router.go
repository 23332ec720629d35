package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mosaicms/mosaic/internal/api/handlers"
	"github.com/mosaicms/mosaic/internal/api/middleware"
	"github.com/mosaicms/mosaic/internal/config"
	"github.com/mosaicms/mosaic/internal/metrics"
	"github.com/mosaicms/mosaic/internal/storage/redis"
	"github.com/mosaicms/mosaic/internal/tenancy"
)

type Server struct {
	Config   *config.Config
	Router   *gin.Engine
	Registry *tenancy.Registry
	Resolver *tenancy.Resolver
	Gate     *tenancy.LicenseGate
	Cache    *redis.Client
	Logger   *zap.Logger
	Metrics  *metrics.Collector
}

func NewServer(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector, registry *tenancy.Registry, resolver *tenancy.Resolver, gate *tenancy.LicenseGate, cache *redis.Client) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger, collector))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Config:   cfg,
		Router:   router,
		Registry: registry,
		Resolver: resolver,
		Gate:     gate,
		Cache:    cache,
		Logger:   logger,
		Metrics:  collector,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	h := handlers.NewHandler(s.Registry, s.Logger)

	// Health and metrics
	s.Router.GET("/health", h.Health)
	s.Router.GET("/ready", h.Ready)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Tenant-scoped API: every request is routed to its tenant database
	api := s.Router.Group("/api/v1")
	api.Use(middleware.Tenant(s.Resolver, s.Registry, s.Gate, s.Config.Tenancy.ExposeCatalog))
	api.Use(middleware.RateLimit(s.Config.RateLimit, s.redisClient()))
	{
		api.GET("/content", h.ListContent)
		api.POST("/content", h.CreateContent)
		api.GET("/org", h.Organization)
	}

	// Admin surface (catalog diagnostics)
	adminHandler := handlers.NewAdminHandler(h, s.Config.Tenancy.DBPrefix, s.Cache)
	admin := s.Router.Group("/admin/v1")
	admin.Use(middleware.AdminRequired(s.Config.Admin.JWTSecret))
	{
		admin.GET("/databases", adminHandler.ListDatabases)
	}
}

func (s *Server) redisClient() *goredis.Client {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.Client
}
