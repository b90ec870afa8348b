package handlers

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"motion-transfer-backend/internal/metrics"
	"motion-transfer-backend/internal/middleware"
)

// RouterConfig carries everything the HTTP surface is assembled from.
type RouterConfig struct {
	Projects *ProjectsHandler
	Health   *HealthHandler
	Metrics  *metrics.Metrics
	Log      logrus.FieldLogger

	// UploadDir is served under UploadURLPrefix when non-empty (local storage backend).
	UploadDir       string
	UploadURLPrefix string

	CORSOrigins    []string
	AuthJWTSecret  string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(cfg.Metrics.Middleware())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", cfg.Health.Check)
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	if cfg.UploadDir != "" {
		router.Static(cfg.UploadURLPrefix, cfg.UploadDir)
	}

	api := router.Group("/api")
	if cfg.RateLimitRPS > 0 {
		api.Use(middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware())
	}
	if cfg.AuthJWTSecret != "" {
		api.Use(middleware.AuthMiddleware(cfg.AuthJWTSecret))
	}

	api.POST("/projects", cfg.Projects.CreateProject)
	api.GET("/projects/:id", cfg.Projects.GetProject)
	api.POST("/projects/:id/process", cfg.Projects.ProcessProject)

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", middleware.RequestIDHeader)
	c.ExposeHeaders = []string{middleware.RequestIDHeader}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
