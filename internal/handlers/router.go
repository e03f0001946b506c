package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nexttrack/internal/logger"
	"nexttrack/internal/metrics"
	"nexttrack/internal/services/recommend"
)

// RouterOptions 路由依赖，未提供的处理器对应路由返回503
type RouterOptions struct {
	Search         SearchEngineInterface
	Playlists      *PlaylistHandler
	Recommender    RecommenderInterface
	HealthChecks   map[string]HealthCheck
	Signals        []recommend.Signal
	MetricsEnabled bool
	MetricsPath    string
	AllowedOrigins []string
}

// NewRouter 组装HTTP路由
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(), MetricsMiddleware())

	NewHealthHandler(opts.Signals, opts.HealthChecks).RegisterHealthRoutes(r)

	if opts.MetricsEnabled {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")
	api.GET("/search", NewSearchHandler(opts.Search).Search)
	api.POST("/recommendations", NewRecommendationHandler(opts.Recommender).GetRecommendations)
	if opts.Playlists != nil {
		opts.Playlists.RegisterRoutes(api)
	}

	NewQueueHandler(opts.Recommender, opts.AllowedOrigins).RegisterRoutes(r)
	return r
}

// MetricsMiddleware 按路由模板记录请求数和耗时
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
