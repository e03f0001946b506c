package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"nexttrack/internal/config"
	"nexttrack/internal/handlers"
	"nexttrack/internal/logger"
	"nexttrack/internal/services/catalog"
	"nexttrack/internal/services/links"
	"nexttrack/internal/services/orchestrator"
	"nexttrack/internal/services/playlist"
	"nexttrack/internal/services/recommend"
)

func main() {
	configPath := flag.String("config", os.Getenv("NEXTTRACK_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", logger.Fields{"error": err.Error()})
	}

	log, err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, "nexttrack")
	if err != nil {
		logger.Fatal("Failed to initialize logger", logger.Fields{"error": err.Error()})
	}

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 播放列表存储
	var (
		store  playlist.Store
		checks = map[string]handlers.HealthCheck{}
	)
	switch cfg.Database.Type {
	case "memory":
		store = playlist.NewMemoryStore()
	default:
		db, err := playlist.OpenDatabase(cfg.Database)
		if err != nil {
			log.Fatal("Failed to open database", logger.Fields{"error": err.Error()})
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal("Failed to access database handle", logger.Fields{"error": err.Error()})
		}
		defer sqlDB.Close()
		checks["database"] = sqlDB.PingContext

		sqliteStore, err := playlist.NewSQLiteStore(db, cfg.Database.AutoMigrate)
		if err != nil {
			log.Fatal("Failed to prepare playlist store", logger.Fields{"error": err.Error()})
		}
		store = sqliteStore
	}

	tokens, err := playlist.NewTokenService(cfg.Token)
	if err != nil {
		log.Fatal("Failed to create token service", logger.Fields{"error": err.Error()})
	}

	catalogClient, err := catalog.NewClient(cfg.Catalog)
	if err != nil {
		log.Fatal("Failed to create catalog client", logger.Fields{"error": err.Error()})
	}

	var searcher catalog.Searcher = catalogClient
	if cfg.Catalog.Cache.Enabled {
		cache := catalog.NewCachedSearcher(catalogClient, cfg.Catalog.Cache)
		defer cache.Close()
		searcher = cache
	}

	engine := recommend.NewEngine()
	service := orchestrator.NewService(
		store,
		tokens,
		searcher,
		links.NewYouTubeLinker(cfg.Links.YouTube),
		engine,
		cfg.Recommendation,
	)

	router := handlers.NewRouter(handlers.RouterOptions{
		Search:         catalogClient,
		Playlists:      handlers.NewPlaylistHandler(store, tokens, catalogClient),
		Recommender:    service,
		HealthChecks:   checks,
		Signals:        engine.Signals(),
		MetricsEnabled: cfg.Monitoring.MetricsEnabled,
		MetricsPath:    cfg.Monitoring.MetricsPath,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         config.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("Server starting", logger.Fields{
			"address":        srv.Addr,
			"mode":           cfg.Server.Mode,
			"default_signal": cfg.Recommendation.DefaultSignal,
			"database":       cfg.Database.Type,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", logger.Fields{"error": err.Error()})
		}
	}()

	// 等待中断信号优雅关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}
