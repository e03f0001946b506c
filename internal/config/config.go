package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
)

// Config 应用配置结构
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	Links          LinksConfig          `mapstructure:"links"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Token          TokenConfig          `mapstructure:"token"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"` // WebSocket来源白名单，空表示不限制
}

// DatabaseConfig 数据库配置，type为memory时播放列表只保存在进程内
type DatabaseConfig struct {
	Type         string `mapstructure:"type"`
	Path         string `mapstructure:"path"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// CatalogConfig 曲库(MusicBrainz)配置
type CatalogConfig struct {
	BaseURL        string               `mapstructure:"base_url"`
	UserAgent      string               `mapstructure:"user_agent"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	RetryTimes     int                  `mapstructure:"retry_times"`
	RetryDelay     time.Duration        `mapstructure:"retry_delay"`
	SearchLimit    int                  `mapstructure:"search_limit"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Cache          CatalogCacheConfig   `mapstructure:"cache"`
}

// CatalogCacheConfig 推荐候选缓存配置
type CatalogCacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	TTL             time.Duration `mapstructure:"ttl"`
	MaxSize         int           `mapstructure:"max_size"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// LinksConfig 外链配置
type LinksConfig struct {
	YouTube YouTubeConfig `mapstructure:"youtube"`
}

// YouTubeConfig YouTube Data API配置
type YouTubeConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RecommendationConfig 推荐配置
type RecommendationConfig struct {
	DefaultSignal         string `mapstructure:"default_signal"`
	MaxCandidates         int    `mapstructure:"max_candidates"`
	ExcludePlaylistTracks bool   `mapstructure:"exclude_playlist_tracks"`
}

// TokenConfig 播放列表令牌配置
type TokenConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsPath    string `mapstructure:"metrics_path"`
}

var (
	globalConfig *Config
	configLogger = logger.NewLogger("config")
)

// validSignals 支持的推荐信号
var validSignals = []string{"artist", "tags", "temporal", "length", "random", "hybrid"}

// setDefaults 写入默认值，配置文件只需覆盖差异部分
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/nexttrack.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)

	v.SetDefault("catalog.base_url", "https://musicbrainz.org/ws/2/")
	v.SetDefault("catalog.user_agent", "nexttrack/1.0 ( nexttrack@example.com )")
	v.SetDefault("catalog.timeout", "10s")
	v.SetDefault("catalog.retry_times", 2)
	v.SetDefault("catalog.retry_delay", "500ms")
	v.SetDefault("catalog.search_limit", 25)
	v.SetDefault("catalog.rate_limit.requests_per_second", 1.0)
	v.SetDefault("catalog.rate_limit.burst_size", 1)
	v.SetDefault("catalog.circuit_breaker.max_requests", 1)
	v.SetDefault("catalog.circuit_breaker.interval", "60s")
	v.SetDefault("catalog.circuit_breaker.timeout", "30s")
	v.SetDefault("catalog.circuit_breaker.failure_threshold", 5)
	v.SetDefault("catalog.cache.enabled", true)
	v.SetDefault("catalog.cache.ttl", "10m")
	v.SetDefault("catalog.cache.max_size", 500)
	v.SetDefault("catalog.cache.cleanup_interval", "5m")

	v.SetDefault("links.youtube.enabled", false)
	v.SetDefault("links.youtube.base_url", "https://www.googleapis.com/youtube/v3/")
	v.SetDefault("links.youtube.timeout", "5s")

	v.SetDefault("recommendation.default_signal", "hybrid")
	v.SetDefault("recommendation.max_candidates", 50)
	v.SetDefault("recommendation.exclude_playlist_tracks", true)

	v.SetDefault("token.issuer", "nexttrack")
	v.SetDefault("token.ttl", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.metrics_enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NEXTTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("token.secret", "NEXTTRACK_TOKEN_SECRET")
	v.BindEnv("links.youtube.api_key", "NEXTTRACK_YOUTUBE_API_KEY")
	v.BindEnv("database.path", "NEXTTRACK_DATABASE_PATH")
	return v
}

// Load 加载配置文件，configPath为空时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	configLogger = logger.NewLogger("config")
	v := newViper()

	configLogger.Info("Loading configuration", logger.Fields{
		"config_path": configPath,
	})

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			appErr := errors.ErrConfigInvalid("config_file", err.Error()).
				WithCause(err).
				WithContext(map[string]interface{}{
					"config_path": configPath,
				})
			configLogger.LogAppError(appErr, "Failed to read configuration file")
			return nil, appErr
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		appErr := errors.ErrConfigInvalid("config_unmarshal", err.Error()).WithCause(err)
		configLogger.LogAppError(appErr, "Failed to unmarshal configuration")
		return nil, appErr
	}

	processEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		if appErr, ok := errors.As(err); ok {
			configLogger.LogAppError(appErr, "Configuration validation failed")
		}
		return nil, err
	}

	globalConfig = config
	configLogger.Info("Configuration loaded successfully", logger.Fields{
		"server_port":     config.Server.Port,
		"database_type":   config.Database.Type,
		"default_signal":  config.Recommendation.DefaultSignal,
		"youtube_enabled": config.Links.YouTube.Enabled,
		"metrics_enabled": config.Monitoring.MetricsEnabled,
	})

	return config, nil
}

// Default 返回只包含默认值的配置
func Default() *Config {
	config := &Config{}
	_ = newViper().Unmarshal(config)
	return config
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return errors.ErrConfigInvalid("server.port", "must be between 1 and 65535")
	}
	if config.Server.Mode != "development" && config.Server.Mode != "production" {
		return errors.ErrConfigInvalid("server.mode", "must be 'development' or 'production'")
	}

	switch config.Database.Type {
	case "sqlite", "memory":
	default:
		return errors.ErrConfigInvalid("database.type", "must be 'sqlite' or 'memory'")
	}
	if config.Database.Type == "sqlite" && config.Database.Path == "" {
		return errors.ErrConfigMissing("database.path")
	}

	if config.Catalog.BaseURL == "" {
		return errors.ErrConfigMissing("catalog.base_url")
	}
	if config.Catalog.UserAgent == "" {
		return errors.ErrConfigMissing("catalog.user_agent")
	}
	if config.Catalog.SearchLimit <= 0 || config.Catalog.SearchLimit > 100 {
		return errors.ErrConfigInvalid("catalog.search_limit", "must be between 1 and 100")
	}
	if config.Catalog.RateLimit.RequestsPerSecond <= 0 {
		return errors.ErrConfigInvalid("catalog.rate_limit.requests_per_second", "must be greater than 0")
	}

	if config.Links.YouTube.Enabled && config.Links.YouTube.APIKey == "" {
		return errors.ErrConfigMissing("links.youtube.api_key")
	}

	if !IsValidSignal(config.Recommendation.DefaultSignal) {
		return errors.ErrConfigInvalid("recommendation.default_signal",
			"must be one of: "+strings.Join(validSignals, ", "))
	}
	if config.Recommendation.MaxCandidates <= 0 {
		return errors.ErrConfigInvalid("recommendation.max_candidates", "must be greater than 0")
	}

	if config.Token.TTL <= 0 {
		return errors.ErrConfigInvalid("token.ttl", "must be greater than 0")
	}
	if config.Server.Mode == "production" && config.Token.Secret == "" {
		return errors.ErrConfigMissing("token.secret")
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	case "":
		return errors.ErrConfigMissing("logging.level")
	default:
		return errors.ErrConfigInvalid("logging.level", "must be one of: debug, info, warn, error")
	}

	return nil
}

// processEnvironmentOverrides 处理环境变量覆盖
func processEnvironmentOverrides(config *Config) {
	if secret := os.Getenv("NEXTTRACK_TOKEN_SECRET"); secret != "" {
		config.Token.Secret = secret
		configLogger.Debug("Token secret loaded from environment variable")
	}

	if apiKey := os.Getenv("NEXTTRACK_YOUTUBE_API_KEY"); apiKey != "" {
		config.Links.YouTube.APIKey = apiKey
		config.Links.YouTube.Enabled = true
		configLogger.Debug("YouTube API key loaded from environment variable")
	}

	if dbPath := os.Getenv("NEXTTRACK_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
		configLogger.Debug("Database path loaded from environment variable")
	}

	if config.Token.Secret == "" && config.Server.Mode != "production" {
		configLogger.Warn("Token secret is empty - playlist tokens use an insecure development secret")
		config.Token.Secret = "nexttrack-development-secret"
	}
}

// IsValidSignal 检查推荐信号名称
func IsValidSignal(signal string) bool {
	for _, s := range validSignals {
		if s == signal {
			return true
		}
	}
	return false
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		configLogger.Error("Configuration not loaded", logger.Fields{
			"error": "globalConfig is nil",
		})
		return nil
	}
	return globalConfig
}

// IsProduction 检查是否为生产环境
func IsProduction() bool {
	if globalConfig == nil {
		return false
	}
	return globalConfig.Server.Mode == "production"
}

// GetServerAddress 获取服务器地址
func GetServerAddress() string {
	if globalConfig == nil {
		return ":8080"
	}
	return fmt.Sprintf("%s:%d", globalConfig.Server.Host, globalConfig.Server.Port)
}
