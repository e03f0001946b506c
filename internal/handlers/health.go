package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nexttrack/internal/logger"
	"nexttrack/internal/services/recommend"
)

// HealthResponse 健康检查响应结构
type HealthResponse struct {
	Status    string             `json:"status"`
	Timestamp int64              `json:"timestamp"`
	Signals   []recommend.Signal `json:"signals"`
	Checks    map[string]string  `json:"checks,omitempty"`
}

// HealthCheck 依赖检查，返回nil表示正常
type HealthCheck func(ctx context.Context) error

// HealthHandler 健康检查处理器
type HealthHandler struct {
	signals []recommend.Signal
	checks  map[string]HealthCheck
	logger  *logger.Logger
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(signals []recommend.Signal, checks map[string]HealthCheck) *HealthHandler {
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	return &HealthHandler{
		signals: signals,
		checks:  checks,
		logger:  logger.NewLogger("health-handler"),
	}
}

// Health 任何依赖检查失败时返回503
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Unix(),
		Signals:   h.signals,
	}
	if len(h.checks) > 0 {
		response.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", logger.Fields{
				"check": name,
				"error": err.Error(),
			})
			response.Checks[name] = err.Error()
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Checks[name] = "ok"
	}

	c.JSON(status, response)
}

// RegisterHealthRoutes 注册健康检查路由
func (h *HealthHandler) RegisterHealthRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
}
