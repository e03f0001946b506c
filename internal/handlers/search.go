package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nexttrack/internal/logger"
	"nexttrack/internal/services/catalog"
)

// SearchEngineInterface 曲库搜索接口
type SearchEngineInterface interface {
	Search(ctx context.Context, q catalog.Query) (*catalog.SearchResult, error)
}

// SearchHandler 搜索API处理器
type SearchHandler struct {
	searchEngine SearchEngineInterface
	logger       *logger.Logger
}

// NewSearchHandler 创建搜索处理器
func NewSearchHandler(searchEngine SearchEngineInterface) *SearchHandler {
	return &SearchHandler{
		searchEngine: searchEngine,
		logger:       logger.NewLogger("search-handler"),
	}
}

// SearchRequest 搜索查询参数
type SearchRequest struct {
	Query  string `form:"q"`
	Artist string `form:"artist"`
	Track  string `form:"track"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// SearchResponse 搜索响应结构
type SearchResponse struct {
	Success bool `json:"success"`
	*catalog.SearchResult
	ProcessTime time.Duration `json:"process_time"`
}

// Search 搜索曲库中的录音
// @Summary 曲目搜索
// @Tags search
// @Produce json
// @Param q query string false "自由查询"
// @Param artist query string false "艺术家"
// @Param track query string false "曲名"
// @Success 200 {object} SearchResponse "搜索成功"
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Failure 503 {object} ErrorResponse "曲库不可用"
// @Router /api/v1/search [get]
func (h *SearchHandler) Search(c *gin.Context) {
	startTime := time.Now()

	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	if h.searchEngine == nil {
		h.logger.Error("Search engine is not initialized")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Success: false,
			Message: "Search service is not available",
		})
		return
	}

	result, err := h.searchEngine.Search(c.Request.Context(), catalog.Query{
		Text:   req.Query,
		Artist: req.Artist,
		Track:  req.Track,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		respondError(c, h.logger, err, "Search failed")
		return
	}

	processTime := time.Since(startTime)
	h.logger.Info("Search completed", logger.Fields{
		"query":        result.Query,
		"results":      len(result.Tracks),
		"total":        result.Total,
		"process_time": processTime,
	})

	c.JSON(http.StatusOK, SearchResponse{
		Success:      true,
		SearchResult: result,
		ProcessTime:  processTime,
	})
}
