package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nexttrack/internal/logger"
	"nexttrack/internal/models"
	"nexttrack/internal/services/orchestrator"
)

// RecommenderInterface 推荐编排接口
type RecommenderInterface interface {
	RecommendNext(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// RecommendationHandler 推荐API处理器
type RecommendationHandler struct {
	recommender RecommenderInterface
	logger      *logger.Logger
}

// NewRecommendationHandler 创建推荐处理器
func NewRecommendationHandler(recommender RecommenderInterface) *RecommendationHandler {
	return &RecommendationHandler{
		recommender: recommender,
		logger:      logger.NewLogger("recommendation-handler"),
	}
}

// RecommendationRequest 推荐请求结构，playlist_tracks/playlist_token/playlist_id 三选一
type RecommendationRequest struct {
	Signal          string                 `json:"signal,omitempty"`
	Seed            *int64                 `json:"seed,omitempty"`
	PlaylistID      string                 `json:"playlist_id,omitempty"`
	PlaylistToken   string                 `json:"playlist_token,omitempty"`
	PlaylistTracks  []models.Track         `json:"playlist_tracks,omitempty"`
	CandidateTracks []models.Track         `json:"candidate_tracks,omitempty"`
	Preferences     map[string]interface{} `json:"preferences,omitempty"`
}

// RecommendationResponse 推荐响应结构
type RecommendationResponse struct {
	Success          bool                   `json:"success"`
	Message          string                 `json:"message"`
	Signal           string                 `json:"signal"`
	Seed             int64                  `json:"seed"`
	Playlist         map[string]interface{} `json:"playlist"`
	Preferences      map[string]interface{} `json:"preferences"`
	RecommendedTrack map[string]interface{} `json:"recommended_track"`
	CandidatePool    int                    `json:"candidate_pool_size"`
	ProcessTime      time.Duration          `json:"process_time"`
}

// GetRecommendations 推荐下一首
// @Summary 推荐下一首曲目
// @Description 基于播放列表和所选信号从候选中选出一首
// @Tags recommendations
// @Accept json
// @Produce json
// @Param request body RecommendationRequest true "推荐请求"
// @Success 200 {object} RecommendationResponse "推荐成功"
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Failure 404 {object} ErrorResponse "播放列表不存在或没有可推荐的曲目"
// @Failure 503 {object} ErrorResponse "曲库不可用"
// @Router /api/v1/recommendations [post]
func (h *RecommendationHandler) GetRecommendations(c *gin.Context) {
	startTime := time.Now()

	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	if h.recommender == nil {
		h.logger.Error("Recommender is not initialized")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Success: false,
			Message: "Recommendation service is not available",
		})
		return
	}

	result, err := h.recommender.RecommendNext(c.Request.Context(), req.toServiceRequest())
	if err != nil {
		respondError(c, h.logger, err, "Recommendation failed")
		return
	}

	processTime := time.Since(startTime)
	h.logger.Info("Recommendation completed", logger.Fields{
		"signal":       string(result.Signal),
		"playlist_id":  result.Playlist.ID,
		"track_id":     result.Recommendation.Track.ID(),
		"process_time": processTime,
	})

	c.JSON(http.StatusOK, newRecommendationResponse(result, processTime))
}

func (r RecommendationRequest) toServiceRequest() orchestrator.Request {
	return orchestrator.Request{
		PlaylistID:      r.PlaylistID,
		PlaylistToken:   r.PlaylistToken,
		PlaylistTracks:  r.PlaylistTracks,
		CandidateTracks: r.CandidateTracks,
		Signal:          r.Signal,
		Seed:            r.Seed,
		Preferences:     r.Preferences,
	}
}

func newRecommendationResponse(result *orchestrator.Result, processTime time.Duration) RecommendationResponse {
	return RecommendationResponse{
		Success:          true,
		Message:          "Recommendation generated",
		Signal:           string(result.Signal),
		Seed:             result.Seed,
		Playlist:         result.Playlist.Summary(),
		Preferences:      result.Preferences,
		RecommendedTrack: result.RecommendedTrack(),
		CandidatePool:    result.CandidatePoolSize,
		ProcessTime:      processTime,
	}
}
