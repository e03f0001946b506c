package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
	"nexttrack/internal/metrics"
	"nexttrack/internal/models"
	"nexttrack/internal/services/playlist"
)

// TokenIssuer 签发播放列表令牌
type TokenIssuer interface {
	Issue(p *models.Playlist) (string, time.Time, error)
}

// RecordingFetcher 按ID从曲库获取录音
type RecordingFetcher interface {
	Recording(ctx context.Context, id string) (models.Track, error)
}

// PlaylistHandler 播放列表API处理器
type PlaylistHandler struct {
	store   playlist.Store
	tokens  TokenIssuer
	catalog RecordingFetcher
	mu      sync.Mutex // 串行化读-改-写
	logger  *logger.Logger
}

// NewPlaylistHandler 创建播放列表处理器，tokens和catalog可以为nil
func NewPlaylistHandler(store playlist.Store, tokens TokenIssuer, catalog RecordingFetcher) *PlaylistHandler {
	return &PlaylistHandler{
		store:   store,
		tokens:  tokens,
		catalog: catalog,
		logger:  logger.NewLogger("playlist-handler"),
	}
}

// CreatePlaylistRequest 创建播放列表请求
type CreatePlaylistRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description,omitempty"`
	Tracks      []models.Track `json:"tracks,omitempty"`
}

// AddTrackRequest 添加曲目请求，只给出track_id时从曲库补全
type AddTrackRequest struct {
	TrackID string       `json:"track_id,omitempty"`
	Track   models.Track `json:"track,omitempty"`
}

// PlaylistResponse 播放列表响应
type PlaylistResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message,omitempty"`
	Playlist *models.Playlist `json:"playlist"`
}

// TrackResponse 曲目变更响应
type TrackResponse struct {
	Success  bool                   `json:"success"`
	Message  string                 `json:"message"`
	Playlist map[string]interface{} `json:"playlist"`
	Track    models.Track           `json:"track"`
}

// TokenResponse 令牌响应
type TokenResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Create 创建播放列表
// @Router /api/v1/playlists [post]
func (h *PlaylistHandler) Create(c *gin.Context) {
	var req CreatePlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	p, err := models.NewPlaylist(req.Name, req.Description)
	if err == nil {
		for _, track := range req.Tracks {
			if err = p.AddTrack(track); err != nil {
				break
			}
		}
	}
	if err == nil {
		err = h.store.Put(c.Request.Context(), p)
	}
	metrics.RecordPlaylistOperation("create", err)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create playlist")
		return
	}

	h.logger.Info("Playlist created", logger.Fields{
		"playlist_id": p.ID,
		"tracks":      len(p.Tracks),
	})
	c.JSON(http.StatusCreated, PlaylistResponse{
		Success:  true,
		Message:  "Playlist created",
		Playlist: p,
	})
}

// Get 获取播放列表
// @Router /api/v1/playlists/{id} [get]
func (h *PlaylistHandler) Get(c *gin.Context) {
	p, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to load playlist")
		return
	}
	c.JSON(http.StatusOK, PlaylistResponse{Success: true, Playlist: p})
}

// Delete 删除播放列表
// @Router /api/v1/playlists/{id} [delete]
func (h *PlaylistHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "Failed to delete playlist")
		return
	}
	h.logger.Info("Playlist deleted", logger.Fields{"playlist_id": id})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Playlist deleted"})
}

// AddTrack 向播放列表追加曲目
// @Router /api/v1/playlists/{id}/tracks [post]
func (h *PlaylistHandler) AddTrack(c *gin.Context) {
	var req AddTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	track, err := h.resolveTrack(c.Request.Context(), req)
	if err != nil {
		metrics.RecordPlaylistOperation("add_track", err)
		respondError(c, h.logger, err, "Failed to resolve track")
		return
	}

	p, err := h.mutate(c.Request.Context(), c.Param("id"), func(p *models.Playlist) error {
		return p.AddTrack(track)
	})
	metrics.RecordPlaylistOperation("add_track", err)
	if err != nil {
		respondError(c, h.logger, err, "Failed to add track")
		return
	}

	added := p.Tracks[len(p.Tracks)-1]
	h.logger.Info("Track added to playlist", logger.Fields{
		"playlist_id": p.ID,
		"track_id":    added.ID(),
		"tracks":      len(p.Tracks),
	})
	c.JSON(http.StatusCreated, TrackResponse{
		Success:  true,
		Message:  "Track added to playlist",
		Playlist: p.Summary(),
		Track:    added,
	})
}

// RemoveTrack 从播放列表移除曲目
// @Router /api/v1/playlists/{id}/tracks/{track_id} [delete]
func (h *PlaylistHandler) RemoveTrack(c *gin.Context) {
	var removed models.Track
	p, err := h.mutate(c.Request.Context(), c.Param("id"), func(p *models.Playlist) error {
		var err error
		removed, err = p.RemoveTrack(c.Param("track_id"))
		return err
	})
	metrics.RecordPlaylistOperation("remove_track", err)
	if err != nil {
		respondError(c, h.logger, err, "Failed to remove track")
		return
	}

	c.JSON(http.StatusOK, TrackResponse{
		Success:  true,
		Message:  "Track removed from playlist",
		Playlist: p.Summary(),
		Track:    removed,
	})
}

// IssueToken 为播放列表签发令牌
// @Router /api/v1/playlists/{id}/token [post]
func (h *PlaylistHandler) IssueToken(c *gin.Context) {
	if h.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Success: false,
			Message: "Playlist tokens are not available",
		})
		return
	}

	p, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to load playlist")
		return
	}
	token, expiresAt, err := h.tokens.Issue(p)
	metrics.RecordPlaylistOperation("issue_token", err)
	if err != nil {
		respondError(c, h.logger, err, "Failed to issue playlist token")
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// RegisterRoutes 注册播放列表路由
func (h *PlaylistHandler) RegisterRoutes(group *gin.RouterGroup) {
	playlists := group.Group("/playlists")
	playlists.POST("", h.Create)
	playlists.GET("/:id", h.Get)
	playlists.DELETE("/:id", h.Delete)
	playlists.POST("/:id/tracks", h.AddTrack)
	playlists.DELETE("/:id/tracks/:track_id", h.RemoveTrack)
	playlists.POST("/:id/token", h.IssueToken)
}

func (h *PlaylistHandler) mutate(ctx context.Context, id string, apply func(p *models.Playlist) error) (*models.Playlist, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(p); err != nil {
		return nil, err
	}
	if err := h.store.Put(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (h *PlaylistHandler) resolveTrack(ctx context.Context, req AddTrackRequest) (models.Track, error) {
	if len(req.Track) > 0 {
		track := req.Track.Clone()
		if track.ID() == "" && req.TrackID != "" {
			track["id"] = req.TrackID
		}
		return track, nil
	}

	id := strings.TrimSpace(req.TrackID)
	if id == "" {
		return nil, errors.ErrValidationFailed("track", `provide "track" or "track_id"`)
	}
	if h.catalog == nil {
		return nil, errors.ErrCatalogUnavailable("catalog lookup is not configured", nil)
	}
	return h.catalog.Recording(ctx, id)
}
