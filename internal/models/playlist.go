package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
)

const (
	maxPlaylistNameLength = 200
	maxPlaylistTracks     = 500
)

// Playlist 播放列表数据模型
type Playlist struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TracksData  string    `json:"-" gorm:"column:tracks;type:text"` // 曲目列表JSON字符串
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"last_updated"`

	// 内存中的字段，不存储到数据库
	Tracks []Track `json:"tracks" gorm:"-"`
}

// NewPlaylist 创建新的播放列表
func NewPlaylist(name, description string) (*Playlist, error) {
	if err := validatePlaylistName(name); err != nil {
		return nil, err
	}

	now := time.Now()
	playlist := &Playlist{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(name),
		Description: description,
		Tracks:      make([]Track, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	logger.NewLogger("playlist-model").Debug("Created new Playlist", logger.Fields{
		"id":   playlist.ID,
		"name": playlist.Name,
	})
	return playlist, nil
}

func validatePlaylistName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.ErrValidationFailed("name", "cannot be empty")
	}
	if len(name) > maxPlaylistNameLength {
		return errors.ErrValidationFailed("name", fmt.Sprintf("must not exceed %d characters", maxPlaylistNameLength))
	}
	return nil
}

// Validate 验证播放列表数据完整性
func (p *Playlist) Validate() error {
	if p.ID == "" {
		return errors.ErrValidationFailed("id", "cannot be empty")
	}
	if err := validatePlaylistName(p.Name); err != nil {
		return err
	}
	if len(p.Tracks) > maxPlaylistTracks {
		return errors.ErrValidationFailed("tracks", fmt.Sprintf("cannot have more than %d tracks", maxPlaylistTracks))
	}
	return nil
}

// IndexOf 按曲目ID查找位置，不存在返回-1
func (p *Playlist) IndexOf(trackID string) int {
	for i, track := range p.Tracks {
		if track.ID() == trackID {
			return i
		}
	}
	return -1
}

// AddTrack 追加曲目，ID重复时拒绝
func (p *Playlist) AddTrack(track Track) error {
	trackID := track.ID()
	if trackID == "" {
		return errors.ErrValidationFailed("track.id", "cannot be empty")
	}
	if p.IndexOf(trackID) >= 0 {
		return errors.ErrDuplicateResource("track", trackID)
	}
	if len(p.Tracks) >= maxPlaylistTracks {
		return errors.ErrValidationFailed("tracks", fmt.Sprintf("cannot have more than %d tracks", maxPlaylistTracks))
	}

	added := track.Clone()
	if _, ok := added["added_at"]; !ok {
		added["added_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	p.Tracks = append(p.Tracks, added)
	p.UpdatedAt = time.Now()
	return nil
}

// RemoveTrack 移除曲目并返回被移除的记录
func (p *Playlist) RemoveTrack(trackID string) (Track, error) {
	idx := p.IndexOf(trackID)
	if idx < 0 {
		return nil, errors.ErrResourceNotFound("track", trackID)
	}
	removed := p.Tracks[idx]
	p.Tracks = append(p.Tracks[:idx:idx], p.Tracks[idx+1:]...)
	p.UpdatedAt = time.Now()
	return removed, nil
}

// Summary 推荐响应中使用的播放列表摘要
func (p *Playlist) Summary() map[string]interface{} {
	return map[string]interface{}{
		"id":                 p.ID,
		"name":               p.Name,
		"description":        p.Description,
		"added_tracks_count": len(p.Tracks),
		"last_updated":       p.UpdatedAt,
	}
}

// BeforeSave GORM钩子：保存前验证并序列化曲目
func (p *Playlist) BeforeSave(tx *gorm.DB) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return p.serializeTracks()
}

// AfterFind GORM钩子：查询后反序列化曲目
func (p *Playlist) AfterFind(tx *gorm.DB) error {
	return p.deserializeTracks()
}

func (p *Playlist) serializeTracks() error {
	if p.Tracks == nil {
		p.Tracks = make([]Track, 0)
	}
	data, err := json.Marshal(p.Tracks)
	if err != nil {
		appErr := errors.NewAppError(errors.ErrorTypeSystem, errors.ErrCodeSystemGeneric, "Failed to marshal playlist tracks").
			WithCause(err).
			WithContext(map[string]interface{}{
				"playlist_id": p.ID,
				"track_count": len(p.Tracks),
			})
		logger.NewLogger("playlist-model").LogAppError(appErr, "Tracks marshaling failed")
		return appErr
	}
	p.TracksData = string(data)
	return nil
}

func (p *Playlist) deserializeTracks() error {
	if p.TracksData == "" {
		p.Tracks = make([]Track, 0)
		return nil
	}
	var tracks []Track
	if err := json.Unmarshal([]byte(p.TracksData), &tracks); err != nil {
		appErr := errors.NewAppError(errors.ErrorTypeSystem, errors.ErrCodeSystemGeneric, "Failed to unmarshal playlist tracks").
			WithCause(err).
			WithContext(map[string]interface{}{
				"playlist_id": p.ID,
				"data_length": len(p.TracksData),
			})
		logger.NewLogger("playlist-model").LogAppError(appErr, "Tracks unmarshaling failed")
		return appErr
	}
	p.Tracks = tracks
	return nil
}
