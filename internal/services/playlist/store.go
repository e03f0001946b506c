package playlist

import (
	"context"

	"nexttrack/internal/models"
)

// Store 播放列表存储
type Store interface {
	Get(ctx context.Context, id string) (*models.Playlist, error)
	Put(ctx context.Context, playlist *models.Playlist) error
	Delete(ctx context.Context, id string) error
}

// clonePlaylist 深拷贝曲目列表，调用方修改不影响存储
func clonePlaylist(p *models.Playlist) *models.Playlist {
	out := *p
	out.Tracks = make([]models.Track, len(p.Tracks))
	for i, t := range p.Tracks {
		out.Tracks[i] = t.Clone()
	}
	return &out
}
