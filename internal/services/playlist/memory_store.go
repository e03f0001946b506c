package playlist

import (
	"context"
	"sync"

	"nexttrack/internal/errors"
	"nexttrack/internal/metrics"
	"nexttrack/internal/models"
)

// MemoryStore 进程内存储，用于测试和无数据库部署
type MemoryStore struct {
	mu        sync.RWMutex
	playlists map[string]*models.Playlist
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{playlists: make(map[string]*models.Playlist)}
}

// Get 按ID读取
func (s *MemoryStore) Get(_ context.Context, id string) (*models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.playlists[id]
	if !ok {
		err := errors.ErrResourceNotFound("playlist", id)
		metrics.RecordPlaylistOperation("get", err)
		return nil, err
	}
	metrics.RecordPlaylistOperation("get", nil)
	return clonePlaylist(p), nil
}

// Put 创建或覆盖
func (s *MemoryStore) Put(_ context.Context, playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		metrics.RecordPlaylistOperation("put", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlists[playlist.ID] = clonePlaylist(playlist)
	metrics.RecordPlaylistOperation("put", nil)
	return nil
}

// Delete 删除，不存在时返回未找到
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playlists[id]; !ok {
		err := errors.ErrResourceNotFound("playlist", id)
		metrics.RecordPlaylistOperation("delete", err)
		return err
	}
	delete(s.playlists, id)
	metrics.RecordPlaylistOperation("delete", nil)
	return nil
}

// Len 当前播放列表数量
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.playlists)
}
