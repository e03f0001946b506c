package catalog

import (
	"context"
	"crypto/md5"
	"fmt"
	"strings"
	"sync"
	"time"

	"nexttrack/internal/config"
	"nexttrack/internal/logger"
	"nexttrack/internal/metrics"
	"nexttrack/internal/models"
)

const (
	defaultCacheTTL     = 10 * time.Minute
	defaultCacheMaxSize = 500
	defaultCacheCleanup = 5 * time.Minute
)

// cachedCandidates 缓存的候选列表
type cachedCandidates struct {
	tracks      []models.Track
	key         string
	cachedAt    time.Time
	lastAccess  time.Time
	accessCount int64
}

// CacheStats 缓存统计信息
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// CachedSearcher 在Searcher前加一层TTL+LRU缓存，只缓存候选查询
type CachedSearcher struct {
	next   Searcher
	config config.CatalogCacheConfig
	logger *logger.Logger
	now    func() time.Time

	entries map[string]*cachedCandidates
	mu      sync.Mutex
	stats   CacheStats

	stopCleanup chan struct{}
	cleanupWg   sync.WaitGroup
	closeOnce   sync.Once
}

// NewCachedSearcher 创建候选缓存并启动定期清理
func NewCachedSearcher(next Searcher, cfg config.CatalogCacheConfig) *CachedSearcher {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultCacheMaxSize
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCacheCleanup
	}

	cs := &CachedSearcher{
		next:        next,
		config:      cfg,
		logger:      logger.NewLogger("catalog-cache"),
		now:         time.Now,
		entries:     make(map[string]*cachedCandidates),
		stopCleanup: make(chan struct{}),
	}
	cs.startCleanupRoutine()

	cs.logger.Info("Candidate cache initialized", logger.Fields{
		"ttl":              cfg.TTL,
		"max_size":         cfg.MaxSize,
		"cleanup_interval": cfg.CleanupInterval,
	})
	return cs
}

// Candidates 命中时返回缓存副本，否则查询下游并缓存成功结果
func (cs *CachedSearcher) Candidates(ctx context.Context, q CandidateQuery) ([]models.Track, error) {
	key := candidateKey(q)

	cs.mu.Lock()
	cached, ok := cs.entries[key]
	if ok && cs.now().Sub(cached.cachedAt) > cs.config.TTL {
		delete(cs.entries, key)
		cs.stats.Evictions++
		metrics.RecordCatalogCache("eviction")
		ok = false
	}
	if ok {
		cached.accessCount++
		cached.lastAccess = cs.now()
		cs.stats.Hits++
		accessCount := cached.accessCount
		tracks := cloneTracks(cached.tracks)
		cs.mu.Unlock()

		metrics.RecordCatalogCache("hit")
		cs.logger.Debug("Candidate cache hit", logger.Fields{
			"key":          key,
			"access_count": accessCount,
			"candidates":   len(tracks),
		})
		return tracks, nil
	}
	cs.stats.Misses++
	cs.mu.Unlock()
	metrics.RecordCatalogCache("miss")

	tracks, err := cs.next.Candidates(ctx, q)
	if err != nil {
		return nil, err
	}

	now := cs.now()
	cs.mu.Lock()
	if _, exists := cs.entries[key]; !exists && len(cs.entries) >= cs.config.MaxSize {
		cs.evictLRU()
	}
	cs.entries[key] = &cachedCandidates{
		tracks:      cloneTracks(tracks),
		key:         key,
		cachedAt:    now,
		lastAccess:  now,
		accessCount: 1,
	}
	cs.mu.Unlock()

	return tracks, nil
}

// Recording 不缓存
func (cs *CachedSearcher) Recording(ctx context.Context, id string) (models.Track, error) {
	return cs.next.Recording(ctx, id)
}

// Invalidate 清空缓存
func (cs *CachedSearcher) Invalidate() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.entries = make(map[string]*cachedCandidates)
}

// GetStats 获取统计信息
func (cs *CachedSearcher) GetStats() CacheStats {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	stats := cs.stats
	stats.Size = len(cs.entries)
	return stats
}

// Close 停止清理协程
func (cs *CachedSearcher) Close() error {
	cs.closeOnce.Do(func() {
		close(cs.stopCleanup)
		cs.cleanupWg.Wait()
	})
	return nil
}

// evictLRU 驱逐最久未访问的条目，调用方持有锁
func (cs *CachedSearcher) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	for key, cached := range cs.entries {
		if oldestKey == "" || cached.lastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = cached.lastAccess
		}
	}
	if oldestKey != "" {
		delete(cs.entries, oldestKey)
		cs.stats.Evictions++
		metrics.RecordCatalogCache("eviction")
	}
}

func (cs *CachedSearcher) startCleanupRoutine() {
	cs.cleanupWg.Add(1)
	go func() {
		defer cs.cleanupWg.Done()
		ticker := time.NewTicker(cs.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cs.cleanupExpiredEntries()
			case <-cs.stopCleanup:
				return
			}
		}
	}()
}

// cleanupExpiredEntries 清理过期条目
func (cs *CachedSearcher) cleanupExpiredEntries() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := cs.now()
	removed := 0
	for key, cached := range cs.entries {
		if now.Sub(cached.cachedAt) > cs.config.TTL {
			delete(cs.entries, key)
			metrics.RecordCatalogCache("eviction")
			removed++
		}
	}
	if removed > 0 {
		cs.stats.Evictions += int64(removed)
		cs.logger.Debug("Candidate cache cleanup completed", logger.Fields{
			"removed":   removed,
			"remaining": len(cs.entries),
		})
	}
	return removed
}

// candidateKey 大小写无关的缓存键，词项顺序影响配额分配所以保留
func candidateKey(q CandidateQuery) string {
	artists := normalizedTerms(q.Artists)
	tags := normalizedTerms(q.Tags)
	data := fmt.Sprintf("%s|%s|%s|%s|%d",
		strings.Join(artists, ","),
		strings.Join(tags, ","),
		strings.ToLower(strings.TrimSpace(q.Title)),
		strings.ToLower(strings.TrimSpace(q.Artist)),
		q.Limit)
	hash := md5.Sum([]byte(data))
	return fmt.Sprintf("cand:%x", hash)
}

func normalizedTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func cloneTracks(tracks []models.Track) []models.Track {
	out := make([]models.Track, len(tracks))
	for i, t := range tracks {
		out[i] = t.Clone()
	}
	return out
}
