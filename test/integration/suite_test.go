package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"nexttrack/internal/config"
	"nexttrack/internal/services/playlist"
)

// TestSuite 集成测试环境：临时SQLite文件 + 假MusicBrainz服务
type TestSuite struct {
	t       *testing.T
	db      *gorm.DB
	dbPath  string
	catalog *httptest.Server

	mu      sync.Mutex
	queries []string
}

// NewTestSuite 创建集成测试套件
func NewTestSuite(t *testing.T) *TestSuite {
	return &TestSuite{t: t}
}

// SetupTestDB 在临时目录中创建数据库
func (ts *TestSuite) SetupTestDB() {
	ts.dbPath = filepath.Join(ts.t.TempDir(), "data", "nexttrack_test.db")

	db, err := playlist.OpenDatabase(config.DatabaseConfig{
		Type:        "sqlite",
		Path:        ts.dbPath,
		AutoMigrate: true,
	})
	require.NoError(ts.t, err, "Failed to connect to test database")
	ts.db = db
}

// CleanupTestDB 关闭数据库并删除文件
func (ts *TestSuite) CleanupTestDB() {
	if ts.db != nil {
		if sqlDB, err := ts.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if ts.dbPath != "" {
		os.Remove(ts.dbPath)
	}
	if ts.catalog != nil {
		ts.catalog.Close()
	}
}

// GetDB 获取数据库连接
func (ts *TestSuite) GetDB() *gorm.DB {
	return ts.db
}

// SetupCatalog 启动假的MusicBrainz服务，录音按艺术家和标签建索引
func (ts *TestSuite) SetupCatalog(recordings []map[string]interface{}) config.CatalogConfig {
	byID := make(map[string]map[string]interface{}, len(recordings))
	for _, rec := range recordings {
		byID[rec["id"].(string)] = rec
	}

	ts.catalog = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if id, ok := strings.CutPrefix(r.URL.Path, "/recording/"); ok {
			rec, found := byID[id]
			if !found {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Not Found"})
				return
			}
			_ = json.NewEncoder(w).Encode(rec)
			return
		}

		query := r.URL.Query().Get("query")
		ts.mu.Lock()
		ts.queries = append(ts.queries, query)
		ts.mu.Unlock()

		matched := make([]map[string]interface{}, 0)
		for _, rec := range recordings {
			if matchesQuery(rec, query) {
				matched = append(matched, rec)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"count":      len(matched),
			"offset":     0,
			"recordings": matched,
		})
	}))

	return config.CatalogConfig{
		BaseURL:     ts.catalog.URL + "/",
		UserAgent:   "nexttrack-integration/1.0",
		Timeout:     2 * time.Second,
		SearchLimit: 25,
		RateLimit:   config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 10},
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 5,
		},
	}
}

// Queries 假曲库收到的搜索语句
func (ts *TestSuite) Queries() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.queries...)
}

// matchesQuery 支持 artist:"x" / tag:"x" 以及自由文本
func matchesQuery(rec map[string]interface{}, query string) bool {
	query = strings.ToLower(query)
	artist := strings.ToLower(rec["artist-credit"].([]map[string]interface{})[0]["name"].(string))

	if value, ok := strings.CutPrefix(query, "artist:"); ok {
		return strings.Trim(value, `"`) == artist
	}
	if value, ok := strings.CutPrefix(query, "tag:"); ok {
		value = strings.Trim(value, `"`)
		for _, tag := range rec["tags"].([]map[string]interface{}) {
			if tag["name"].(string) == value {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(rec["title"].(string)), query) || strings.Contains(query, artist)
}

// recordingJSON MusicBrainz录音结构
func recordingJSON(id, title, artist, date string, length int, tags ...string) map[string]interface{} {
	tagList := make([]map[string]interface{}, len(tags))
	for i, t := range tags {
		tagList[i] = map[string]interface{}{"name": t, "count": 1}
	}
	return map[string]interface{}{
		"id":                 id,
		"title":              title,
		"length":             length,
		"score":              100,
		"first-release-date": date,
		"artist-credit": []map[string]interface{}{
			{"name": artist, "artist": map[string]string{"id": "artist-" + strings.ToLower(artist), "name": artist}},
		},
		"releases": []map[string]string{{"id": "rel-" + id, "title": title, "date": date}},
		"tags":     tagList,
	}
}
