package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexttrack/internal/config"
	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
	"nexttrack/internal/models"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func testConfig(baseURL string) config.CatalogConfig {
	return config.CatalogConfig{
		BaseURL:     baseURL,
		UserAgent:   "nexttrack-test/1.0",
		Timeout:     2 * time.Second,
		SearchLimit: 25,
		RateLimit:   config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 10},
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 2,
		},
	}
}

func recordingJSON(id, title, artist string, tags ...string) map[string]interface{} {
	tagList := make([]map[string]interface{}, len(tags))
	for i, t := range tags {
		tagList[i] = map[string]interface{}{"name": t, "count": 1}
	}
	return map[string]interface{}{
		"id":     id,
		"title":  title,
		"length": 215000,
		"score":  100,
		"artist-credit": []map[string]interface{}{
			{"name": artist, "artist": map[string]string{"id": "artist-" + id, "name": artist}},
		},
		"releases": []map[string]string{{"id": "rel-" + id, "title": "Album", "date": "1997-05-21"}},
		"tags":     tagList,
	}
}

// fakeMusicBrainz 根据query参数返回录音列表
func fakeMusicBrainz(t *testing.T, handler func(query string, r *http.Request) (int, interface{})) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "nexttrack-test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "json", r.URL.Query().Get("fmt"))

		status, body := handler(r.URL.Query().Get("query"), r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(testConfig(baseURL))
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.CatalogConfig{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigMissing))

	_, err = NewClient(config.CatalogConfig{BaseURL: "http://localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog.user_agent")
}

func TestQueryBuild(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		want    string
		wantErr bool
	}{
		{"自由文本优先", Query{Text: "radiohead", Artist: "ignored"}, "radiohead", false},
		{"艺术家和曲名", Query{Artist: "Radiohead", Track: "Airbag"}, "artist:Radiohead AND track:Airbag", false},
		{"只有曲名", Query{Track: "Airbag"}, "track:Airbag", false},
		{"全部为空", Query{Text: "  "}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.query.Build()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearch(t *testing.T) {
	server, _ := fakeMusicBrainz(t, func(query string, r *http.Request) (int, interface{}) {
		assert.Equal(t, "artist:Radiohead AND track:Airbag", query)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		return http.StatusOK, map[string]interface{}{
			"count":      1,
			"recordings": []interface{}{recordingJSON("r1", "Airbag", "Radiohead", "rock", "alternative", "a", "b", "c", "d")},
		}
	})
	client := newTestClient(t, server.URL+"/ws/2/")

	result, err := client.Search(context.Background(), Query{Artist: "Radiohead", Track: "Airbag", Limit: 500, Offset: 20})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 100, result.Limit)
	assert.Equal(t, 20, result.Offset)
	require.Len(t, result.Tracks, 1)

	track := result.Tracks[0]
	assert.Equal(t, "r1", track.ID())
	assert.Equal(t, "Radiohead", track.Artist())
	assert.Equal(t, "artist-r1", track["artist_id"])
	assert.Equal(t, 215000.0, track["length"])
	assert.Equal(t, "1997-05-21", track["release_date"])
	tags, _ := track.Strings("tags")
	assert.Len(t, tags, 5)

	t.Run("负偏移", func(t *testing.T) {
		_, err := client.Search(context.Background(), Query{Text: "x", Offset: -1})
		require.Error(t, err)
	})
}

func TestRecording(t *testing.T) {
	server, _ := fakeMusicBrainz(t, func(_ string, r *http.Request) (int, interface{}) {
		if strings.HasSuffix(r.URL.Path, "/recording/missing") {
			return http.StatusNotFound, map[string]string{"error": "Not Found"}
		}
		assert.True(t, strings.HasSuffix(r.URL.Path, "/ws/2/recording/r9"))
		assert.Equal(t, recordingInclude, r.URL.Query().Get("inc"))
		return http.StatusOK, recordingJSON("r9", "Teardrop", "Massive Attack", "trip hop")
	})
	client := newTestClient(t, server.URL+"/ws/2/")

	track, err := client.Recording(context.Background(), "r9")
	require.NoError(t, err)
	assert.Equal(t, "Teardrop", track.Title())
	assert.Equal(t, "r9", track["musicbrainz_id"])

	_, err = client.Recording(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeResourceNotFound))
}

func TestCandidates(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
	)
	server, _ := fakeMusicBrainz(t, func(query string, r *http.Request) (int, interface{}) {
		mu.Lock()
		queries = append(queries, query+"|"+r.URL.Query().Get("limit"))
		mu.Unlock()
		switch query {
		case `artist:"Radiohead"`:
			return http.StatusOK, map[string]interface{}{"recordings": []interface{}{
				recordingJSON("r1", "Airbag", "Radiohead"),
				recordingJSON("r2", "Lucky", "Radiohead"),
			}}
		case `artist:"Portishead"`:
			return http.StatusOK, map[string]interface{}{"recordings": []interface{}{
				recordingJSON("p1", "Roads", "Portishead"),
			}}
		case `tag:"trip hop"`:
			return http.StatusOK, map[string]interface{}{"recordings": []interface{}{
				recordingJSON("p1b", "roads", "portishead"),
				recordingJSON("m1", "Teardrop", "Massive Attack"),
			}}
		}
		return http.StatusOK, map[string]interface{}{"recordings": []interface{}{}}
	})
	client := newTestClient(t, server.URL)

	tracks, err := client.Candidates(context.Background(), CandidateQuery{
		Artists: []string{"Radiohead", "Portishead", " "},
		Tags:    []string{"trip hop"},
		Limit:   10,
	})
	require.NoError(t, err)

	ids := make([]string, len(tracks))
	for i, tr := range tracks {
		ids[i] = tr.ID()
	}
	assert.Equal(t, []string{"r1", "r2", "p1", "m1"}, ids)
	mu.Lock()
	assert.Equal(t, []string{`artist:"Radiohead"|5`, `artist:"Portishead"|5`, `tag:"trip hop"|4`}, queries)
	mu.Unlock()

	t.Run("截断到上限", func(t *testing.T) {
		tracks, err := client.Candidates(context.Background(), CandidateQuery{Artists: []string{"Radiohead"}, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, tracks, 1)
	})

	t.Run("精确匹配置顶", func(t *testing.T) {
		tracks, err := client.Candidates(context.Background(), CandidateQuery{
			Artists: []string{"Portishead"},
			Title:   "lucky",
			Artist:  "Radiohead",
			Limit:   10,
		})
		require.NoError(t, err)
		require.NotEmpty(t, tracks)
		assert.Equal(t, "r2", tracks[0].ID())
	})

	t.Run("没有条件返回空", func(t *testing.T) {
		tracks, err := client.Candidates(context.Background(), CandidateQuery{})
		require.NoError(t, err)
		assert.Empty(t, tracks)
	})
}

func TestCandidates_PartialFailure(t *testing.T) {
	server, _ := fakeMusicBrainz(t, func(query string, r *http.Request) (int, interface{}) {
		if strings.Contains(query, "Broken") {
			return http.StatusBadGateway, map[string]string{"error": "upstream"}
		}
		return http.StatusOK, map[string]interface{}{"recordings": []interface{}{recordingJSON("ok", "Fine", "Works")}}
	})
	cfg := testConfig(server.URL)
	cfg.CircuitBreaker.FailureThreshold = 10
	client, err := NewClient(cfg)
	require.NoError(t, err)

	tracks, err := client.Candidates(context.Background(), CandidateQuery{Artists: []string{"Broken", "Works"}, Limit: 4})
	require.NoError(t, err)
	assert.Len(t, tracks, 1)

	_, err = client.Candidates(context.Background(), CandidateQuery{Artists: []string{"Broken"}, Limit: 4})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCatalogUnavailable))
}

func TestCandidates_FailureLogCarriesError(t *testing.T) {
	server, _ := fakeMusicBrainz(t, func(query string, r *http.Request) (int, interface{}) {
		if strings.Contains(query, "Broken") {
			return http.StatusBadGateway, map[string]string{"error": "upstream"}
		}
		return http.StatusOK, map[string]interface{}{"recordings": []interface{}{recordingJSON("ok", "Fine", "Works")}}
	})
	cfg := testConfig(server.URL)
	cfg.CircuitBreaker.FailureThreshold = 10
	client, err := NewClient(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(io.Discard) })

	_, err = client.Candidates(context.Background(), CandidateQuery{Artists: []string{"Broken", "Works"}, Limit: 4})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Candidate search failed")
	assert.Contains(t, out, "artist=Broken")
	assert.Contains(t, out, "error=")
	assert.Contains(t, out, string(errors.ErrCodeCatalogUnavailable))
}

func TestCircuitBreakerOpens(t *testing.T) {
	server, hits := fakeMusicBrainz(t, func(string, *http.Request) (int, interface{}) {
		return http.StatusInternalServerError, map[string]string{"error": "boom"}
	})
	client := newTestClient(t, server.URL)

	for i := 0; i < 2; i++ {
		_, err := client.SearchByTag(context.Background(), "rock", 5)
		require.Error(t, err)
	}
	require.Equal(t, int32(2), atomic.LoadInt32(hits))

	_, err := client.SearchByTag(context.Background(), "rock", 5)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCatalogUnavailable))
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestRateLimiterHonoursContext(t *testing.T) {
	server, hits := fakeMusicBrainz(t, func(string, *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"recordings": []interface{}{}}
	})
	cfg := testConfig(server.URL)
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1}
	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.SearchByArtist(context.Background(), "first", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.SearchByArtist(ctx, "second", 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCatalogUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestToTrack_Defaults(t *testing.T) {
	track := toTrack(recording{ID: "x", Title: "Lonely"}, unknownArtist)
	assert.Equal(t, models.Track{
		"id":             "x",
		"title":          "Lonely",
		"artist":         unknownArtist,
		"artist_id":      "",
		"length":         0.0,
		"releases":       []interface{}{},
		"tags":           []string{},
		"score":          0,
		"musicbrainz_id": "x",
	}, track)
}
