package catalog

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"nexttrack/internal/config"
	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
	"nexttrack/internal/metrics"
	"nexttrack/internal/models"
)

const (
	maxSearchLimit   = 100
	searchResultTags = 5
	recordingInclude = "artist-credits+releases+tags"
	unknownArtist    = "Unknown Artist"
	breakerName      = "musicbrainz"
)

// Query 录音搜索条件，Text为空时由Artist/Track拼接
type Query struct {
	Text   string
	Artist string
	Track  string
	Limit  int
	Offset int
}

// Build 构造 MusicBrainz 查询语句
func (q Query) Build() (string, error) {
	if text := strings.TrimSpace(q.Text); text != "" {
		return text, nil
	}
	parts := make([]string, 0, 2)
	if artist := strings.TrimSpace(q.Artist); artist != "" {
		parts = append(parts, "artist:"+artist)
	}
	if track := strings.TrimSpace(q.Track); track != "" {
		parts = append(parts, "track:"+track)
	}
	if len(parts) == 0 {
		return "", errors.ErrValidationFailed("query", `provide "q" or "artist" and/or "track"`)
	}
	return strings.Join(parts, " AND "), nil
}

// SearchResult 搜索结果页
type SearchResult struct {
	Tracks []models.Track `json:"search_result_tracks"`
	Total  int            `json:"total_search_result_tracks"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
	Query  string         `json:"query"`
}

// CandidateQuery 推荐候选的拉取条件
type CandidateQuery struct {
	Artists []string
	Tags    []string
	Title   string // 与Artist同时给出时优先精确匹配
	Artist  string
	Limit   int
}

// Searcher 推荐流程依赖的曲库能力
type Searcher interface {
	Candidates(ctx context.Context, q CandidateQuery) ([]models.Track, error)
	Recording(ctx context.Context, id string) (models.Track, error)
}

// MusicBrainz API响应结构
type recordingList struct {
	Count      int         `json:"count"`
	Offset     int         `json:"offset"`
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Length           *float64       `json:"length"`
	Score            int            `json:"score"`
	FirstReleaseDate string         `json:"first-release-date"`
	ArtistCredit     []artistCredit `json:"artist-credit"`
	Releases         []release      `json:"releases"`
	Tags             []tag          `json:"tags"`
}

type artistCredit struct {
	Name   string `json:"name"`
	Artist struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
}

type release struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

type tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Client MusicBrainz录音搜索客户端
type Client struct {
	httpClient *resty.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*resty.Response]
	config     config.CatalogConfig
	logger     *logger.Logger
}

// NewClient 创建曲库客户端
func NewClient(cfg config.CatalogConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.ErrConfigMissing("catalog.base_url")
	}
	if cfg.UserAgent == "" {
		return nil, errors.ErrConfigMissing("catalog.user_agent")
	}

	clientLogger := logger.NewLogger("catalog-client")

	httpClient := resty.New()
	httpClient.SetBaseURL(cfg.BaseURL)
	httpClient.SetTimeout(cfg.Timeout)
	httpClient.SetHeader("User-Agent", cfg.UserAgent)
	httpClient.SetHeader("Accept", "application/json")

	// MusicBrainz 限流时返回503
	httpClient.SetRetryCount(cfg.RetryTimes)
	httpClient.SetRetryWaitTime(cfg.RetryDelay)
	httpClient.SetRetryMaxWaitTime(cfg.RetryDelay * 3)
	httpClient.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if resp == nil {
			return err != nil
		}
		return resp.StatusCode() == http.StatusServiceUnavailable || resp.StatusCode() == http.StatusTooManyRequests
	})

	httpClient.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		clientLogger.Debug("Catalog API response", logger.Fields{
			"url":    resp.Request.URL,
			"status": resp.StatusCode(),
			"size":   len(resp.Body()),
			"time":   resp.Time(),
		})
		return nil
	})

	limit := rate.Inf
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	client := &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		config:     cfg,
		logger:     clientLogger,
	}
	client.breaker = newBreaker(cfg.CircuitBreaker, clientLogger)

	clientLogger.Info("Catalog client initialized", logger.Fields{
		"base_url":    cfg.BaseURL,
		"timeout":     cfg.Timeout,
		"retry_times": cfg.RetryTimes,
		"rate_limit":  cfg.RateLimit.RequestsPerSecond,
	})
	return client, nil
}

func newBreaker(cfg config.CircuitBreakerConfig, log *logger.Logger) *gobreaker.CircuitBreaker[*resty.Response] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Catalog circuit breaker state changed", logger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String(), stateValue(to))
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// get 限流、熔断并执行一次GET请求
func (c *Client) get(ctx context.Context, path string, params map[string]string, pathParams map[string]string, result interface{}) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.RecordCatalogRejected()
		return nil, errors.ErrCatalogUnavailable("rate limiter wait cancelled", err)
	}

	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		start := time.Now()
		req := c.httpClient.R().
			SetContext(ctx).
			SetQueryParam("fmt", "json").
			SetQueryParams(params).
			ForceContentType("application/json").
			SetResult(result)
		if len(pathParams) > 0 {
			req.SetPathParams(pathParams)
		}
		resp, err := req.Get(path)
		if err != nil {
			metrics.RecordCatalogRequest(0, time.Since(start))
			return nil, err
		}
		metrics.RecordCatalogRequest(resp.StatusCode(), time.Since(start))
		if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
			return resp, fmt.Errorf("catalog returned status %d", resp.StatusCode())
		}
		return resp, nil
	})

	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordCatalogRejected()
			appErr := errors.ErrCatalogUnavailable("circuit breaker open", err)
			c.logger.LogAppError(appErr, "Catalog request rejected")
			return nil, appErr
		}
		appErr := errors.ErrCatalogUnavailable(err.Error(), err).WithContext(map[string]interface{}{
			"path": path,
		})
		c.logger.LogAppError(appErr, "Catalog request failed")
		return nil, appErr
	}
	return resp, nil
}

func (c *Client) searchRecordings(ctx context.Context, query string, limit, offset int) (*recordingList, error) {
	params := map[string]string{
		"query": query,
		"limit": strconv.Itoa(clampLimit(limit, c.config.SearchLimit)),
		"inc":   recordingInclude,
	}
	if offset > 0 {
		params["offset"] = strconv.Itoa(offset)
	}

	resp, err := c.get(ctx, "recording", params, nil, &recordingList{})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, errors.ErrCatalogUnavailable(
			fmt.Sprintf("status %d: %s", resp.StatusCode(), truncate(string(resp.Body()), 200)), nil)
	}
	list, ok := resp.Result().(*recordingList)
	if !ok || list == nil {
		return &recordingList{}, nil
	}
	return list, nil
}

// Search 通用录音搜索
func (c *Client) Search(ctx context.Context, q Query) (*SearchResult, error) {
	query, err := q.Build()
	if err != nil {
		return nil, err
	}
	if q.Offset < 0 {
		return nil, errors.ErrValidationFailed("offset", "must not be negative")
	}
	limit := clampLimit(q.Limit, 10)

	list, err := c.searchRecordings(ctx, query, limit, q.Offset)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(list.Recordings))
	for _, rec := range list.Recordings {
		t := toTrack(rec, unknownArtist)
		if tags, ok := t.Strings("tags"); ok && len(tags) > searchResultTags {
			t["tags"] = tags[:searchResultTags]
		}
		tracks = append(tracks, t)
	}

	c.logger.Debug("Catalog search completed", logger.Fields{
		"query":   query,
		"results": len(tracks),
		"total":   list.Count,
	})

	return &SearchResult{
		Tracks: tracks,
		Total:  list.Count,
		Offset: q.Offset,
		Limit:  limit,
		Query:  query,
	}, nil
}

// SearchByArtist 按艺术家搜索录音
func (c *Client) SearchByArtist(ctx context.Context, artist string, limit int) ([]models.Track, error) {
	if strings.TrimSpace(artist) == "" {
		return nil, errors.ErrValidationFailed("artist", "cannot be empty")
	}
	list, err := c.searchRecordings(ctx, fmt.Sprintf(`artist:"%s"`, escapeQuotes(artist)), limit, 0)
	if err != nil {
		return nil, err
	}
	return toTracks(list.Recordings, artist), nil
}

// SearchByTag 按标签搜索录音
func (c *Client) SearchByTag(ctx context.Context, tagName string, limit int) ([]models.Track, error) {
	if strings.TrimSpace(tagName) == "" {
		return nil, errors.ErrValidationFailed("tag", "cannot be empty")
	}
	list, err := c.searchRecordings(ctx, fmt.Sprintf(`tag:"%s"`, escapeQuotes(tagName)), limit, 0)
	if err != nil {
		return nil, err
	}
	return toTracks(list.Recordings, unknownArtist), nil
}

// Recording 按ID获取单个录音
func (c *Client) Recording(ctx context.Context, id string) (models.Track, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.ErrValidationFailed("id", "cannot be empty")
	}
	resp, err := c.get(ctx, "recording/{id}", map[string]string{"inc": recordingInclude}, map[string]string{"id": id}, &recording{})
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusBadRequest:
		return nil, errors.ErrResourceNotFound("recording", id)
	case !resp.IsSuccess():
		return nil, errors.ErrCatalogUnavailable(fmt.Sprintf("status %d", resp.StatusCode()), nil)
	}
	rec, ok := resp.Result().(*recording)
	if !ok || rec == nil || rec.ID == "" {
		return nil, errors.ErrResourceNotFound("recording", id)
	}
	return toTrack(*rec, unknownArtist), nil
}

// Candidates 为推荐拉取候选：按艺术家均分配额，不足时按标签补齐，
// 按标题+艺术家去重后截断到Limit。只有全部请求失败时才返回错误
func (c *Client) Candidates(ctx context.Context, q CandidateQuery) ([]models.Track, error) {
	limit := clampLimit(q.Limit, c.config.SearchLimit)
	tracks := make([]models.Track, 0, limit)
	attempts, failures := 0, 0
	var lastErr error

	collect := func(found []models.Track, err error, fields logger.Fields) {
		attempts++
		if err != nil {
			failures++
			lastErr = err
			c.logger.WithError(err).WithFields(logrus.Fields(fields)).Warn("Candidate search failed")
			return
		}
		tracks = append(tracks, found...)
	}

	artists := nonEmpty(q.Artists)
	if len(artists) > 0 {
		perArtist := int(math.Ceil(float64(limit) / float64(len(artists))))
		for _, artist := range artists {
			found, err := c.SearchByArtist(ctx, artist, perArtist)
			collect(found, err, logger.Fields{"artist": artist})
		}
	}

	for _, tagName := range nonEmpty(q.Tags) {
		if len(tracks) >= limit {
			break
		}
		perTag := int(math.Ceil(float64(limit-len(tracks)) / 2))
		found, err := c.SearchByTag(ctx, tagName, perTag)
		collect(found, err, logger.Fields{"tag": tagName})
	}

	if q.Title != "" && q.Artist != "" {
		found, err := c.SearchByArtist(ctx, q.Artist, 5)
		attempts++
		if err != nil {
			failures++
			lastErr = err
			c.logger.WithError(err).WithFields(logrus.Fields{"artist": q.Artist, "title": q.Title}).Warn("Exact match search failed")
		} else {
			exact := make([]models.Track, 0)
			title := strings.ToLower(q.Title)
			for _, t := range found {
				if strings.Contains(strings.ToLower(t.Title()), title) {
					exact = append(exact, t)
				}
			}
			tracks = append(exact, tracks...)
		}
	}

	if attempts > 0 && failures == attempts {
		return nil, lastErr
	}

	unique := dedupe(tracks)
	if len(unique) > limit {
		unique = unique[:limit]
	}

	c.logger.Debug("Collected recommendation candidates", logger.Fields{
		"artists":    len(artists),
		"tags":       len(q.Tags),
		"candidates": len(unique),
		"failures":   failures,
	})
	return unique, nil
}

func toTracks(recordings []recording, fallbackArtist string) []models.Track {
	out := make([]models.Track, 0, len(recordings))
	for _, rec := range recordings {
		out = append(out, toTrack(rec, fallbackArtist))
	}
	return out
}

// toTrack 转为曲目记录，length单位为毫秒
func toTrack(rec recording, fallbackArtist string) models.Track {
	artist, artistID := fallbackArtist, ""
	if len(rec.ArtistCredit) > 0 {
		if rec.ArtistCredit[0].Name != "" {
			artist = rec.ArtistCredit[0].Name
		}
		artistID = rec.ArtistCredit[0].Artist.ID
	}

	length := 0.0
	if rec.Length != nil {
		length = *rec.Length
	}

	releases := make([]interface{}, 0, len(rec.Releases))
	for _, r := range rec.Releases {
		releases = append(releases, map[string]interface{}{"id": r.ID, "title": r.Title, "date": r.Date})
	}
	releaseDate := rec.FirstReleaseDate
	if len(rec.Releases) > 0 && rec.Releases[0].Date != "" {
		releaseDate = rec.Releases[0].Date
	}

	tags := make([]string, 0, len(rec.Tags))
	for _, t := range rec.Tags {
		tags = append(tags, t.Name)
	}

	track := models.Track{
		"id":             rec.ID,
		"title":          rec.Title,
		"artist":         artist,
		"artist_id":      artistID,
		"length":         length,
		"releases":       releases,
		"tags":           tags,
		"score":          rec.Score,
		"musicbrainz_id": rec.ID,
	}
	if releaseDate != "" {
		track["release_date"] = releaseDate
	}
	return track
}

func dedupe(tracks []models.Track) []models.Track {
	seen := make(map[string]struct{}, len(tracks))
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		key := t.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		limit = fallback
	}
	if limit <= 0 {
		limit = 25
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return limit
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
