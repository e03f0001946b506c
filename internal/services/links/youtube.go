package links

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"nexttrack/internal/config"
	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
)

const (
	watchURL  = "https://www.youtube.com/watch?v="
	searchURL = "https://www.youtube.com/results?search_query="
)

// Linker 为曲目生成外部播放链接
type Linker interface {
	Lookup(ctx context.Context, title, artist string) (string, error)
}

// searchResponse YouTube Data API search.list 响应
type searchResponse struct {
	Items []struct {
		ID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

// YouTubeLinker 通过 YouTube Data API 查找视频链接
type YouTubeLinker struct {
	httpClient *resty.Client
	config     config.YouTubeConfig
	logger     *logger.Logger
}

// NewYouTubeLinker 创建YouTube链接查询器，未启用时只生成搜索页链接
func NewYouTubeLinker(cfg config.YouTubeConfig) *YouTubeLinker {
	linkLogger := logger.NewLogger("youtube-linker")

	httpClient := resty.New()
	httpClient.SetBaseURL(cfg.BaseURL)
	httpClient.SetTimeout(cfg.Timeout)
	httpClient.SetHeader("Accept", "application/json")

	if !cfg.Enabled || cfg.APIKey == "" {
		linkLogger.Info("YouTube API disabled, falling back to search links")
	}

	return &YouTubeLinker{
		httpClient: httpClient,
		config:     cfg,
		logger:     linkLogger,
	}
}

// Enabled 是否调用 YouTube API
func (y *YouTubeLinker) Enabled() bool {
	return y.config.Enabled && y.config.APIKey != ""
}

// Lookup 返回第一个匹配视频的观看链接
func (y *YouTubeLinker) Lookup(ctx context.Context, title, artist string) (string, error) {
	query := strings.TrimSpace(strings.TrimSpace(title) + " " + strings.TrimSpace(artist))
	if query == "" {
		return "", errors.ErrValidationFailed("title", "title or artist required for link lookup")
	}
	if !y.Enabled() {
		return SearchLink(query), nil
	}

	resp, err := y.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":       "snippet",
			"type":       "video",
			"maxResults": "1",
			"q":          query,
			"key":        y.config.APIKey,
		}).
		ForceContentType("application/json").
		SetResult(&searchResponse{}).
		Get("search")
	if err != nil {
		appErr := errors.ErrLinkLookupFailed("YouTube request failed", err).
			WithContext(map[string]interface{}{"query": query})
		y.logger.LogAppError(appErr, "YouTube lookup failed")
		return "", appErr
	}
	if !resp.IsSuccess() {
		appErr := errors.ErrLinkLookupFailed(fmt.Sprintf("YouTube returned status %d", resp.StatusCode()), nil).
			WithContext(map[string]interface{}{"query": query})
		y.logger.LogAppError(appErr, "YouTube lookup rejected")
		return "", appErr
	}

	result, _ := resp.Result().(*searchResponse)
	if result == nil || len(result.Items) == 0 || result.Items[0].ID.VideoID == "" {
		return "", errors.ErrLinkLookupFailed("no YouTube results found for the given track and artist", nil)
	}

	link := watchURL + result.Items[0].ID.VideoID
	y.logger.Debug("YouTube link resolved", logger.Fields{
		"query": query,
		"link":  link,
	})
	return link, nil
}

// SearchLink YouTube搜索页链接
func SearchLink(query string) string {
	return searchURL + url.QueryEscape(query)
}
