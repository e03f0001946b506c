package orchestrator

import (
	"context"
	"sort"
	"strings"
	"time"

	"nexttrack/internal/config"
	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
	"nexttrack/internal/metrics"
	"nexttrack/internal/models"
	"nexttrack/internal/services/catalog"
	"nexttrack/internal/services/features"
	"nexttrack/internal/services/links"
	"nexttrack/internal/services/playlist"
	"nexttrack/internal/services/recommend"
)

const maxSeedTags = 5

// TokenVerifier 解析播放列表令牌
type TokenVerifier interface {
	Verify(token string) (*models.Playlist, error)
}

// Request 一次推荐请求。播放列表按 PlaylistTracks → PlaylistToken → PlaylistID 的顺序解析
type Request struct {
	PlaylistID      string
	PlaylistToken   string
	PlaylistTracks  []models.Track
	CandidateTracks []models.Track
	Signal          string
	Seed            *int64
	Preferences     map[string]interface{}
}

// Result 推荐结果及上下文
type Result struct {
	Recommendation    *recommend.Recommendation
	Playlist          *models.Playlist
	Preferences       map[string]interface{}
	YouTubeLink       string
	Signal            recommend.Signal
	Seed              int64
	CandidatePoolSize int
	RecommendedAt     time.Time
}

// RecommendedTrack 带外链和时间戳的推荐曲目
func (r *Result) RecommendedTrack() map[string]interface{} {
	out := r.Recommendation.Fields()
	if r.YouTubeLink != "" {
		out["youtube_link"] = r.YouTubeLink
	}
	out["recommended_at"] = r.RecommendedAt.UTC().Format(time.RFC3339)
	return out
}

// Service 推荐编排：解析播放列表、拉取候选、打分、补充外链
type Service struct {
	store   playlist.Store
	tokens  TokenVerifier
	catalog catalog.Searcher
	linker  links.Linker
	engine  *recommend.Engine
	config  config.RecommendationConfig
	logger  *logger.Logger
	now     func() time.Time
}

// NewService 创建推荐编排服务，catalog和linker可以为nil
func NewService(store playlist.Store, tokens TokenVerifier, searcher catalog.Searcher, linker links.Linker, engine *recommend.Engine, cfg config.RecommendationConfig) *Service {
	if engine == nil {
		engine = recommend.NewEngine()
	}
	return &Service{
		store:   store,
		tokens:  tokens,
		catalog: searcher,
		linker:  linker,
		engine:  engine,
		config:  cfg,
		logger:  logger.NewLogger("orchestrator"),
		now:     time.Now,
	}
}

// RecommendNext 为播放列表推荐下一首
func (s *Service) RecommendNext(ctx context.Context, req Request) (*Result, error) {
	start := s.now()

	defaultSignal := recommend.Signal(s.config.DefaultSignal)
	if defaultSignal == "" {
		defaultSignal = recommend.SignalHybrid
	}
	signal, err := recommend.ParseSignal(req.Signal, defaultSignal)
	if err != nil {
		return nil, err
	}

	pl, err := s.resolvePlaylist(ctx, req)
	if err != nil {
		metrics.RecordRecommendation(string(signal), "error", false, s.now().Sub(start))
		return nil, err
	}

	candidates, err := s.candidates(ctx, pl, req.CandidateTracks)
	if err != nil {
		metrics.RecordRecommendation(string(signal), "error", false, s.now().Sub(start))
		return nil, err
	}

	seed := start.UnixMilli()
	if req.Seed != nil {
		seed = *req.Seed
	}

	rec, err := s.engine.Recommend(signal, candidates, pl.Tracks, seed)
	if err != nil {
		metrics.RecordRecommendation(string(signal), "error", false, s.now().Sub(start))
		return nil, err
	}
	if rec == nil {
		metrics.RecordRecommendation(string(signal), "empty", false, s.now().Sub(start))
		return nil, errors.ErrResourceNotFound("recommendation", "candidates").
			WithDetails("no suitable track found for recommendation")
	}

	result := &Result{
		Recommendation:    rec,
		Playlist:          pl,
		Preferences:       req.Preferences,
		Signal:            signal,
		Seed:              seed,
		CandidatePoolSize: len(candidates),
		RecommendedAt:     s.now(),
	}
	if result.Preferences == nil {
		result.Preferences = map[string]interface{}{}
	}
	result.YouTubeLink = s.lookupLink(ctx, rec.Track)

	fallback := rec.FallbackReason() != ""
	metrics.RecordRecommendation(string(signal), "success", fallback, s.now().Sub(start))

	s.logger.Info("Recommendation generated", logger.Fields{
		"playlist_id": pl.ID,
		"signal":      string(signal),
		"seed":        seed,
		"candidates":  len(candidates),
		"track_id":    rec.Track.ID(),
		"score":       rec.SimilarityScore(),
		"fallback":    rec.FallbackReason(),
	})
	return result, nil
}

func (s *Service) resolvePlaylist(ctx context.Context, req Request) (*models.Playlist, error) {
	switch {
	case req.PlaylistTracks != nil:
		return &models.Playlist{Name: "ad-hoc", Tracks: req.PlaylistTracks}, nil
	case req.PlaylistToken != "":
		if s.tokens == nil {
			return nil, errors.ErrTokenInvalid("token verification is not configured", nil)
		}
		return s.tokens.Verify(req.PlaylistToken)
	case req.PlaylistID != "":
		if s.store == nil {
			return nil, errors.ErrResourceNotFound("playlist", req.PlaylistID)
		}
		return s.store.Get(ctx, req.PlaylistID)
	default:
		return &models.Playlist{Name: "ad-hoc", Tracks: []models.Track{}}, nil
	}
}

// candidates 优先使用调用方给出的候选，否则按播放列表的艺术家和标签从曲库拉取
func (s *Service) candidates(ctx context.Context, pl *models.Playlist, supplied []models.Track) ([]models.Track, error) {
	pool := supplied
	if len(pool) == 0 {
		if len(pl.Tracks) == 0 {
			return nil, errors.ErrValidationFailed("playlist", "add tracks to the playlist before requesting a recommendation")
		}
		if s.catalog == nil {
			return nil, errors.ErrCatalogUnavailable("catalog search is not configured", nil)
		}
		artists, tags := seedTerms(pl.Tracks)
		fetched, err := s.catalog.Candidates(ctx, catalog.CandidateQuery{
			Artists: artists,
			Tags:    tags,
			Limit:   s.config.MaxCandidates,
		})
		if err != nil {
			return nil, err
		}
		pool = fetched
	}

	if s.config.ExcludePlaylistTracks {
		pool = excludeKnown(pool, pl.Tracks)
	}
	return pool, nil
}

// seedTerms 播放列表中的艺术家(按出现顺序)和出现最多的风格标签
func seedTerms(tracks []models.Track) ([]string, []string) {
	records := features.ExtractAll(tracks)

	artists := make([]string, 0)
	seenArtists := make(map[string]struct{})
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, r := range records {
		if key := r.ArtistKey(); key != "" {
			if _, ok := seenArtists[key]; !ok {
				seenArtists[key] = struct{}{}
				artists = append(artists, r.Artist)
			}
		}
		for _, tag := range r.Tags {
			if strings.Contains(tag, ":") {
				continue
			}
			if _, ok := counts[tag]; !ok {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxSeedTags {
		order = order[:maxSeedTags]
	}
	return artists, order
}

// excludeKnown 去掉已在播放列表中的曲目(按ID或标题+艺术家)
func excludeKnown(pool, known []models.Track) []models.Track {
	ids := make(map[string]struct{}, len(known))
	keys := make(map[string]struct{}, len(known))
	for _, t := range known {
		if id := t.ID(); id != "" {
			ids[id] = struct{}{}
		}
		if t.Title() != "" {
			keys[t.Key()] = struct{}{}
		}
	}

	out := make([]models.Track, 0, len(pool))
	for _, t := range pool {
		if _, ok := ids[t.ID()]; ok && t.ID() != "" {
			continue
		}
		if _, ok := keys[t.Key()]; ok && t.Title() != "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// lookupLink 外链查询失败不影响推荐
func (s *Service) lookupLink(ctx context.Context, track models.Track) string {
	if s.linker == nil || (track.Title() == "" && track.Artist() == "") {
		return ""
	}
	link, err := s.linker.Lookup(ctx, track.Title(), track.Artist())
	if err != nil {
		s.logger.WithError(err).WithField("track_id", track.ID()).
			Warn("Link lookup failed, returning recommendation without link")
		return ""
	}
	return link
}
