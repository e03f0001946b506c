package recommend

import (
	"fmt"

	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
	"nexttrack/internal/models"
)

// Recommender 单个推荐信号
type Recommender interface {
	Signal() Signal
	Recommend(candidates, playlist []models.Track, seed int64) (*Recommendation, error)
}

// Engine 按信号名分派到具体推荐器
type Engine struct {
	recommenders map[Signal]Recommender
	logger       *logger.Logger
}

// NewEngine 创建包含全部信号的推荐引擎
func NewEngine() *Engine {
	artist := NewArtistRecommender()
	tags := NewTagRecommender()
	temporal := NewTemporalRecommender()
	length := NewLengthRecommender()

	e := &Engine{
		recommenders: make(map[Signal]Recommender),
		logger:       logger.NewLogger("recommend-engine"),
	}
	for _, r := range []Recommender{
		artist,
		tags,
		temporal,
		length,
		NewRandomRecommender(),
		NewHybridRecommender(artist, tags, temporal, length),
	} {
		e.Register(r)
	}
	return e
}

// Register 注册或替换某个信号的推荐器
func (e *Engine) Register(r Recommender) {
	e.recommenders[r.Signal()] = r
}

// Signals 已注册的信号
func (e *Engine) Signals() []Signal {
	out := make([]Signal, 0, len(e.recommenders))
	for _, s := range []Signal{SignalArtist, SignalTags, SignalTemporal, SignalLength, SignalRandom, SignalHybrid} {
		if _, ok := e.recommenders[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ParseSignal 解析信号名，空字符串使用默认值
func ParseSignal(name string, fallback Signal) (Signal, error) {
	if name == "" {
		return fallback, nil
	}
	switch s := Signal(name); s {
	case SignalArtist, SignalTags, SignalTemporal, SignalLength, SignalRandom, SignalHybrid:
		return s, nil
	default:
		return "", errors.ErrValidationFailed("signal", fmt.Sprintf("unknown signal %q", name))
	}
}

// Recommend 从候选集中选出一首曲目，候选为空时返回nil
func (e *Engine) Recommend(signal Signal, candidates, playlist []models.Track, seed int64) (*Recommendation, error) {
	r, ok := e.recommenders[signal]
	if !ok {
		return nil, errors.ErrValidationFailed("signal", fmt.Sprintf("unknown signal %q", signal))
	}
	if len(candidates) == 0 {
		e.logger.Debug("No candidates to recommend from", logger.Fields{"signal": string(signal)})
		return nil, nil
	}

	rec, err := r.Recommend(candidates, playlist, seed)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	rec.Signal = signal
	if rec.Details == nil {
		rec.Details = Details{}
	}
	if len(playlist) == 0 && rec.FallbackReason() == "" {
		rec.Details["fallback_reason"] = "empty_playlist"
	}

	e.logger.Debug("Recommendation produced", logger.Fields{
		"signal":     string(signal),
		"candidates": len(candidates),
		"playlist":   len(playlist),
		"track_id":   rec.Track.ID(),
		"score":      rec.SimilarityScore(),
		"fallback":   rec.FallbackReason(),
	})
	return rec, nil
}
