package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
	"nexttrack/internal/models"
	"nexttrack/internal/services/features"
)

const (
	hybridBaseWeight   = 0.25
	hybridMinWeight    = 0.05
	hybridTopPool      = 8
	hybridFinalPool    = 3
	hybridRankPenalty  = 0.02
	consensusFactor    = 0.1
	maxDiversityBonus  = 0.2
	diversityYearDelta = 10.0
)

// PlaylistCharacteristics 播放列表多样性特征
type PlaylistCharacteristics struct {
	ArtistDiversity   float64
	TagDiversity      float64
	TemporalSpread    float64
	LengthVariability float64
	Size              int
	UniqueArtists     int
	UniqueTags        int
}

// AnalysePlaylist 计算艺术家/标签多样性、年代跨度和时长变异系数，数据不足时为0
func AnalysePlaylist(records []features.Record) PlaylistCharacteristics {
	c := PlaylistCharacteristics{Size: len(records)}
	if len(records) == 0 {
		return c
	}

	artists := make(map[string]struct{})
	tags := make(map[string]struct{})
	var years, durations stats.Float64Data
	for _, r := range records {
		artist := r.Artist
		if artist == "" {
			artist = "Unknown"
		}
		artists[artist] = struct{}{}
		for _, tag := range r.Tags {
			tags[tag] = struct{}{}
		}
		if r.HasYear() {
			years = append(years, float64(r.YearValue()))
		}
		if d := r.DurationValue(); d > 0 {
			durations = append(durations, d)
		}
	}

	c.UniqueArtists = len(artists)
	c.UniqueTags = len(tags)
	c.ArtistDiversity = float64(len(artists)) / float64(len(records))
	c.TagDiversity = float64(len(tags)) / float64(len(records))

	if len(years) > 1 {
		minYear, _ := stats.Min(years)
		maxYear, _ := stats.Max(years)
		if maxYear > 0 {
			c.TemporalSpread = (maxYear - minYear) / maxYear
		}
	}
	if len(durations) > 1 {
		mean, _ := stats.Mean(durations)
		std, _ := stats.StandardDeviationPopulation(durations)
		if mean > 0 {
			c.LengthVariability = std / mean
		}
	}
	return c
}

// Weights 各信号权重
type Weights map[Signal]float64

// adjustment 单个信号的权重调整规则
type adjustment struct {
	low, high      float64
	bonus, penalty float64
	bonusLabel     string
	penaltyLabel   string
}

var weightRules = map[Signal]adjustment{
	SignalArtist:   {low: 0.3, high: 0.8, bonus: 0.2, penalty: 0.1, bonusLabel: "+20%", penaltyLabel: "-10%"},
	SignalTags:     {low: 0.5, high: 1.5, bonus: 0.15, penalty: 0.1, bonusLabel: "+15%", penaltyLabel: "-10%"},
	SignalTemporal: {low: 0.1, high: 0.5, bonus: 0.1, penalty: 0.05, bonusLabel: "+10%", penaltyLabel: "-5%"},
	SignalLength:   {low: 0.2, high: 0.5, bonus: 0.1, penalty: 0.05, bonusLabel: "+10%", penaltyLabel: "-5%"},
}

func (c PlaylistCharacteristics) metric(signal Signal) float64 {
	switch signal {
	case SignalArtist:
		return c.ArtistDiversity
	case SignalTags:
		return c.TagDiversity
	case SignalTemporal:
		return c.TemporalSpread
	default:
		return c.LengthVariability
	}
}

// AdaptiveWeights 集中的维度加权、分散的维度减权，归一化后每项不低于0.05
func AdaptiveWeights(c PlaylistCharacteristics) Weights {
	raw := make(Weights, len(fusionSignals))
	total := 0.0
	for _, signal := range fusionSignals {
		rule := weightRules[signal]
		w := hybridBaseWeight
		switch m := c.metric(signal); {
		case m < rule.low:
			w += rule.bonus
		case m > rule.high:
			w -= rule.penalty
		}
		raw[signal] = w
		total += w
	}

	weights := make(Weights, len(raw))
	for signal, w := range raw {
		weights[signal] = math.Max(hybridMinWeight, w/total)
	}
	return weights
}

func weightAdjustments(c PlaylistCharacteristics) map[string]string {
	out := make(map[string]string, len(fusionSignals))
	for _, signal := range fusionSignals {
		rule := weightRules[signal]
		label := "0%"
		switch m := c.metric(signal); {
		case m < rule.low:
			label = rule.bonusLabel
		case m > rule.high:
			label = rule.penaltyLabel
		}
		key := string(signal) + "_adjustment"
		if signal == SignalTags {
			key = "tag_adjustment"
		}
		out[key] = label
	}
	return out
}

// diversityContext 计算多样性加分所需的播放列表数据
type diversityContext struct {
	artists map[string]struct{}
	tags    map[string]struct{}
	avgYear float64
	hasYear bool
}

func newDiversityContext(records []features.Record) diversityContext {
	ctx := diversityContext{
		artists: make(map[string]struct{}),
		tags:    make(map[string]struct{}),
	}
	var years stats.Float64Data
	for _, r := range records {
		ctx.artists[r.ArtistKey()] = struct{}{}
		for _, tag := range r.Tags {
			ctx.tags[tag] = struct{}{}
		}
		if r.HasYear() {
			years = append(years, float64(r.YearValue()))
		}
	}
	if len(years) > 0 {
		ctx.avgYear, _ = stats.Mean(years)
		ctx.hasYear = true
	}
	return ctx
}

// bonus 新艺术家+0.05，新标签+0.03，年份偏离平均超过10年+0.02，上限0.2
func (d diversityContext) bonus(track models.Track, playlistSize int) float64 {
	if playlistSize == 0 {
		return 0
	}
	record := features.Extract(track)
	bonus := 0.0
	if _, known := d.artists[record.ArtistKey()]; !known {
		bonus += 0.05
	}
	for _, tag := range record.Tags {
		if _, known := d.tags[tag]; !known {
			bonus += 0.03
			break
		}
	}
	if d.hasYear && record.HasYear() && math.Abs(float64(record.YearValue())-d.avgYear) > diversityYearDelta {
		bonus += 0.02
	}
	return math.Min(maxDiversityBonus, bonus)
}

// fused 合并后的候选
type fused struct {
	track        models.Track
	key          string
	scores       map[Signal]float64
	contributing []Signal
	consensus    float64
	diversity    float64
	hybrid       float64
	final        float64
}

// HybridRecommender 自适应加权融合四个画像信号
type HybridRecommender struct {
	signals map[Signal]Recommender
	logger  *logger.Logger
}

// NewHybridRecommender 创建混合推荐器
func NewHybridRecommender(artist, tags, temporal, length Recommender) *HybridRecommender {
	return &HybridRecommender{
		signals: map[Signal]Recommender{
			SignalArtist:   artist,
			SignalTags:     tags,
			SignalTemporal: temporal,
			SignalLength:   length,
		},
		logger: logger.NewLogger("recommend-hybrid"),
	}
}

// Signal 信号名
func (h *HybridRecommender) Signal() Signal {
	return SignalHybrid
}

// Recommend 调用各信号、按曲目合并、加权并做多样性重排
func (h *HybridRecommender) Recommend(candidates, playlist []models.Track, seed int64) (*Recommendation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	playlistRecords := features.ExtractAll(playlist)
	characteristics := AnalysePlaylist(playlistRecords)
	weights := AdaptiveWeights(characteristics)

	outputs := make(map[Signal]*Recommendation, len(fusionSignals))
	used := make([]string, 0, len(fusionSignals))
	for _, signal := range fusionSignals {
		if weights[signal] <= 0 {
			continue
		}
		used = append(used, string(signal))
		if rec := h.invoke(signal, candidates, playlist, seed); rec != nil {
			outputs[signal] = rec
		}
	}

	diversity := newDiversityContext(playlistRecords)
	merged := h.merge(outputs, weights, diversity, len(playlist))
	if len(merged) == 0 {
		h.logger.Warn("No signal produced a usable recommendation, falling back to random", logger.Fields{
			"candidates": len(candidates),
			"playlist":   len(playlist),
		})
		return h.randomFallback(candidates, seed), nil
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].hybrid > merged[j].hybrid })
	top := merged
	if len(top) > hybridTopPool {
		top = top[:hybridTopPool]
	}
	selected := h.selectDiverse(top, diversity, len(playlist), seed)

	rank := 0
	for i, m := range merged {
		if m.key == selected.key {
			rank = i + 1
			break
		}
	}

	componentScores := make(map[string]float64, len(selected.scores))
	for signal, s := range selected.scores {
		componentScores[string(signal)] = s
	}
	weightOut := make(map[string]float64, len(weights))
	for signal, w := range weights {
		weightOut[string(signal)] = w
	}

	details := Details{
		"algorithm_weights":       weightOut,
		"contributing_algorithms": used,
		"component_scores":        componentScores,
		"diversity_bonus":         selected.diversity,
		"consensus_bonus":         selected.consensus,
		"fusion_score":            selected.hybrid,
		"playlist_characteristics": map[string]interface{}{
			"artist_diversity":   fmt.Sprintf("%.3f", characteristics.ArtistDiversity),
			"tag_diversity":      fmt.Sprintf("%.3f", characteristics.TagDiversity),
			"temporal_spread":    fmt.Sprintf("%.3f", characteristics.TemporalSpread),
			"length_variability": fmt.Sprintf("%.3f", characteristics.LengthVariability),
			"playlist_size":      characteristics.Size,
		},
		"fusion_methodology": map[string]interface{}{
			"base_weights": map[string]float64{
				"artist":   hybridBaseWeight,
				"tags":     hybridBaseWeight,
				"temporal": hybridBaseWeight,
				"length":   hybridBaseWeight,
			},
			"adaptive_adjustments": weightAdjustments(characteristics),
			"consensus_factor":     float64(len(selected.contributing)) / float64(len(fusionSignals)),
			"diversity_factor":     selected.diversity,
		},
		"recommendation_context": map[string]int{
			"total_candidates":    len(merged),
			"top_candidates_pool": len(top),
			"selected_rank":       rank,
		},
	}

	h.logger.Debug("Hybrid recommendation selected", logger.Fields{
		"merged":       len(merged),
		"contributing": len(selected.contributing),
		"fusion_score": selected.hybrid,
		"rank":         rank,
	})

	return &Recommendation{
		Track:       selected.track,
		Score:       math.Max(0, math.Min(1, selected.hybrid)),
		Explanation: hybridExplanation(selected),
		Details:     details,
	}, nil
}

// invoke 调用单个信号，错误和panic都视为无贡献
func (h *HybridRecommender) invoke(signal Signal, candidates, playlist []models.Track, seed int64) (rec *Recommendation) {
	recommender := h.signals[signal]
	if recommender == nil {
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("Signal panicked during fusion", logger.Fields{
				"signal": string(signal),
				"panic":  fmt.Sprint(p),
			})
			rec = nil
		}
	}()

	rec, err := recommender.Recommend(candidates, playlist, seed)
	if err != nil {
		appErr, ok := errors.As(err)
		if !ok {
			appErr = errors.NewAppError(errors.ErrorTypeSystem, errors.ErrCodeSystemGeneric, "Signal failed").WithCause(err)
		}
		h.logger.LogAppError(appErr.WithContext(map[string]interface{}{"signal": string(signal)}),
			"Signal failed during fusion, ignoring its contribution")
		return nil
	}
	return rec
}

// merge 按标题+艺术家合并各信号的推荐并计算融合分
func (h *HybridRecommender) merge(outputs map[Signal]*Recommendation, weights Weights, diversity diversityContext, playlistSize int) []*fused {
	byKey := make(map[string]*fused)
	order := make([]string, 0)
	for _, signal := range fusionSignals {
		rec, ok := outputs[signal]
		if !ok || rec == nil {
			continue
		}
		if rec.Track.Title() == "" || rec.Track.Artist() == "" {
			h.logger.Warn("Signal returned a track without title or artist", logger.Fields{
				"signal": string(signal),
			})
			continue
		}
		key := rec.Track.Key()
		f, exists := byKey[key]
		if !exists {
			f = &fused{track: rec.Track, key: key, scores: make(map[Signal]float64)}
			byKey[key] = f
			order = append(order, key)
		}
		f.scores[signal] = rec.Score
		f.contributing = append(f.contributing, signal)
	}

	out := make([]*fused, 0, len(order))
	for _, key := range order {
		f := byKey[key]
		weighted, total := 0.0, 0.0
		for _, signal := range fusionSignals {
			if s, ok := f.scores[signal]; ok {
				weighted += weights[signal] * s
				total += weights[signal]
			}
		}
		if total <= 0 {
			continue
		}
		f.consensus = float64(len(f.contributing)) / float64(len(fusionSignals)) * consensusFactor
		f.diversity = diversity.bonus(f.track, playlistSize)
		f.hybrid = weighted/total + f.consensus + f.diversity
		out = append(out, f)
	}
	return out
}

// selectDiverse 在头部候选中按 融合分+多样性-0.02*名次 重排，取前三按seed选择
func (h *HybridRecommender) selectDiverse(top []*fused, diversity diversityContext, playlistSize int, seed int64) *fused {
	if len(top) == 1 {
		return top[0]
	}
	reranked := make([]*fused, len(top))
	for i, f := range top {
		f.final = f.hybrid + diversity.bonus(f.track, playlistSize) - float64(i)*hybridRankPenalty
		reranked[i] = f
	}
	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].final > reranked[j].final })
	if len(reranked) > hybridFinalPool {
		reranked = reranked[:hybridFinalPool]
	}
	return reranked[newPicker(seed).index(len(reranked))]
}

func (h *HybridRecommender) randomFallback(candidates []models.Track, seed int64) *Recommendation {
	return randomFallback(candidates, seed, 0.5, "hybrid discovery (random selection)", Details{
		"hybrid_fusion": map[string]string{
			"selection_method": "random_fallback",
			"reason":           "insufficient_algorithm_data",
		},
		"fallback_reason": "random_fallback",
	})
}

func hybridExplanation(f *fused) string {
	names := make([]string, len(f.contributing))
	for i, s := range f.contributing {
		names[i] = string(s)
	}
	switch len(names) {
	case 0:
		return "Hybrid recommendation"
	case 1:
		return fmt.Sprintf("Hybrid recommendation driven by %s similarity", names[0])
	default:
		return fmt.Sprintf("Hybrid consensus of %d signals (%s)", len(names), strings.Join(names, ", "))
	}
}
