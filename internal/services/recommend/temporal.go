package recommend

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"nexttrack/internal/logger"
	"nexttrack/internal/models"
	"nexttrack/internal/services/features"
)

const (
	temporalPoolSize   = 6
	temporalMinScore   = 0.1
	temporalMinSigma   = 5.0
	recencyWindowYears = 50.0
)

// TemporalProfile 播放列表年代统计
type TemporalProfile struct {
	Valid              bool
	Years              []int
	AvgYear            int
	YearSpread         int // 总体标准差，四舍五入
	MinYear            int
	MaxYear            int
	DecadeDistribution map[int]int
}

// BuildTemporalProfile 统计播放列表的年份分布
func BuildTemporalProfile(records []features.Record) TemporalProfile {
	years := make([]int, 0, len(records))
	data := make(stats.Float64Data, 0, len(records))
	for _, r := range records {
		if r.HasYear() {
			years = append(years, r.YearValue())
			data = append(data, float64(r.YearValue()))
		}
	}
	if len(years) == 0 {
		return TemporalProfile{}
	}

	mean, _ := stats.Mean(data)
	spread, _ := stats.StandardDeviationPopulation(data)
	minYear, _ := stats.Min(data)
	maxYear, _ := stats.Max(data)

	decades := make(map[int]int)
	for _, y := range years {
		decades[(y/10)*10]++
	}

	return TemporalProfile{
		Valid:              true,
		Years:              years,
		AvgYear:            int(math.Round(mean)),
		YearSpread:         int(math.Round(spread)),
		MinYear:            int(minYear),
		MaxYear:            int(maxYear),
		DecadeDistribution: decades,
	}
}

// Sigma 高斯核宽度，下限5年
func (p TemporalProfile) Sigma() float64 {
	return math.Max(float64(p.YearSpread), temporalMinSigma)
}

// GaussianSimilarity 年份与平均年份的高斯接近度
func (p TemporalProfile) GaussianSimilarity(year int) float64 {
	if year == 0 {
		return 0
	}
	d := float64(year - p.AvgYear)
	sigma := p.Sigma()
	return math.Exp(-(d * d) / (2 * sigma * sigma))
}

// EraBonus 同一时代加分
func (p TemporalProfile) EraBonus(year int) float64 {
	if year == 0 {
		return 0
	}
	diff := absInt(year - p.AvgYear)
	switch {
	case diff <= 5:
		return 1.0
	case diff <= 10:
		return 0.7
	case diff <= 20:
		return 0.4
	default:
		return 0.1
	}
}

// DecadeBonus 候选年代在播放列表中的占比
func (p TemporalProfile) DecadeBonus(year int) float64 {
	if year == 0 {
		return 0
	}
	total := 0
	for _, c := range p.DecadeDistribution {
		total += c
	}
	if total == 0 {
		return 0
	}
	return float64(p.DecadeDistribution[(year/10)*10]) / float64(total)
}

// Score 0.5高斯 + 0.3时代 + 0.2年代占比
func (p TemporalProfile) Score(year int) float64 {
	return 0.5*p.GaussianSimilarity(year) + 0.3*p.EraBonus(year) + 0.2*p.DecadeBonus(year)
}

// dominantDecades 出现最多的前三个年代
func (p TemporalProfile) dominantDecades() []map[string]int {
	decades := make([]int, 0, len(p.DecadeDistribution))
	for d := range p.DecadeDistribution {
		decades = append(decades, d)
	}
	sort.Slice(decades, func(i, j int) bool {
		ci, cj := p.DecadeDistribution[decades[i]], p.DecadeDistribution[decades[j]]
		if ci != cj {
			return ci > cj
		}
		return decades[i] < decades[j]
	})
	if len(decades) > 3 {
		decades = decades[:3]
	}
	out := make([]map[string]int, len(decades))
	for i, d := range decades {
		out[i] = map[string]int{"decade": d, "count": p.DecadeDistribution[d]}
	}
	return out
}

func eraMatch(year, avg int) string {
	diff := absInt(year - avg)
	switch {
	case diff <= 3:
		return "exact_era"
	case diff <= 8:
		return "close_era"
	case diff <= 15:
		return "same_generation"
	default:
		return "different_era"
	}
}

func temporalExplanation(year, avg int) string {
	if year == 0 {
		return "Era exploration (unknown year)"
	}
	diff := absInt(year - avg)
	switch {
	case diff <= 3:
		return fmt.Sprintf("Same era (%d)", year)
	case diff <= 8:
		return fmt.Sprintf("Similar era (%d)", year)
	case diff <= 15:
		return fmt.Sprintf("Same generation (%d)", year)
	default:
		return fmt.Sprintf("Era exploration (%d)", year)
	}
}

// TemporalRecommender 基于发行年代的推荐
type TemporalRecommender struct {
	logger *logger.Logger
}

// NewTemporalRecommender 创建年代推荐器
func NewTemporalRecommender() *TemporalRecommender {
	return &TemporalRecommender{logger: logger.NewLogger("recommend-temporal")}
}

// Signal 信号名
func (r *TemporalRecommender) Signal() Signal {
	return SignalTemporal
}

// Recommend 按年代接近度打分，从头部候选中按seed选择
func (r *TemporalRecommender) Recommend(candidates, playlist []models.Track, seed int64) (*Recommendation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	profile := BuildTemporalProfile(features.ExtractAll(playlist))
	if !profile.Valid {
		r.logger.Debug("Playlist has no usable years, using recency preference", logger.Fields{
			"playlist_size": len(playlist),
		})
		return r.recencyFallback(candidates, seed), nil
	}

	scoredTracks := make([]scored, 0, len(candidates))
	for i, track := range candidates {
		year := features.Extract(track).YearValue()
		if year <= 0 {
			continue
		}
		score := profile.Score(year) + tieBreak(seed, track.Title(), 1000)
		if score > temporalMinScore {
			scoredTracks = append(scoredTracks, scored{index: i, track: track, score: score})
		}
	}

	if len(scoredTracks) == 0 {
		return r.randomFallback(candidates, seed), nil
	}

	sort.SliceStable(scoredTracks, func(i, j int) bool { return scoredTracks[i].score > scoredTracks[j].score })
	pool := topPool(scoredTracks, temporalPoolSize, poolMargin)
	selected := pool[newPicker(seed).index(len(pool))]
	year := features.Extract(selected.track).YearValue()

	r.logger.Debug("Temporal recommendation selected", logger.Fields{
		"candidates": len(candidates),
		"valid":      len(scoredTracks),
		"pool":       len(pool),
		"year":       year,
		"score":      selected.score,
	})

	return &Recommendation{
		Track:       selected.track,
		Score:       selected.score,
		Explanation: temporalExplanation(year, profile.AvgYear),
		Details: Details{
			"track_year":        year,
			"playlist_avg_year": profile.AvgYear,
			"year_distance":     absInt(year - profile.AvgYear),
			"era_match":         eraMatch(year, profile.AvgYear),
			"temporal_score":    selected.score,
			"year_spread":       profile.YearSpread,
			"playlist_year_range": map[string]int{
				"min": profile.MinYear,
				"max": profile.MaxYear,
			},
			"decade_distribution": profile.dominantDecades(),
			"track_decade":        (year / 10) * 10,
			"gaussian_sigma":      profile.Sigma(),
			"candidate_pool_size": len(pool),
			"similarity_components": map[string]string{
				"gaussian_similarity": fmt.Sprintf("%.3f", profile.GaussianSimilarity(year)),
				"era_bonus":           fmt.Sprintf("%.3f", profile.EraBonus(year)),
				"decade_bonus":        fmt.Sprintf("%.3f", profile.DecadeBonus(year)),
			},
		},
	}, nil
}

// recencyFallback 播放列表没有年份时偏好接近当前年份的候选
func (r *TemporalRecommender) recencyFallback(candidates []models.Track, seed int64) *Recommendation {
	currentYear := features.CurrentYear()

	var best *scored
	anyYear := false
	for i, track := range candidates {
		year := features.Extract(track).YearValue()
		if year <= 0 {
			continue
		}
		anyYear = true
		score := math.Max(0, 1-math.Abs(float64(year-currentYear))/recencyWindowYears)
		if score > 0 && (best == nil || score > best.score) {
			best = &scored{index: i, track: track, score: score}
		}
	}

	if best == nil {
		reason := "No temporal scoring possible"
		avgLabel := "Legacy playlist (no year data)"
		if !anyYear {
			reason = "No valid years found in playlist or candidate tracks"
			avgLabel = "Unknown"
		}
		return randomFallback(candidates, seed, 0, "Temporal discovery (random selection)", Details{
			"track_year":        "Unknown",
			"playlist_avg_year": avgLabel,
			"year_distance":     0,
			"era_match":         "unknown",
			"temporal_score":    0.0,
			"year_spread":       0,
			"fallback_reason":   reason,
		})
	}

	year := features.Extract(best.track).YearValue()
	return &Recommendation{
		Track:       best.track,
		Score:       best.score,
		Explanation: fmt.Sprintf("Modern era preference (%d)", year),
		Details: Details{
			"track_year":        year,
			"playlist_avg_year": "Legacy playlist (no year data)",
			"year_distance":     absInt(year - currentYear),
			"era_match":         "modern era preference",
			"temporal_score":    best.score,
			"year_spread":       0,
			"fallback_reason":   "Using recency preference for legacy playlist without year data",
		},
	}
}

func (r *TemporalRecommender) randomFallback(candidates []models.Track, seed int64) *Recommendation {
	return randomFallback(candidates, seed, 0.5, "Temporal discovery (random selection)", Details{
		"score_breakdown": map[string]string{
			"selection_method": "random_fallback",
			"reason":           "insufficient_temporal_data",
		},
		"fallback_reason": "insufficient_temporal_data",
	})
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
