package recommend

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"nexttrack/internal/logger"
	"nexttrack/internal/models"
	"nexttrack/internal/services/features"
	"nexttrack/internal/services/similarity"
)

const (
	lengthPoolSize = 6
	lengthMinScore = 0.1
	lengthMinSigma = 30000.0 // 30秒
)

// DurationCluster 时长三分位簇
type DurationCluster struct {
	Count       int     `json:"count"`
	AvgDuration float64 `json:"avg_duration"`
	MaxDuration float64 `json:"max_duration"`
}

// DurationProfile 播放列表时长统计(毫秒)
type DurationProfile struct {
	Valid       bool
	Durations   []float64
	AvgDuration float64
	StdDuration float64
	MinDuration float64
	MaxDuration float64
	Short       DurationCluster
	Medium      DurationCluster
	Long        DurationCluster
	P25         float64
	P50         float64
	P75         float64
}

// BuildDurationProfile 统计播放列表的时长分布
func BuildDurationProfile(records []features.Record) DurationProfile {
	data := make(stats.Float64Data, 0, len(records))
	for _, r := range records {
		if d := r.DurationValue(); d > 0 {
			data = append(data, d)
		}
	}
	if len(data) == 0 {
		return DurationProfile{}
	}

	avg, _ := stats.Mean(data)
	std, _ := stats.StandardDeviationPopulation(data)
	minD, _ := stats.Min(data)
	maxD, _ := stats.Max(data)

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	n := len(sorted)
	percentile := func(p float64) float64 {
		idx := int(math.Floor(float64(n) * p))
		if idx >= n {
			idx = n - 1
		}
		return sorted[idx]
	}

	third := n / 3
	cluster := func(part []float64, maxIdx int) DurationCluster {
		c := DurationCluster{Count: len(part)}
		if len(part) > 0 {
			c.AvgDuration, _ = stats.Mean(part)
		}
		if maxIdx >= 0 && maxIdx < n {
			c.MaxDuration = sorted[maxIdx]
		}
		return c
	}

	return DurationProfile{
		Valid:       true,
		Durations:   []float64(data),
		AvgDuration: avg,
		StdDuration: std,
		MinDuration: minD,
		MaxDuration: maxD,
		Short:       cluster(sorted[:third], third-1),
		Medium:      cluster(sorted[third:2*third], 2*third-1),
		Long:        cluster(sorted[2*third:], n-1),
		P25:         percentile(0.25),
		P50:         percentile(0.50),
		P75:         percentile(0.75),
	}
}

// Sigma 高斯核宽度，下限30秒
func (p DurationProfile) Sigma() float64 {
	return math.Max(p.StdDuration, lengthMinSigma)
}

// GaussianSimilarity 时长与平均时长的高斯接近度
func (p DurationProfile) GaussianSimilarity(duration float64) float64 {
	if duration == 0 {
		return 0
	}
	d := duration - p.AvgDuration
	sigma := p.Sigma()
	return math.Exp(-(d * d) / (2 * sigma * sigma))
}

// ClusterName 候选时长所属的簇
func (p DurationProfile) ClusterName(duration float64) string {
	switch {
	case duration <= p.Short.MaxDuration:
		return "short"
	case duration <= p.Medium.MaxDuration:
		return "medium"
	default:
		return "long"
	}
}

// ClusterBonus 所属簇在播放列表中的占比
func (p DurationProfile) ClusterBonus(duration float64) float64 {
	if duration == 0 {
		return 0
	}
	total := p.Short.Count + p.Medium.Count + p.Long.Count
	if total == 0 {
		return 0
	}
	var count int
	switch p.ClusterName(duration) {
	case "short":
		count = p.Short.Count
	case "medium":
		count = p.Medium.Count
	default:
		count = p.Long.Count
	}
	return float64(count) / float64(total)
}

// DistributionScore 四分位内1.0，范围内0.6，范围外指数衰减
func (p DurationProfile) DistributionScore(duration float64) float64 {
	if duration == 0 {
		return 0
	}
	if duration >= p.P25 && duration <= p.P75 {
		return 1.0
	}
	if duration >= p.MinDuration && duration <= p.MaxDuration {
		return 0.6
	}
	distance := math.Min(math.Abs(duration-p.MinDuration), math.Abs(duration-p.MaxDuration))
	if p.AvgDuration <= 0 {
		return 0
	}
	return math.Exp(-distance/p.AvgDuration) * 0.3
}

func categoriseDuration(ms float64) string {
	minutes := ms / 60000
	switch {
	case minutes < 2:
		return "very_short"
	case minutes < 3.5:
		return "short"
	case minutes < 5:
		return "medium"
	case minutes < 7:
		return "long"
	default:
		return "very_long"
	}
}

func lengthExplanation(duration float64, profile DurationProfile) string {
	if duration == 0 {
		return "Duration exploration (unknown length)"
	}
	diff := math.Abs(duration - profile.AvgDuration)
	tolerance := profile.StdDuration
	if tolerance == 0 {
		tolerance = lengthMinSigma
	}
	switch {
	case diff <= tolerance:
		return fmt.Sprintf("Similar length (%s)", formatDuration(duration))
	case diff <= 2*tolerance:
		return fmt.Sprintf("Comparable length (%s)", formatDuration(duration))
	default:
		return fmt.Sprintf("Duration variety (%s)", formatDuration(duration))
	}
}

// LengthRecommender 基于时长的推荐
type LengthRecommender struct {
	logger *logger.Logger
}

// NewLengthRecommender 创建时长推荐器
func NewLengthRecommender() *LengthRecommender {
	return &LengthRecommender{logger: logger.NewLogger("recommend-length")}
}

// Signal 信号名
func (r *LengthRecommender) Signal() Signal {
	return SignalLength
}

type lengthScore struct {
	scored
	duration     float64
	gaussian     float64
	cluster      float64
	distribution float64
	cosine       float64
}

// Recommend 按时长分布打分，从头部候选中按seed选择
func (r *LengthRecommender) Recommend(candidates, playlist []models.Track, seed int64) (*Recommendation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	playlistRecords := features.ExtractAll(playlist)
	profile := BuildDurationProfile(playlistRecords)
	if !profile.Valid {
		r.logger.Debug("Playlist has no usable durations, falling back to random", logger.Fields{
			"playlist_size": len(playlist),
		})
		return r.randomFallback(candidates, seed), nil
	}

	playlistVectors := make([][]float64, len(playlistRecords))
	for i, rec := range playlistRecords {
		playlistVectors[i] = rec.Vector()
	}

	results := make([]lengthScore, 0, len(candidates))
	for i, track := range candidates {
		record := features.Extract(track)
		duration := record.DurationValue()
		if duration <= 0 {
			continue
		}

		cosine, err := similarity.ComprehensiveCosine(record.Vector(), playlistVectors)
		if err != nil {
			return nil, err
		}

		s := lengthScore{
			duration:     duration,
			gaussian:     profile.GaussianSimilarity(duration),
			cluster:      profile.ClusterBonus(duration),
			distribution: profile.DistributionScore(duration),
			cosine:       cosine.Combined,
		}
		s.index = i
		s.track = track
		s.score = 0.4*s.gaussian + 0.25*s.cluster + 0.15*s.distribution + 0.2*s.cosine +
			tieBreak(seed, track.Title(), 1000)
		if s.score > lengthMinScore {
			results = append(results, s)
		}
	}

	if len(results) == 0 {
		return r.randomFallback(candidates, seed), nil
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	ranked := make([]scored, len(results))
	byIndex := make(map[int]lengthScore, len(results))
	for i, res := range results {
		ranked[i] = res.scored
		byIndex[res.index] = res
	}
	pool := topPool(ranked, lengthPoolSize, poolMargin)
	selected := byIndex[pool[newPicker(seed).index(len(pool))].index]

	r.logger.Debug("Length recommendation selected", logger.Fields{
		"candidates": len(candidates),
		"valid":      len(results),
		"pool":       len(pool),
		"duration":   selected.duration,
		"score":      selected.score,
	})

	return &Recommendation{
		Track:       selected.track,
		Score:       selected.score,
		Explanation: lengthExplanation(selected.duration, profile),
		Details: Details{
			"score_breakdown": map[string]string{
				"track_duration":        formatDuration(selected.duration),
				"playlist_avg_duration": formatDuration(profile.AvgDuration),
				"duration_difference":   formatDuration(math.Abs(selected.duration - profile.AvgDuration)),
				"length_category":       categoriseDuration(selected.duration),
			},
			"similarity_components": map[string]string{
				"gaussian_similarity": fmt.Sprintf("%.3f", selected.gaussian),
				"cluster_bonus":       fmt.Sprintf("%.3f", selected.cluster),
				"distribution_score":  fmt.Sprintf("%.3f", selected.distribution),
				"cosine_similarity":   fmt.Sprintf("%.3f", selected.cosine),
			},
			"duration_cluster": profile.ClusterName(selected.duration),
			"playlist_percentiles": map[string]string{
				"p25": formatDuration(profile.P25),
				"p50": formatDuration(profile.P50),
				"p75": formatDuration(profile.P75),
			},
			"gaussian_sigma":      profile.Sigma(),
			"candidate_pool_size": len(pool),
		},
	}, nil
}

func (r *LengthRecommender) randomFallback(candidates []models.Track, seed int64) *Recommendation {
	return randomFallback(candidates, seed, 0.5, "Duration exploration (random selection)", Details{
		"score_breakdown": map[string]string{
			"selection_method": "random_fallback",
			"reason":           "insufficient_duration_data",
		},
		"fallback_reason": "insufficient_duration_data",
	})
}
