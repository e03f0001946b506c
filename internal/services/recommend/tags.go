package recommend

import (
	"fmt"
	"sort"
	"strings"

	"nexttrack/internal/logger"
	"nexttrack/internal/models"
	"nexttrack/internal/services/features"
	"nexttrack/internal/services/similarity"
)

// TagProfile 播放列表标签频率
type TagProfile struct {
	Tags      []string // 按频率降序，同频保持首次出现顺序
	Frequency map[string]int
	Total     int
}

// BuildTagProfile 统计播放列表中每个标签出现的次数
func BuildTagProfile(records []features.Record) TagProfile {
	profile := TagProfile{Frequency: make(map[string]int)}
	for _, r := range records {
		for _, tag := range r.Tags {
			if _, seen := profile.Frequency[tag]; !seen {
				profile.Tags = append(profile.Tags, tag)
			}
			profile.Frequency[tag]++
			profile.Total++
		}
	}
	sort.SliceStable(profile.Tags, func(i, j int) bool {
		return profile.Frequency[profile.Tags[i]] > profile.Frequency[profile.Tags[j]]
	})
	return profile
}

// Top 出现最多的前n个标签
func (p TagProfile) Top(n int) []map[string]interface{} {
	if n > len(p.Tags) {
		n = len(p.Tags)
	}
	out := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		out[i] = map[string]interface{}{"tag": p.Tags[i], "count": p.Frequency[p.Tags[i]]}
	}
	return out
}

// TagRecommender 基于标签词表的推荐
type TagRecommender struct {
	logger *logger.Logger
}

// NewTagRecommender 创建标签推荐器
func NewTagRecommender() *TagRecommender {
	return &TagRecommender{logger: logger.NewLogger("recommend-tags")}
}

// Signal 信号名
func (r *TagRecommender) Signal() Signal {
	return SignalTags
}

// TagScore 0.4平均 + 0.3聚合 + 0.2加权 + 0.1最大
func TagScore(c similarity.Comprehensive) float64 {
	return 0.4*c.Average + 0.3*c.Aggregated + 0.2*c.Weighted + 0.1*c.Max
}

// Recommend 选择与播放列表标签最相似的候选
func (r *TagRecommender) Recommend(candidates, playlist []models.Track, seed int64) (*Recommendation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	playlistRecords := features.ExtractAll(playlist)
	profile := BuildTagProfile(playlistRecords)
	references := make([][]string, 0, len(playlistRecords))
	for _, rec := range playlistRecords {
		references = append(references, rec.Tags)
	}

	var (
		best     models.Track
		bestComp similarity.Comprehensive
		bestTags []string
		bestSet  bool
		scoredN  int
	)
	bestScore := 0.0
	for _, track := range candidates {
		record := features.Extract(track)
		if len(record.Tags) == 0 {
			continue
		}
		scoredN++
		comp := similarity.ComprehensiveJaccard(record.Tags, references...)
		score := TagScore(comp)
		if score > bestScore {
			best, bestComp, bestScore, bestTags, bestSet = track, comp, score, record.Tags, true
		}
	}

	if !bestSet {
		reason := "no_tag_overlap"
		if profile.Total == 0 {
			reason = "insufficient_tag_data"
		}
		r.logger.Debug("No candidate shares tags with playlist, falling back to random", logger.Fields{
			"candidates":      len(candidates),
			"tagged":          scoredN,
			"playlist_tags":   len(profile.Tags),
			"fallback_reason": reason,
		})
		return randomFallback(candidates, seed, 0.5, "Tag discovery (random selection)", Details{
			"score_breakdown": map[string]string{
				"selection_method": "random_fallback",
				"reason":           reason,
			},
			"fallback_reason": reason,
		}), nil
	}

	shared := sharedStyleTags(bestTags, profile.Frequency)
	return &Recommendation{
		Track:       best,
		Score:       bestScore,
		Explanation: tagExplanation(shared),
		Details: Details{
			"tag_score":       bestScore,
			"matched_tags":    bestComp.MatchedTags,
			"shared_tags":     shared,
			"exact_matches":   bestComp.ExactMatches,
			"partial_matches": bestComp.PartialMatches,
			"similarity_components": map[string]string{
				"average_similarity":    fmt.Sprintf("%.3f", bestComp.Average),
				"aggregated_similarity": fmt.Sprintf("%.3f", bestComp.Aggregated),
				"weighted_similarity":   fmt.Sprintf("%.3f", bestComp.Weighted),
				"max_similarity":        fmt.Sprintf("%.3f", bestComp.Max),
			},
			"top_playlist_tags":  profile.Top(5),
			"playlist_tag_count": len(profile.Tags),
			"scored_candidates":  scoredN,
		},
	}, nil
}

// sharedStyleTags 与播放列表共有的风格标签(不含伪标签)
func sharedStyleTags(tags []string, playlistFrequency map[string]int) []string {
	out := make([]string, 0)
	for _, tag := range tags {
		if strings.Contains(tag, ":") {
			continue
		}
		if playlistFrequency[tag] > 0 {
			out = append(out, tag)
		}
	}
	return out
}

func tagExplanation(shared []string) string {
	if len(shared) == 0 {
		return "Similar tag profile"
	}
	if len(shared) > 3 {
		shared = shared[:3]
	}
	return fmt.Sprintf("Shares tags: %s", strings.Join(shared, ", "))
}
