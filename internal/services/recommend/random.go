package recommend

import (
	"fmt"
	"math"

	"nexttrack/internal/models"
)

// RandomRecommender 纯随机推荐，最大化探索
type RandomRecommender struct{}

// NewRandomRecommender 创建随机推荐器
func NewRandomRecommender() *RandomRecommender {
	return &RandomRecommender{}
}

// Signal 信号名
func (r *RandomRecommender) Signal() Signal {
	return SignalRandom
}

// Recommend 在候选集中按seed均匀选择
func (r *RandomRecommender) Recommend(candidates, _ []models.Track, seed int64) (*Recommendation, error) {
	n := len(candidates)
	if n == 0 {
		return nil, nil
	}

	idx := newPicker(seed).index(n)
	return &Recommendation{
		Track:       candidates[idx],
		Score:       1.0,
		Explanation: "Random discovery for serendipitous exploration",
		Details: Details{
			"selection_method":      "deterministic_random",
			"candidate_pool_size":   n,
			"selection_index":       idx,
			"diversity_factor":      1.0,
			"randomness_source":     "seed_based",
			"exploration_rate":      "100%",
			"selection_probability": fmt.Sprintf("%.6f", 1/float64(n)),
			"entropy_factor":        fmt.Sprintf("%.3f", math.Log2(float64(n))),
			"discovery_metrics": map[string]string{
				"pool_diversity":        "maximum",
				"predictability":        "minimal",
				"serendipity_potential": "high",
			},
			"algorithm_characteristics": map[string]string{
				"bias":                        "none",
				"preference_learning":         "disabled",
				"exploration_vs_exploitation": "100% exploration",
			},
		},
	}, nil
}
