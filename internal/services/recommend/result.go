package recommend

import (
	"encoding/json"
	"fmt"
	"math"

	"nexttrack/internal/models"
)

// Signal 推荐信号
type Signal string

const (
	SignalArtist   Signal = "artist"
	SignalTags     Signal = "tags"
	SignalTemporal Signal = "temporal"
	SignalLength   Signal = "length"
	SignalRandom   Signal = "random"
	SignalHybrid   Signal = "hybrid"
)

// fusionSignals 参与混合融合的信号，顺序固定
var fusionSignals = []Signal{SignalArtist, SignalTags, SignalTemporal, SignalLength}

// Details 算法细节
type Details map[string]interface{}

// Recommendation 推荐结果：原始曲目 + 分数 + 解释 + 算法细节
type Recommendation struct {
	Track       models.Track
	Score       float64
	Explanation string
	Details     Details
	Signal      Signal
}

// SimilarityScore 保留三位小数的分数字符串
func (r *Recommendation) SimilarityScore() string {
	return formatScore(r.Score)
}

// FallbackReason 降级原因，未降级返回空
func (r *Recommendation) FallbackReason() string {
	if r == nil || r.Details == nil {
		return ""
	}
	reason, _ := r.Details["fallback_reason"].(string)
	return reason
}

// Fields 合并后的扁平字段
func (r *Recommendation) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Track)+3)
	for k, v := range r.Track {
		out[k] = v
	}
	out["similarity_score"] = r.SimilarityScore()
	out["explanation"] = r.Explanation
	details := r.Details
	if details == nil {
		details = Details{}
	}
	out["algorithm_details"] = details
	return out
}

// MarshalJSON 输出原始曲目字段以及 similarity_score/explanation/algorithm_details
func (r *Recommendation) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

func formatScore(score float64) string {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = 0
	}
	return fmt.Sprintf("%.3f", score)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// formatDuration 毫秒转 m:ss
func formatDuration(ms float64) string {
	if ms <= 0 {
		return "0:00"
	}
	minutes := int64(ms / 60000)
	seconds := int64(math.Mod(ms, 60000) / 1000)
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
