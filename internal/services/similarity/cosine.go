package similarity

import (
	"fmt"
	"math"

	"nexttrack/internal/errors"
)

// CosineResult 多参考向量的余弦相似度结果
type CosineResult struct {
	Average  float64 `json:"average_similarity"`
	Max      float64 `json:"max_similarity"`
	Combined float64 `json:"combined_score"`
}

// Cosine 余弦相似度，维度不一致属于调用方错误，任一向量模为0时返回0
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.ErrValidationFailed("vectors",
			fmt.Sprintf("dimensions must match (%d != %d)", len(a), len(b)))
	}

	dot, normA, normB := 0.0, 0.0, 0.0
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	s := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// 浮点误差可能略微越界
	return math.Max(-1, math.Min(1, s)), nil
}

// AverageCosine 对每个参考向量的余弦相似度取平均
func AverageCosine(candidate []float64, references [][]float64) (float64, error) {
	if len(references) == 0 {
		return 0, nil
	}
	total := 0.0
	for _, ref := range references {
		s, err := Cosine(candidate, ref)
		if err != nil {
			return 0, err
		}
		total += s
	}
	return total / float64(len(references)), nil
}

// MaxCosine 对每个参考向量的余弦相似度取最大值
func MaxCosine(candidate []float64, references [][]float64) (float64, error) {
	if len(references) == 0 {
		return 0, nil
	}
	best := math.Inf(-1)
	for _, ref := range references {
		s, err := Cosine(candidate, ref)
		if err != nil {
			return 0, err
		}
		if s > best {
			best = s
		}
	}
	return best, nil
}

// ComprehensiveCosine 0.7平均 + 0.3最大
func ComprehensiveCosine(candidate []float64, references [][]float64) (CosineResult, error) {
	avg, err := AverageCosine(candidate, references)
	if err != nil {
		return CosineResult{}, err
	}
	best, err := MaxCosine(candidate, references)
	if err != nil {
		return CosineResult{}, err
	}
	return CosineResult{
		Average:  avg,
		Max:      best,
		Combined: 0.7*avg + 0.3*best,
	}, nil
}
