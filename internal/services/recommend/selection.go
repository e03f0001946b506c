package recommend

import (
	"math/rand/v2"
	"unicode/utf8"

	"nexttrack/internal/models"
)

// poolMargin 进入随机池的候选与最高分的最大差距，池子比单纯取前N个更窄
const poolMargin = 0.2

// picker 由seed驱动的可复现随机选择
type picker struct {
	seed int64
	rng  *rand.Rand
}

func newPicker(seed int64) *picker {
	return &picker{
		seed: seed,
		rng:  rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)),
	}
}

// index 返回 (seed + random) mod n
func (p *picker) index(n int) int {
	if n <= 1 {
		return 0
	}
	m := int64(n)
	idx := (p.seed%m + int64(p.rng.IntN(n))) % m
	if idx < 0 {
		idx += m
	}
	return int(idx)
}

// tieBreak ((seed + 标题长度) mod 100) / divisor
func tieBreak(seed int64, title string, divisor float64) float64 {
	v := (seed%100 + int64(utf8.RuneCountInString(title))) % 100
	if v < 0 {
		v += 100
	}
	return float64(v) / divisor
}

// scored 打分后的候选曲目
type scored struct {
	index int // 在候选列表中的位置
	track models.Track
	score float64
}

// topPool 取前limit个，且分数不低于最高分减去margin
func topPool(sortedDesc []scored, limit int, margin float64) []scored {
	if len(sortedDesc) == 0 {
		return nil
	}
	best := sortedDesc[0].score
	pool := make([]scored, 0, limit)
	for _, s := range sortedDesc {
		if len(pool) == limit || s.score < best-margin {
			break
		}
		pool = append(pool, s)
	}
	return pool
}

// randomFallback 在整个候选集中均匀随机选择
func randomFallback(candidates []models.Track, seed int64, score float64, explanation string, details Details) *Recommendation {
	idx := newPicker(seed).index(len(candidates))
	return &Recommendation{
		Track:       candidates[idx],
		Score:       score,
		Explanation: explanation,
		Details:     details,
	}
}
