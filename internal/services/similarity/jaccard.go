package similarity

import "strings"

// WeightedResult 带部分匹配的加权Jaccard结果
type WeightedResult struct {
	Similarity     float64  `json:"similarity"`
	ExactMatches   int      `json:"exact_matches"`
	PartialMatches float64  `json:"partial_matches"`
	MatchedTags    []string `json:"matched_tags"` // 部分匹配记为 "a~b"
	TotalTags      int      `json:"total_tags"`
}

// Comprehensive 多种Jaccard指标的组合结果
type Comprehensive struct {
	Aggregated     float64  `json:"aggregated_similarity"`
	Average        float64  `json:"average_similarity"`
	Max            float64  `json:"max_similarity"`
	Weighted       float64  `json:"weighted_similarity"`
	Overlap        float64  `json:"overlap_similarity"`
	Combined       float64  `json:"combined_score"`
	ExactMatches   int      `json:"exact_matches"`
	PartialMatches float64  `json:"partial_matches"`
	MatchedTags    []string `json:"matched_tags"`
}

type set map[string]struct{}

func toSet(items []string) set {
	s := make(set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

func intersectionSize(a, b set) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for item := range a {
		if _, ok := b[item]; ok {
			n++
		}
	}
	return n
}

func jaccardSets(a, b set) float64 {
	inter := intersectionSize(a, b)
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Jaccard |A∩B| / |A∪B|，并集为空时返回0
func Jaccard(a, b []string) float64 {
	return jaccardSets(toSet(a), toSet(b))
}

// AggregatedJaccard 候选集合与所有参考集合并集的Jaccard
func AggregatedJaccard(candidate []string, references ...[]string) float64 {
	if len(references) == 0 {
		return 0
	}
	aggregated := make(set)
	for _, ref := range references {
		for _, tag := range ref {
			aggregated[tag] = struct{}{}
		}
	}
	return jaccardSets(toSet(candidate), aggregated)
}

// AverageJaccard 对每个参考集合的Jaccard取平均
func AverageJaccard(candidate []string, references ...[]string) float64 {
	if len(references) == 0 {
		return 0
	}
	c := toSet(candidate)
	total := 0.0
	for _, ref := range references {
		total += jaccardSets(c, toSet(ref))
	}
	return total / float64(len(references))
}

// MaxJaccard 对每个参考集合的Jaccard取最大值
func MaxJaccard(candidate []string, references ...[]string) float64 {
	if len(references) == 0 {
		return 0
	}
	c := toSet(candidate)
	best := 0.0
	for _, ref := range references {
		if s := jaccardSets(c, toSet(ref)); s > best {
			best = s
		}
	}
	return best
}

// OverlapCoefficient |A∩B| / min(|A|,|B|)，多个参考集合时取平均
func OverlapCoefficient(candidate []string, references ...[]string) float64 {
	if len(references) == 0 {
		return 0
	}
	c := toSet(candidate)
	total := 0.0
	for _, ref := range references {
		r := toSet(ref)
		minSize := len(c)
		if len(r) < minSize {
			minSize = len(r)
		}
		if minSize > 0 {
			total += float64(intersectionSize(c, r)) / float64(minSize)
		}
	}
	return total / float64(len(references))
}

// WeightedJaccard 精确匹配记1，子串包含记0.5，
// 分母为候选标签与参考词表并集的大小
func WeightedJaccard(candidate []string, references ...[]string) WeightedResult {
	if len(references) == 0 {
		return WeightedResult{MatchedTags: []string{}, TotalTags: len(candidate)}
	}

	normalizedCandidate := make([]string, 0, len(candidate))
	for _, tag := range candidate {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			normalizedCandidate = append(normalizedCandidate, tag)
		}
	}

	vocabulary := make([]string, 0)
	vocabSet := make(set)
	for _, ref := range references {
		for _, tag := range ref {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" {
				continue
			}
			if _, ok := vocabSet[tag]; ok {
				continue
			}
			vocabSet[tag] = struct{}{}
			vocabulary = append(vocabulary, tag)
		}
	}

	result := WeightedResult{MatchedTags: []string{}}
	for _, a := range normalizedCandidate {
		if _, ok := vocabSet[a]; ok {
			result.ExactMatches++
			result.MatchedTags = append(result.MatchedTags, a)
			continue
		}
		for _, b := range vocabulary {
			if strings.Contains(a, b) || strings.Contains(b, a) {
				result.PartialMatches += 0.5
				result.MatchedTags = append(result.MatchedTags, a+"~"+b)
				break
			}
		}
	}

	union := toSet(normalizedCandidate)
	for tag := range vocabSet {
		union[tag] = struct{}{}
	}
	result.TotalTags = len(union)
	if result.TotalTags > 0 {
		result.Similarity = (float64(result.ExactMatches) + result.PartialMatches) / float64(result.TotalTags)
	}
	return result
}

// ComprehensiveJaccard 0.3聚合 + 0.3平均 + 0.2加权 + 0.1重叠 + 0.1最大
func ComprehensiveJaccard(candidate []string, references ...[]string) Comprehensive {
	if len(references) == 0 {
		return Comprehensive{MatchedTags: []string{}}
	}

	weighted := WeightedJaccard(candidate, references...)
	c := Comprehensive{
		Aggregated:     AggregatedJaccard(candidate, references...),
		Average:        AverageJaccard(candidate, references...),
		Max:            MaxJaccard(candidate, references...),
		Weighted:       weighted.Similarity,
		Overlap:        OverlapCoefficient(candidate, references...),
		ExactMatches:   weighted.ExactMatches,
		PartialMatches: weighted.PartialMatches,
		MatchedTags:    weighted.MatchedTags,
	}
	c.Combined = 0.3*c.Aggregated + 0.3*c.Average + 0.2*c.Weighted + 0.1*c.Overlap + 0.1*c.Max
	return c
}
