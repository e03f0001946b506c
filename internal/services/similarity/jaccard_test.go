package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccard(t *testing.T) {
	t.Run("自身相似度为1", func(t *testing.T) {
		a := []string{"rock", "indie", "decade:1990s"}
		assert.Equal(t, 1.0, Jaccard(a, a))
	})

	t.Run("与空集相似度为0", func(t *testing.T) {
		assert.Equal(t, 0.0, Jaccard([]string{"rock"}, nil))
		assert.Equal(t, 0.0, Jaccard(nil, nil))
	})

	t.Run("对称性", func(t *testing.T) {
		a := []string{"rock", "pop", "indie"}
		b := []string{"pop", "jazz"}
		assert.Equal(t, Jaccard(a, b), Jaccard(b, a))
		assert.InDelta(t, 0.25, Jaccard(a, b), 1e-9)
	})

	t.Run("重复元素按集合处理", func(t *testing.T) {
		assert.Equal(t, 1.0, Jaccard([]string{"a", "a"}, []string{"a"}))
	})
}

func TestMultiReferenceJaccard(t *testing.T) {
	candidate := []string{"rock", "indie"}
	refs := [][]string{{"rock"}, {"indie", "pop"}}

	assert.InDelta(t, 2.0/3.0, AggregatedJaccard(candidate, refs...), 1e-9)
	assert.InDelta(t, (0.5+1.0/3.0)/2, AverageJaccard(candidate, refs...), 1e-9)
	assert.InDelta(t, 0.5, MaxJaccard(candidate, refs...), 1e-9)
	assert.InDelta(t, 0.75, OverlapCoefficient(candidate, refs...), 1e-9)

	t.Run("没有参考集合时全部为0", func(t *testing.T) {
		assert.Equal(t, 0.0, AggregatedJaccard(candidate))
		assert.Equal(t, 0.0, AverageJaccard(candidate))
		assert.Equal(t, 0.0, MaxJaccard(candidate))
		assert.Equal(t, 0.0, OverlapCoefficient(candidate))
		assert.Equal(t, 0.0, WeightedJaccard(candidate).Similarity)
		assert.Equal(t, Comprehensive{MatchedTags: []string{}}, ComprehensiveJaccard(candidate))
	})

	t.Run("空参考集合的重叠系数", func(t *testing.T) {
		assert.Equal(t, 0.0, OverlapCoefficient(candidate, []string{}))
	})
}

func TestWeightedJaccard(t *testing.T) {
	result := WeightedJaccard(
		[]string{"Rock", "post-rock", "jazz"},
		[]string{"rock"}, []string{"ambient"},
	)

	assert.Equal(t, 1, result.ExactMatches)
	assert.Equal(t, 0.5, result.PartialMatches)
	assert.Equal(t, []string{"rock", "post-rock~rock"}, result.MatchedTags)
	// {rock, post-rock, jazz, ambient}
	assert.Equal(t, 4, result.TotalTags)
	assert.InDelta(t, 1.5/4, result.Similarity, 1e-9)
}

func TestWeightedJaccard_BlankTags(t *testing.T) {
	t.Run("空白候选标签不参与部分匹配", func(t *testing.T) {
		result := WeightedJaccard([]string{"", "  "}, []string{"rock"})
		assert.Equal(t, 0, result.ExactMatches)
		assert.Equal(t, 0.0, result.PartialMatches)
		assert.Empty(t, result.MatchedTags)
		assert.Equal(t, 1, result.TotalTags)
		assert.Equal(t, 0.0, result.Similarity)
	})

	t.Run("空白参考标签被忽略", func(t *testing.T) {
		result := WeightedJaccard([]string{"jazz", "rock"}, []string{"", "rock"})
		assert.Equal(t, 1, result.ExactMatches)
		assert.Equal(t, 0.0, result.PartialMatches)
		assert.Equal(t, []string{"rock"}, result.MatchedTags)
		// {jazz, rock}
		assert.Equal(t, 2, result.TotalTags)
		assert.InDelta(t, 0.5, result.Similarity, 1e-9)
	})
}

func TestComprehensiveJaccard(t *testing.T) {
	candidate := []string{"rock", "decade:1990s"}
	refs := [][]string{{"rock", "decade:1990s"}, {"jazz"}}

	c := ComprehensiveJaccard(candidate, refs...)
	expected := 0.3*c.Aggregated + 0.3*c.Average + 0.2*c.Weighted + 0.1*c.Overlap + 0.1*c.Max
	assert.InDelta(t, expected, c.Combined, 1e-12)
	assert.Equal(t, 1.0, c.Max)
	assert.Equal(t, 2, c.ExactMatches)
}
