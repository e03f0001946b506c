package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexttrack/internal/errors"
)

func TestCosine(t *testing.T) {
	t.Run("自身相似度为1", func(t *testing.T) {
		s, err := Cosine([]float64{0.3, 2, 5}, []float64{0.3, 2, 5})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, s, 1e-12)
	})

	t.Run("零向量返回0", func(t *testing.T) {
		s, err := Cosine([]float64{0, 0}, []float64{1, 2})
		require.NoError(t, err)
		assert.Equal(t, 0.0, s)
	})

	t.Run("取值范围", func(t *testing.T) {
		vectors := [][]float64{{1, -2, 3}, {-1, 2, -3}, {4, 0, -1}, {1e6, 1e-6, 0}}
		for _, a := range vectors {
			for _, b := range vectors {
				s, err := Cosine(a, b)
				require.NoError(t, err)
				assert.True(t, s >= -1 && s <= 1)
			}
		}
		s, _ := Cosine([]float64{1, 0}, []float64{-1, 0})
		assert.Equal(t, -1.0, s)
	})

	t.Run("维度不一致报错", func(t *testing.T) {
		_, err := Cosine([]float64{1}, []float64{1, 2})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	})
}

func TestComprehensiveCosine(t *testing.T) {
	candidate := []float64{1, 0}
	refs := [][]float64{{1, 0}, {0, 1}}

	result, err := ComprehensiveCosine(candidate, refs)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.Average, 1e-12)
	assert.InDelta(t, 1.0, result.Max, 1e-12)
	assert.InDelta(t, 0.7*0.5+0.3*1.0, result.Combined, 1e-12)

	t.Run("没有参考向量", func(t *testing.T) {
		result, err := ComprehensiveCosine(candidate, nil)
		require.NoError(t, err)
		assert.Equal(t, CosineResult{}, result)
	})

	t.Run("维度错误向上传播", func(t *testing.T) {
		_, err := ComprehensiveCosine(candidate, [][]float64{{1, 2, 3}})
		assert.Error(t, err)
	})

	t.Run("正交向量", func(t *testing.T) {
		s, err := MaxCosine([]float64{0, 1}, [][]float64{{1, 0}})
		require.NoError(t, err)
		assert.False(t, math.IsInf(s, 0))
		assert.Equal(t, 0.0, s)
	})
}
