package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexttrack/internal/models"
	"nexttrack/internal/services/features"
)

func TestAnalysePlaylist(t *testing.T) {
	t.Run("空播放列表", func(t *testing.T) {
		assert.Equal(t, PlaylistCharacteristics{}, AnalysePlaylist(nil))
	})

	t.Run("多样性指标", func(t *testing.T) {
		records := features.ExtractAll([]models.Track{
			track("1", "a", "A", []string{"rock"}, 2000, 200000),
			track("2", "b", "A", []string{"rock"}, 2010, 300000),
			{"title": "c", "tags": []string{"rock"}},
		})
		c := AnalysePlaylist(records)

		assert.Equal(t, 3, c.Size)
		assert.Equal(t, 2, c.UniqueArtists) // A 和 Unknown
		assert.InDelta(t, 2.0/3.0, c.ArtistDiversity, 1e-9)
		// rock artist:a decade:2000s year:2000 decade:2010s year:2010
		assert.Equal(t, 6, c.UniqueTags)
		assert.InDelta(t, 2.0, c.TagDiversity, 1e-9)
		assert.InDelta(t, 10.0/2010.0, c.TemporalSpread, 1e-9)
		assert.InDelta(t, 0.2, c.LengthVariability, 1e-9)
	})
}

func TestAdaptiveWeights(t *testing.T) {
	t.Run("中性播放列表保持均分", func(t *testing.T) {
		w := AdaptiveWeights(PlaylistCharacteristics{
			ArtistDiversity:   0.5,
			TagDiversity:      1.0,
			TemporalSpread:    0.3,
			LengthVariability: 0.3,
		})
		for _, s := range fusionSignals {
			assert.InDelta(t, 0.25, w[s], 1e-9)
		}
	})

	t.Run("单曲播放列表提高时代和时长权重", func(t *testing.T) {
		_, playlist := scenario()
		w := AdaptiveWeights(AnalysePlaylist(features.ExtractAll(playlist)))
		assert.InDelta(t, 0.15, w[SignalArtist], 1e-9)
		assert.InDelta(t, 0.15, w[SignalTags], 1e-9)
		assert.InDelta(t, 0.35, w[SignalTemporal], 1e-9)
		assert.InDelta(t, 0.35, w[SignalLength], 1e-9)
	})

	t.Run("同一艺术家的播放列表提高艺术家权重", func(t *testing.T) {
		playlist := make([]models.Track, 4)
		for i := range playlist {
			playlist[i] = track("p", "t", "A", []string{"rock"}, 2000, 200000)
		}
		w := AdaptiveWeights(AnalysePlaylist(features.ExtractAll(playlist)))
		assert.Greater(t, w[SignalArtist], 0.25)
		assert.Less(t, w[SignalTags], 0.25)
	})

	t.Run("权重下限", func(t *testing.T) {
		w := AdaptiveWeights(PlaylistCharacteristics{
			ArtistDiversity:   1,
			TagDiversity:      3,
			TemporalSpread:    0.9,
			LengthVariability: 0.9,
		})
		for _, s := range fusionSignals {
			assert.GreaterOrEqual(t, w[s], hybridMinWeight)
		}
	})

	t.Run("调整标签", func(t *testing.T) {
		adj := weightAdjustments(PlaylistCharacteristics{ArtistDiversity: 0.1, TagDiversity: 2, TemporalSpread: 0.3, LengthVariability: 0.6})
		assert.Equal(t, map[string]string{
			"artist_adjustment":   "+20%",
			"tag_adjustment":      "-10%",
			"temporal_adjustment": "0%",
			"length_adjustment":   "-5%",
		}, adj)
	})
}

func TestDiversityBonus(t *testing.T) {
	_, playlist := scenario()
	ctx := newDiversityContext(features.ExtractAll(playlist))

	assert.Equal(t, 0.0, ctx.bonus(track("x", "X", "A", []string{"rock"}, 2000, 0), 1))
	// 新艺术家，且 artist:b 是新标签
	assert.InDelta(t, 0.08, ctx.bonus(track("x", "X", "B", nil, 0, 0), 1), 1e-9)
	// 新艺术家 + 新标签 + 年份偏离
	assert.InDelta(t, 0.10, ctx.bonus(track("y", "Y", "B", []string{"jazz"}, 1980, 0), 1), 1e-9)
	assert.Equal(t, 0.0, ctx.bonus(track("y", "Y", "B", []string{"jazz"}, 1980, 0), 0))
}

func fixedHybrid(artist, tags, temporal, length *fixedRecommender) *HybridRecommender {
	artist.signal, tags.signal, temporal.signal, length.signal = SignalArtist, SignalTags, SignalTemporal, SignalLength
	return NewHybridRecommender(artist, tags, temporal, length)
}

func TestHybrid_ConsensusAndClamp(t *testing.T) {
	candidates, playlist := scenario()
	h := fixedHybrid(
		&fixedRecommender{score: 1},
		&fixedRecommender{score: 1},
		&fixedRecommender{score: 1},
		&fixedRecommender{score: 1},
	)

	rec, err := h.Recommend(candidates, playlist, 5)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "x", rec.Track.ID())
	assert.Equal(t, 1.0, rec.Score)
	assert.Equal(t, "1.000", rec.SimilarityScore())
	assert.InDelta(t, 1.1, rec.Details["fusion_score"], 1e-9)
	assert.InDelta(t, 0.1, rec.Details["consensus_bonus"], 1e-9)
	assert.Equal(t, 0.0, rec.Details["diversity_bonus"])
	assert.Equal(t, []string{"artist", "tags", "temporal", "length"}, rec.Details["contributing_algorithms"])

	ctx := rec.Details["recommendation_context"].(map[string]int)
	assert.Equal(t, 1, ctx["total_candidates"])
	assert.Equal(t, 1, ctx["selected_rank"])

	characteristics := rec.Details["playlist_characteristics"].(map[string]interface{})
	assert.Equal(t, "1.000", characteristics["artist_diversity"])
	assert.Equal(t, 1, characteristics["playlist_size"])
}

func TestHybrid_FailingSignalsIgnored(t *testing.T) {
	candidates, playlist := scenario()
	h := fixedHybrid(
		&fixedRecommender{panics: true},
		&fixedRecommender{err: errSignalBroken},
		&fixedRecommender{pick: 1, score: 0.8},
		&fixedRecommender{pick: 1, score: 0.6},
	)

	rec, err := h.Recommend(candidates, playlist, 5)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "y", rec.Track.ID())

	components := rec.Details["component_scores"].(map[string]float64)
	assert.Len(t, components, 2)
	assert.Equal(t, 0.8, components["temporal"])
	assert.Contains(t, rec.Explanation, "2 signals")
}

func TestHybrid_AllSignalsFailFallsBackToRandom(t *testing.T) {
	candidates, playlist := scenario()
	h := fixedHybrid(
		&fixedRecommender{panics: true},
		&fixedRecommender{err: errSignalBroken},
		&fixedRecommender{err: errSignalBroken},
		&fixedRecommender{panics: true},
	)

	rec, err := h.Recommend(candidates, playlist, 5)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 0.5, rec.Score)
	assert.Equal(t, "hybrid discovery (random selection)", rec.Explanation)
	assert.Equal(t, "random_fallback", rec.FallbackReason())
}

func TestHybrid_SkipsTracksWithoutIdentity(t *testing.T) {
	candidates := []models.Track{{"id": "anon", "title": "No Artist"}, track("y", "Y", "B", nil, 0, 0)}
	h := fixedHybrid(
		&fixedRecommender{pick: 0, score: 1},
		&fixedRecommender{pick: 0, score: 1},
		&fixedRecommender{pick: 1, score: 0.2},
		&fixedRecommender{pick: 0, score: 1},
	)

	rec, err := h.Recommend(candidates, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "y", rec.Track.ID())
}

func TestHybrid_RealSignals(t *testing.T) {
	candidates, playlist := scenario()
	rec, err := NewEngine().Recommend(SignalHybrid, candidates, playlist, 3)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.GreaterOrEqual(t, rec.Score, 0.0)
	assert.LessOrEqual(t, rec.Score, 1.0)
	weights := rec.Details["algorithm_weights"].(map[string]float64)
	assert.InDelta(t, 0.35, weights["temporal"], 1e-9)

	// 两个候选都进入融合：X由标签/年代/时长推荐，Y由艺术家推荐
	ctx := rec.Details["recommendation_context"].(map[string]int)
	assert.Equal(t, 2, ctx["total_candidates"])
}
