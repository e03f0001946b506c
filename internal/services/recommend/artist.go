package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"nexttrack/internal/logger"
	"nexttrack/internal/models"
	"nexttrack/internal/services/features"
	"nexttrack/internal/services/similarity"
)

const (
	artistRepeatScore = 0.3
	artistScoreCap    = 0.9
)

// ArtistSimilarity 候选艺术家与播放列表的相似度
type ArtistSimilarity struct {
	Score     float64
	Combined  float64 // 综合Jaccard
	Discovery float64 // 偏向新艺术家的子分
	Shared    []string
}

// BuildArtistSimilarityMap 为每个不同的候选艺术家计算与播放列表词表的相似度，
// 同一艺术家只按其首个候选曲目计算
func BuildArtistSimilarityMap(candidates, playlist []features.Record) map[string]ArtistSimilarity {
	references := make([][]string, len(playlist))
	vocabulary := make(map[string]struct{})
	for i, rec := range playlist {
		references[i] = rec.Tags
		for _, tag := range rec.Tags {
			vocabulary[tag] = struct{}{}
		}
	}

	out := make(map[string]ArtistSimilarity)
	for _, rec := range candidates {
		key := rec.ArtistKey()
		if _, done := out[key]; done {
			continue
		}

		comp := similarity.ComprehensiveJaccard(rec.Tags, references...)
		shared := make([]string, 0)
		for _, tag := range rec.Tags {
			if _, ok := vocabulary[tag]; ok {
				shared = append(shared, tag)
			}
		}

		discovery := 0.0
		if len(shared) > 0 {
			artistMatches := 0
			for _, tag := range shared {
				if strings.HasPrefix(tag, features.PrefixArtist) {
					artistMatches++
				}
			}
			tagMatches := len(shared) - artistMatches
			discovery = (float64(artistMatches)*0.2 + float64(tagMatches)*0.8) / math.Max(1, float64(len(shared)))
		}

		out[key] = ArtistSimilarity{
			Score:     math.Min(comp.Combined*0.7+discovery*0.3, artistScoreCap),
			Combined:  comp.Combined,
			Discovery: discovery,
			Shared:    shared,
		}
	}
	return out
}

// ArtistRecommender 偏向新艺术家的推荐
type ArtistRecommender struct {
	logger *logger.Logger
}

// NewArtistRecommender 创建艺术家推荐器
func NewArtistRecommender() *ArtistRecommender {
	return &ArtistRecommender{logger: logger.NewLogger("recommend-artist")}
}

// Signal 信号名
func (r *ArtistRecommender) Signal() Signal {
	return SignalArtist
}

type artistCandidate struct {
	scored
	record     features.Record
	repeat     bool
	similarity ArtistSimilarity
}

// Recommend 播放列表中已有的艺术家固定为0.3分，其余按相似度表打分
func (r *ArtistRecommender) Recommend(candidates, playlist []models.Track, seed int64) (*Recommendation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	playlistRecords := features.ExtractAll(playlist)
	playlistArtists := make(map[string]struct{})
	for _, rec := range playlistRecords {
		if key := rec.ArtistKey(); key != "" {
			playlistArtists[key] = struct{}{}
		}
	}

	if len(playlistArtists) == 0 {
		r.logger.Debug("Playlist has no resolvable artists, falling back to random", logger.Fields{
			"playlist_size": len(playlist),
		})
		return randomFallback(candidates, seed, 0.5, "Artist discovery (random selection)", Details{
			"score_breakdown": map[string]string{
				"selection_method": "random_fallback",
				"reason":           "no_playlist_artists",
			},
			"fallback_reason": "no_playlist_artists",
		}), nil
	}

	candidateRecords := features.ExtractAll(candidates)
	similarityMap := BuildArtistSimilarityMap(candidateRecords, playlistRecords)

	ranked := make([]artistCandidate, len(candidates))
	for i, track := range candidates {
		rec := candidateRecords[i]
		_, repeat := playlistArtists[rec.ArtistKey()]
		sim := similarityMap[rec.ArtistKey()]
		base := sim.Score
		if repeat {
			base = artistRepeatScore
		}
		ranked[i] = artistCandidate{
			scored:     scored{index: i, track: track, score: base + tieBreak(seed, track.Title(), 10000)},
			record:     rec,
			repeat:     repeat,
			similarity: sim,
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	selected := ranked[0]
	path := "highest_score"
	if selected.repeat {
		if discovered, how := r.discover(ranked, seed); discovered != nil {
			selected, path = *discovered, how
		}
	}

	r.logger.Debug("Artist recommendation selected", logger.Fields{
		"candidates":     len(candidates),
		"artist":         selected.record.Artist,
		"repeat_artist":  selected.repeat,
		"selection_path": path,
		"score":          selected.score,
	})

	return &Recommendation{
		Track:       selected.track,
		Score:       selected.score,
		Explanation: artistExplanation(selected, path),
		Details: Details{
			"artist":                  selected.record.Artist,
			"artist_similarity_score": selected.similarity.Score,
			"is_playlist_artist":      selected.repeat,
			"selection_path":          path,
			"shared_tags":             selected.similarity.Shared,
			"playlist_artist_count":   len(playlistArtists),
			"candidate_artist_count":  len(similarityMap),
			"similarity_components": map[string]string{
				"combined_jaccard": fmt.Sprintf("%.3f", selected.similarity.Combined),
				"discovery_score":  fmt.Sprintf("%.3f", selected.similarity.Discovery),
			},
		},
	}, nil
}

// discover 得分最高的是重复艺术家时，改选新艺术家：
// 有标签重叠的取最高分，否则按seed在新艺术家中选择
func (r *ArtistRecommender) discover(ranked []artistCandidate, seed int64) (*artistCandidate, string) {
	fresh := make([]artistCandidate, 0)
	for _, c := range ranked {
		if !c.repeat {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return nil, ""
	}
	for i := range fresh {
		if len(fresh[i].similarity.Shared) > 0 {
			return &fresh[i], "discovery_tag_overlap"
		}
	}
	pick := fresh[newPicker(seed).index(len(fresh))]
	return &pick, "discovery_new_artist"
}

func artistExplanation(c artistCandidate, path string) string {
	artist := c.record.Artist
	if artist == "" {
		artist = "unknown artist"
	}
	switch {
	case c.repeat:
		return fmt.Sprintf("More from %s", artist)
	case path == "discovery_new_artist":
		return fmt.Sprintf("Artist discovery: %s is new to this playlist", artist)
	case len(c.similarity.Shared) > 0:
		return fmt.Sprintf("Artist discovery: %s shares this playlist's style", artist)
	default:
		return fmt.Sprintf("Artist discovery (%s)", artist)
	}
}
