package recommend

import (
	"io"
	"os"
	"testing"

	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
	"nexttrack/internal/models"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func track(id, title, artist string, tags []string, year int, duration float64) models.Track {
	t := models.Track{"id": id, "title": title, "artist": artist}
	if tags != nil {
		t["tags"] = tags
	}
	if year != 0 {
		t["year"] = year
	}
	if duration != 0 {
		t["duration"] = duration
	}
	return t
}

// scenario 播放列表一首A/rock/2000；候选X与之相同，Y完全不同
func scenario() (candidates, playlist []models.Track) {
	playlist = []models.Track{track("p1", "Seed", "A", []string{"rock"}, 2000, 200000)}
	candidates = []models.Track{
		track("x", "X", "A", []string{"rock"}, 2000, 200000),
		track("y", "Y", "B", []string{"jazz"}, 1980, 400000),
	}
	return candidates, playlist
}

func allRecommenders() []Recommender {
	artist := NewArtistRecommender()
	tags := NewTagRecommender()
	temporal := NewTemporalRecommender()
	length := NewLengthRecommender()
	return []Recommender{
		artist, tags, temporal, length,
		NewRandomRecommender(),
		NewHybridRecommender(artist, tags, temporal, length),
	}
}

// fixedRecommender 返回固定候选和分数的测试信号
type fixedRecommender struct {
	signal Signal
	pick   int
	score  float64
	err    error
	panics bool
}

func (f *fixedRecommender) Signal() Signal { return f.signal }

func (f *fixedRecommender) Recommend(candidates, _ []models.Track, _ int64) (*Recommendation, error) {
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Recommendation{Track: candidates[f.pick], Score: f.score, Details: Details{}}, nil
}

var errSignalBroken = errors.ErrValidationFailed("vectors", "length mismatch")
