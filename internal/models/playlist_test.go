package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nexttrack/internal/errors"
)

func TestNewPlaylist(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		expectValid bool
	}{
		{name: "valid playlist", title: "夜跑歌单", expectValid: true},
		{name: "empty name", title: "   ", expectValid: false},
		{name: "name too long", title: string(make([]byte, 201)), expectValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			playlist, err := NewPlaylist(tt.title, "desc")
			if tt.expectValid {
				require.NoError(t, err)
				assert.NotEmpty(t, playlist.ID)
				assert.Empty(t, playlist.Tracks)
				assert.NotZero(t, playlist.CreatedAt)
			} else {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
			}
		})
	}
}

func TestPlaylist_AddRemoveTrack(t *testing.T) {
	playlist, err := NewPlaylist("测试歌单", "")
	require.NoError(t, err)

	track := Track{"id": "rec-1", "title": "Song", "artist": "A"}

	t.Run("添加曲目", func(t *testing.T) {
		require.NoError(t, playlist.AddTrack(track))
		require.Len(t, playlist.Tracks, 1)
		assert.NotEmpty(t, playlist.Tracks[0]["added_at"])
		_, mutated := track["added_at"]
		assert.False(t, mutated, "original track must not be modified")
	})

	t.Run("重复添加被拒绝", func(t *testing.T) {
		err := playlist.AddTrack(track)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateResource))
	})

	t.Run("缺少ID被拒绝", func(t *testing.T) {
		err := playlist.AddTrack(Track{"title": "No ID"})
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	})

	t.Run("移除曲目", func(t *testing.T) {
		removed, err := playlist.RemoveTrack("rec-1")
		require.NoError(t, err)
		assert.Equal(t, "Song", removed.Title())
		assert.Empty(t, playlist.Tracks)
	})

	t.Run("移除不存在的曲目", func(t *testing.T) {
		_, err := playlist.RemoveTrack("missing")
		assert.True(t, errors.HasCode(err, errors.ErrCodeResourceNotFound))
	})
}

func TestPlaylist_Summary(t *testing.T) {
	playlist, err := NewPlaylist("Summary", "d")
	require.NoError(t, err)
	require.NoError(t, playlist.AddTrack(Track{"id": "1"}))

	summary := playlist.Summary()
	assert.Equal(t, playlist.ID, summary["id"])
	assert.Equal(t, 1, summary["added_tracks_count"])
}

func TestPlaylist_DatabaseRoundTrip(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Playlist{}))

	playlist, err := NewPlaylist("数据库歌单", "stored")
	require.NoError(t, err)
	require.NoError(t, playlist.AddTrack(Track{
		"id":     "rec-1",
		"title":  "Stored",
		"artist": "B",
		"tags":   []string{"rock", "indie"},
		"length": 215000,
	}))

	require.NoError(t, db.Create(playlist).Error)
	assert.NotEmpty(t, playlist.TracksData)

	var loaded Playlist
	require.NoError(t, db.First(&loaded, "id = ?", playlist.ID).Error)

	require.Len(t, loaded.Tracks, 1)
	assert.Equal(t, "Stored", loaded.Tracks[0].Title())
	tags, ok := loaded.Tracks[0].Strings("tags")
	require.True(t, ok)
	assert.Equal(t, []string{"rock", "indie"}, tags)
	length, ok := loaded.Tracks[0].Float("length")
	require.True(t, ok)
	assert.Equal(t, 215000.0, length)
}

func TestPlaylist_ValidationBlocksSave(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Playlist{}))

	err = db.Create(&Playlist{ID: "p1"}).Error
	assert.Error(t, err)
}
