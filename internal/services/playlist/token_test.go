package playlist

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexttrack/internal/config"
	"nexttrack/internal/errors"
)

func newTokenService(t *testing.T, ttl time.Duration) *TokenService {
	t.Helper()
	s, err := NewTokenService(config.TokenConfig{Secret: "test-secret", Issuer: "nexttrack", TTL: ttl})
	require.NoError(t, err)
	return s
}

func TestNewTokenService(t *testing.T) {
	_, err := NewTokenService(config.TokenConfig{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigMissing))

	s, err := NewTokenService(config.TokenConfig{Secret: "s"})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, s.ttl)
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTokenService(t, time.Hour)
	p := samplePlaylist(t)

	token, expiresAt, err := s.Issue(p)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	got, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Name, got.Name)
	require.Len(t, got.Tracks, 2)
	assert.Equal(t, "Radiohead", got.Tracks[0].Artist())
	length, ok := got.Tracks[1].Float("length")
	assert.True(t, ok)
	assert.Equal(t, 305000.0, length)
}

func TestTokenRejected(t *testing.T) {
	s := newTokenService(t, time.Hour)
	p := samplePlaylist(t)

	t.Run("空令牌", func(t *testing.T) {
		_, err := s.Verify("")
		assert.True(t, errors.HasCode(err, errors.ErrCodeTokenInvalid))
	})

	t.Run("签名错误", func(t *testing.T) {
		other, err := NewTokenService(config.TokenConfig{Secret: "other", Issuer: "nexttrack"})
		require.NoError(t, err)
		token, _, err := other.Issue(p)
		require.NoError(t, err)

		_, err = s.Verify(token)
		assert.True(t, errors.HasCode(err, errors.ErrCodeTokenInvalid))
	})

	t.Run("已过期", func(t *testing.T) {
		expired := newTokenService(t, time.Minute)
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := expired.Issue(p)
		require.NoError(t, err)

		_, err = s.Verify(token)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeTokenInvalid))
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("类型错误", func(t *testing.T) {
		claims := &Claims{
			Playlist: p,
			Type:     "session",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "nexttrack",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = s.Verify(token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected token type")
	})

	t.Run("签名算法不符", func(t *testing.T) {
		claims := &Claims{Playlist: p, Type: tokenType, RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = s.Verify(token)
		assert.True(t, errors.HasCode(err, errors.ErrCodeTokenInvalid))
	})

	t.Run("不能签发空列表", func(t *testing.T) {
		_, _, err := s.Issue(nil)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	})
}
