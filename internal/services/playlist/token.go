package playlist

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nexttrack/internal/config"
	"nexttrack/internal/errors"
	"nexttrack/internal/models"
)

const tokenType = "playlist"

// Claims 播放列表令牌载荷
type Claims struct {
	Playlist *models.Playlist `json:"playlist"`
	Type     string           `json:"type"`
	jwt.RegisteredClaims
}

// TokenService 签发和校验播放列表令牌，令牌内携带完整播放列表
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService 创建令牌服务
func NewTokenService(cfg config.TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.ErrConfigMissing("token.secret")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue 签发令牌
func (s *TokenService) Issue(playlist *models.Playlist) (string, time.Time, error) {
	if playlist == nil {
		return "", time.Time{}, errors.ErrValidationFailed("playlist", "cannot be nil")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		Playlist: playlist,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playlist.ID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, errors.NewAppError(errors.ErrorTypeSystem, errors.ErrCodeSystemGeneric, "Failed to sign playlist token").
			WithCause(err)
	}
	return signed, expiresAt, nil
}

// Verify 校验令牌并取出播放列表
func (s *TokenService) Verify(tokenString string) (*models.Playlist, error) {
	if tokenString == "" {
		return nil, errors.ErrTokenInvalid("token is empty", nil)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.ErrTokenInvalid(err.Error(), err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.ErrTokenInvalid("invalid token claims", nil)
	}
	if claims.Type != tokenType {
		return nil, errors.ErrTokenInvalid(fmt.Sprintf("unexpected token type %q", claims.Type), nil)
	}
	if claims.Playlist == nil {
		return nil, errors.ErrTokenInvalid("token carries no playlist", nil)
	}
	if claims.Playlist.Tracks == nil {
		claims.Playlist.Tracks = make([]models.Track, 0)
	}
	return claims.Playlist, nil
}
