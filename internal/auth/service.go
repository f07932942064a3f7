package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-theentity/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 30 * 24 * time.Hour

	kindAccess  = "access"
	kindRefresh = "refresh"
)

var ErrInvalidToken = errors.New("token invalid")

// Service issues tokens for anonymous players. A player is identified only by
// the id minted on first launch; refresh tokens rotate on every use.
type Service struct {
	secret    []byte
	namespace string
	db        db.Querier
}

type Claims struct {
	PlayerID  string `json:"player_id"`
	Namespace string `json:"app_namespace,omitempty"`
	Kind      string `json:"kind"`
	jwt.RegisteredClaims
}

func NewService(secret, namespace string, db db.Querier) *Service {
	return &Service{
		secret:    []byte(secret),
		namespace: namespace,
		db:        db,
	}
}

// Anonymous mints a new player id and its first token pair.
func (s *Service) Anonymous(ctx context.Context) (TokenResponse, error) {
	return s.GenerateTokens(ctx, uuid.NewString())
}

func (s *Service) GenerateTokens(ctx context.Context, playerID string) (TokenResponse, error) {
	access, err := signTokenFn(s, playerID, kindAccess, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, playerID, kindRefresh, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, playerID, refreshTokenTTL); err != nil {
		return TokenResponse{}, fmt.Errorf("save refresh token: %w", err)
	}

	return TokenResponse{
		PlayerID:     playerID,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

// Refresh revokes the presented refresh token and issues a new pair. A token
// can be used once.
func (s *Service) Refresh(ctx context.Context, token string) (TokenResponse, error) {
	claims, err := s.parseToken(token, kindRefresh)
	if err != nil {
		return TokenResponse{}, ErrInvalidToken
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE token = $1 AND player_id = $2 AND revoked_at IS NULL AND expires_at > now()
	`, token, claims.PlayerID)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return TokenResponse{}, ErrInvalidToken
	}
	return s.GenerateTokens(ctx, claims.PlayerID)
}

func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token, kindAccess)
	if err != nil {
		return "", err
	}
	return claims.PlayerID, nil
}

var signTokenFn = (*Service).signToken

func (s *Service) signToken(playerID, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		PlayerID:  playerID,
		Namespace: s.namespace,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   playerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token, kind string) (*Claims, error) {
	return parseClaims(token, s.secret, kind)
}

func parseClaims(token string, secret []byte, kind string) (*Claims, error) {
	parsed, err := parseClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.PlayerID == "" || claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

var parseClaimsFn = jwt.ParseWithClaims

func (s *Service) saveRefreshToken(ctx context.Context, token, playerID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, player_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), playerID, token, time.Now().Add(ttl))
	return err
}
