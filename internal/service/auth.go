package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"payflow/internal/dto/req"
	"payflow/internal/dto/resp"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultAccessTokenTTL  = 15 * time.Minute
	sessionKeyPrefix       = "payflow:auth:session:"
	tokenIssuer            = "payflow-auth-service"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrSessionExpired     = errors.New("session expired")
)

var (
	signingMu  sync.RWMutex
	signingKey = []byte("payflow-dev-signing-key")
)

// SetSigningKey installs the JWT signing secret from config. Empty input
// keeps the dev default. Call before serving requests; tokens signed with
// a previous key stop verifying.
func SetSigningKey(key []byte) {
	if len(key) == 0 {
		return
	}
	signingMu.Lock()
	signingKey = key
	signingMu.Unlock()
}

// SigningKey returns the active JWT signing secret.
func SigningKey() []byte {
	signingMu.RLock()
	defer signingMu.RUnlock()
	return signingKey
}

type AuthService struct {
	redis           *redis.Client
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

type UserClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"sub"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthService(rdb *redis.Client, accessTokenTTL, refreshTokenTTL time.Duration) *AuthService {
	if accessTokenTTL <= 0 {
		accessTokenTTL = defaultAccessTokenTTL
	}
	if refreshTokenTTL <= 0 {
		refreshTokenTTL = defaultRefreshTokenTTL
	}
	return &AuthService{
		redis:           rdb,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

// Login checks credentials and issues a token pair. Operator accounts are
// fixed until a user store lands; only the seeded admin can sign in.
func (s *AuthService) Login(ctx context.Context, req req.LoginReq) (*resp.TokenResp, error) {
	if req.Username != "admin" || req.Password != "admin123" {
		return nil, ErrInvalidCredentials
	}

	userID := "1001"
	role := "admin"

	tokens, err := s.generateTokens(ctx, userID, req.Username, role)
	if err != nil {
		return nil, err
	}
	tokens.User = resp.UserInfo{
		ID:       userID,
		Username: req.Username,
		Role:     role,
	}
	return tokens, nil
}

// Refresh rotates the token pair. The presented refresh token must match
// the one on the redis allow-list for that user; anything else is treated
// as invalid rather than expired.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*resp.TokenResp, error) {
	token, err := jwt.ParseWithClaims(refreshToken, &UserClaims{}, func(t *jwt.Token) (interface{}, error) {
		return SigningKey(), nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	storedToken, err := s.redis.Get(ctx, sessionKeyPrefix+claims.UserID).Result()
	if err == redis.Nil {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	if storedToken != refreshToken {
		return nil, ErrTokenInvalid
	}

	return s.generateTokens(ctx, claims.UserID, claims.Username, claims.Role)
}

// Logout drops the user's session from the allow-list, which kills the
// refresh token immediately. Outstanding access tokens expire on their own.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.redis.Del(ctx, sessionKeyPrefix+userID).Err()
}

func (s *AuthService) generateTokens(ctx context.Context, userID, username, role string) (*resp.TokenResp, error) {
	now := time.Now()
	key := SigningKey()

	atClaims := UserClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, atClaims).SignedString(key)
	if err != nil {
		return nil, err
	}

	// Refresh token is a longer-lived JWT carrying the same identity plus
	// a JTI, stored in redis so rotation invalidates the old one.
	rtClaims := UserClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			ID:        uuid.New().String(),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, rtClaims).SignedString(key)
	if err != nil {
		return nil, err
	}

	if err := s.redis.Set(ctx, sessionKeyPrefix+userID, refreshToken, s.refreshTokenTTL).Err(); err != nil {
		return nil, err
	}

	return &resp.TokenResp{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTokenTTL.Seconds()),
	}, nil
}
