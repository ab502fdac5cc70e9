package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/common/http/middleware"
	"codearena/internal/user/repository"
	pkgerrors "codearena/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTokenTTL = time.Hour
	defaultJWTIssuer      = "codearena"
	tokenTypeAccess       = "access"
)

// TokenConfig configures access token signing.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// TokenService issues and validates access tokens and implements middleware.Authenticator.
type TokenService struct {
	config   TokenConfig
	denylist *repository.TokenDenylistRepository
	now      func() time.Time
}

func NewTokenService(cfg TokenConfig, denylist *repository.TokenDenylistRepository) *TokenService {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultAccessTokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultJWTIssuer
	}
	return &TokenService{config: cfg, denylist: denylist, now: time.Now}
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TTL is the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.config.TTL
}

// Issue signs a new access token for the user.
func (s *TokenService) Issue(userID int64, role repository.UserRole) (string, time.Time, error) {
	if len(s.config.Secret) == 0 {
		return "", time.Time{}, pkgerrors.New(pkgerrors.TokenGenerationFailed).WithMessage("jwt secret is not configured")
	}
	now := s.now()
	expiresAt := now.Add(s.config.TTL)
	claims := tokenClaims{
		Role:      string(role),
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.Secret)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(fmt.Errorf("sign token failed: %w", err), pkgerrors.TokenGenerationFailed)
	}
	return signed, expiresAt, nil
}

// Authenticate validates raw and rejects logged-out tokens.
func (s *TokenService) Authenticate(ctx context.Context, raw string) (middleware.Identity, error) {
	if raw == "" {
		return middleware.Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return middleware.Identity{}, err
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return middleware.Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if s.denylist != nil {
		denied, err := s.denylist.IsDenied(ctx, hashToken(raw))
		if err != nil {
			return middleware.Identity{}, pkgerrors.Wrap(err, pkgerrors.ServiceUnavailable)
		}
		if denied {
			return middleware.Identity{}, pkgerrors.New(pkgerrors.TokenRevoked)
		}
	}
	identity := middleware.Identity{UserID: userID, Role: claims.Role, Token: raw}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// Revoke denylists the token for the rest of its lifetime.
func (s *TokenService) Revoke(ctx context.Context, identity middleware.Identity) error {
	if s.denylist == nil || identity.Token == "" {
		return nil
	}
	remaining := identity.ExpiresAt.Sub(s.now())
	if err := s.denylist.Deny(ctx, hashToken(identity.Token), remaining); err != nil {
		return pkgerrors.Wrap(fmt.Errorf("deny token failed: %w", err), pkgerrors.CacheError)
	}
	return nil
}

func (s *TokenService) parseToken(raw string) (*tokenClaims, error) {
	if len(s.config.Secret) == 0 {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.config.Secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.Issuer != s.config.Issuer || claims.TokenType != tokenTypeAccess || claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

var _ middleware.Authenticator = (*TokenService)(nil)
