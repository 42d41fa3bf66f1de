// Package auth issues and verifies owner credentials: HS256 bearer tokens
// and hashed API keys.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"commandops/internal/domain"
	"commandops/internal/repo"
)

const apiKeyPrefix = "cmdops_"

var (
	ErrNoSecret      = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
	ErrUnknownAPIKey = errors.New("unknown api key")
)

// Principal is the authenticated owner of a request.
type Principal struct {
	OwnerID string
	Source  string
}

// Service provides credential helpers backed by SQL.
type Service struct {
	Repo      repo.Repo
	JWTSecret string
	Now       func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// IssueToken signs a bearer token whose subject is ownerID.
func (s Service) IssueToken(ownerID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return "", ErrNoSecret
	}
	if strings.TrimSpace(ownerID) == "" {
		return "", errors.New("owner id required")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:  ownerID,
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   "cmdops",
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.JWTSecret))
}

// ParseToken verifies an HS256 token and returns its subject.
func (s Service) ParseToken(token string) (Principal, error) {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return Principal{}, ErrNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(s.JWTSecret), nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{OwnerID: claims.Subject, Source: "jwt"}, nil
}

// CreateAPIKey generates a new key for ownerID. The plaintext secret is
// returned once; only its hash is stored.
func (s Service) CreateAPIKey(ctx context.Context, ownerID, name string) (domain.APIKey, string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.APIKey{}, "", errors.New("owner id required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: s.now().UTC(),
	}
	if err := s.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// AuthenticateAPIKey resolves a plaintext key to its owner.
func (s Service) AuthenticateAPIKey(ctx context.Context, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, ErrUnknownAPIKey
	}
	key, err := s.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret))
	if errors.Is(err, repo.ErrNotFound) {
		return Principal{}, ErrUnknownAPIKey
	}
	if err != nil {
		return Principal{}, err
	}
	return Principal{OwnerID: key.OwnerID, Source: "api_key"}, nil
}
