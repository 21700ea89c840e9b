package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"resellhub/internal/cache"
	"resellhub/internal/model"
	"resellhub/internal/tenant"
)

const (
	// TokenPrefix is the prefix for all agent portal tokens
	TokenPrefix = "rht_"

	// DefaultTokenTTL is the default token lifetime
	DefaultTokenTTL = 24 * time.Hour

	tokenKeyPrefix = "token:"
)

// ErrInvalidToken is returned for unknown, malformed or expired tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenService issues and validates agent portal tokens. Token data lives in
// the shared cache (Redis in production) under a TTL.
type TokenService struct {
	store cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewTokenService creates a new token service.
func NewTokenService(store cache.Cache, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{store: store, ttl: ttl, now: time.Now}
}

// GenerateToken creates a token scoped to one agent's tenant.
func (s *TokenService) GenerateToken(ctx context.Context, agentID string, adminID int64) (string, *model.TokenData, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	token := TokenPrefix + hex.EncodeToString(tokenBytes)

	now := s.now().UTC()
	data := &model.TokenData{
		AgentID:         agentID,
		Tenant:          tenant.ForAgent(agentID),
		IssuedByAdminID: adminID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize token data: %w", err)
	}
	if err := s.store.Set(ctx, tokenKeyPrefix+token, jsonData, s.ttl); err != nil {
		return "", nil, fmt.Errorf("failed to store token: %w", err)
	}

	log.Printf("[TokenService] Issued token for agent=%s by admin=%d, expires=%v",
		agentID, adminID, data.ExpiresAt.Format(time.RFC3339))
	return token, data, nil
}

// ValidateToken checks a token and returns its data.
func (s *TokenService) ValidateToken(ctx context.Context, token string) (*model.TokenData, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, ErrInvalidToken
	}

	jsonData, err := s.store.Get(ctx, tokenKeyPrefix+token)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var data model.TokenData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse token data: %w", err)
	}

	if s.now().After(data.ExpiresAt) {
		_ = s.store.Delete(ctx, tokenKeyPrefix+token)
		return nil, ErrInvalidToken
	}
	return &data, nil
}

// RevokeToken deletes a token.
func (s *TokenService) RevokeToken(ctx context.Context, token string) error {
	return s.store.Delete(ctx, tokenKeyPrefix+token)
}
