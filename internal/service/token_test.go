package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"resellhub/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService(t *testing.T) {
	store := cache.NewMemoryCache(0)
	defer store.Close()
	ctx := context.Background()

	svc := NewTokenService(store, time.Hour)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	token, data, err := svc.GenerateToken(ctx, "a1", 5)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Equal(t, "agent:a1", data.Tenant)

	got, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AgentID)
	assert.Equal(t, int64(5), got.IssuedByAdminID)

	_, err = svc.ValidateToken(ctx, "rht_unknown")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.ValidateToken(ctx, "no-prefix")
	assert.ErrorIs(t, err, ErrInvalidToken)

	now = now.Add(2 * time.Hour)
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Revoke(t *testing.T) {
	store := cache.NewMemoryCache(0)
	defer store.Close()
	ctx := context.Background()

	svc := NewTokenService(store, 0)
	token, _, err := svc.GenerateToken(ctx, "a1", 1)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeToken(ctx, token))
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
