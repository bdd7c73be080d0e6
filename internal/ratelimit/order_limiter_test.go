package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/tabledesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOrderLimiterDisabledWithoutRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, OrderRate: 1, OrderBurst: 2}}
	limiter, err := NewOrderLimiter(OrderLimiterParams{Config: cfg, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())

	decision, err := limiter.AllowOrder(context.Background(), "demo", "12")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *OrderLimiter
	decision, err := limiter.AllowOrder(context.Background(), "demo", "12")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestTokenBucketRequiresClient(t *testing.T) {
	assert.Nil(t, NewTokenBucket(nil))

	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "k", 1, 1, time.Second)
	assert.ErrorIs(t, err, errBucketNotConfigured)
}

func TestLockerWithoutClient(t *testing.T) {
	assert.Nil(t, NewLocker(nil))

	var locker *Locker
	lease, err := locker.Acquire(context.Background(), "k", time.Second)
	assert.Nil(t, lease)
	assert.ErrorIs(t, err, ErrLockNotConfigured)

	assert.NoError(t, lease.Release(context.Background()))
	assert.ErrorIs(t, lease.Extend(context.Background(), time.Second), ErrLeaseLost)
}

func TestParseBucketReply(t *testing.T) {
	res, err := parseBucketReply([]int64{1, 2500, 0}, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, 5, res.Limit)

	res, err = parseBucketReply([]int64{0, 400, 1200}, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 1200*time.Millisecond, res.RetryAfter)

	_, err = parseBucketReply([]int64{1}, 5)
	assert.Error(t, err)

	assert.Equal(t, 4*time.Second, bucketTTL(1, 2))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}
