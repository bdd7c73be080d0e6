package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/tabledesk/internal/config"
	"github.com/smallbiznis/tabledesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyOrderSubmit = "ratelimit:order:%s:%s"

var ErrRateLimited = errors.New("rate_limited")

// Decision is the outcome of an order submission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type OrderLimiterParams struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Bucket  *TokenBucket     `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// OrderLimiter throttles diner order submissions per restaurant table.
type OrderLimiter struct {
	enabled  bool
	failOpen bool
	rate     float64
	burst    int
	ttl      time.Duration

	bucket  *TokenBucket
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewOrderLimiter(p OrderLimiterParams) (*OrderLimiter, error) {
	cfg := p.Config.RateLimit
	limiter := &OrderLimiter{
		enabled:  cfg.Enabled && p.Bucket != nil,
		failOpen: cfg.FailOpen,
		rate:     cfg.OrderRate,
		burst:    cfg.OrderBurst,
		ttl:      time.Duration(cfg.KeyTTLSeconds) * time.Second,
		bucket:   p.Bucket,
		log:      p.Log.Named("ratelimit"),
		metrics:  p.Metrics,
	}
	if !limiter.enabled {
		if cfg.Enabled {
			limiter.log.Warn("order rate limiting requested without redis; disabled")
		}
		return limiter, nil
	}
	if cfg.OrderRate <= 0 || cfg.OrderBurst <= 0 {
		return nil, errors.New("order rate limit must be positive")
	}
	return limiter, nil
}

func (l *OrderLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowOrder consumes one submission slot for the table. Redis failures follow the fail-open setting.
func (l *OrderLimiter) AllowOrder(ctx context.Context, restaurantKey, table string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyOrderSubmit, strings.ToLower(strings.TrimSpace(restaurantKey)), strings.TrimSpace(table))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst, l.ttl)
	if err != nil {
		if l.failOpen {
			l.log.Warn("order rate limit check failed; allowing", zap.Error(err))
			return Decision{Allowed: true}, nil
		}
		l.metrics.RecordRateLimitDenied(ctx, "orders", "store_error")
		return Decision{}, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	decision := Decision{
		Allowed:    res.Allowed,
		Limit:      res.Limit,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, "orders", "table_burst")
		return decision, ErrRateLimited
	}
	return decision, nil
}
