package cache

import (
	"testing"
	"time"

	catalogdomain "github.com/smallbiznis/tabledesk/internal/catalog/domain"
	"github.com/smallbiznis/tabledesk/internal/clock"
	"github.com/smallbiznis/tabledesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int](0, func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheSkipsInsertWhenFull(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int](2, func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 2*time.Minute)
	c.Set("c", 3, time.Minute)
	_, ok := c.Get("c")
	assert.False(t, ok)

	// Overwriting an existing key is always allowed.
	c.Set("a", 10, time.Minute)
	got, _ := c.Get("a")
	assert.Equal(t, 10, got)

	now = now.Add(90 * time.Second)
	c.Set("c", 3, time.Minute)
	got, ok = c.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, got)
	assert.Equal(t, 2, c.Len())
}

func TestRestaurantCacheNormalizesKeys(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewRestaurantCache(config.Config{}, clk)

	c.SetBySlug(" Trattoria ", catalogdomain.Restaurant{ID: 7, Slug: "trattoria"})
	got, ok := c.GetBySlug("trattoria")
	require.True(t, ok)
	assert.Equal(t, int64(7), got.ID)

	c.SetBySlug("ghost", catalogdomain.Restaurant{})
	_, ok = c.GetBySlug("ghost")
	assert.False(t, ok)

	c.Invalidate("TRATTORIA")
	_, ok = c.GetBySlug("trattoria")
	assert.False(t, ok)
}

func TestRestaurantCacheNegativeTTLDisables(t *testing.T) {
	c := NewRestaurantCache(config.Config{Cache: config.CacheConfig{RestaurantTTL: -1}}, nil)
	c.SetBySlug("trattoria", catalogdomain.Restaurant{ID: 7})
	_, ok := c.GetBySlug("trattoria")
	assert.False(t, ok)
}
