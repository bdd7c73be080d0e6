package cache

import (
	"strings"
	"time"

	catalogdomain "github.com/smallbiznis/tabledesk/internal/catalog/domain"
	"github.com/smallbiznis/tabledesk/internal/clock"
	"github.com/smallbiznis/tabledesk/internal/config"
)

const (
	defaultRestaurantTTL  = time.Minute
	defaultRestaurantSize = 1024
)

// RestaurantCache stores slug lookups resolved on every request.
// Misses are never cached so a newly created restaurant is visible at once.
type RestaurantCache interface {
	GetBySlug(slug string) (catalogdomain.Restaurant, bool)
	SetBySlug(slug string, restaurant catalogdomain.Restaurant)
	Invalidate(slug string)
}

type restaurantCache struct {
	bySlug Cache[string, catalogdomain.Restaurant]
	ttl    time.Duration
}

func NewRestaurantCache(cfg config.Config, clk clock.Clock) RestaurantCache {
	ttl := cfg.Cache.RestaurantTTL
	if ttl == 0 {
		ttl = defaultRestaurantTTL
	}
	var now func() time.Time
	if clk != nil {
		now = clk.Now
	}
	return &restaurantCache{
		bySlug: NewTTLCache[string, catalogdomain.Restaurant](defaultRestaurantSize, now),
		ttl:    ttl,
	}
}

func (c *restaurantCache) GetBySlug(slug string) (catalogdomain.Restaurant, bool) {
	return c.bySlug.Get(cacheKey(slug))
}

func (c *restaurantCache) SetBySlug(slug string, restaurant catalogdomain.Restaurant) {
	if restaurant.ID == 0 {
		return
	}
	c.bySlug.Set(cacheKey(slug), restaurant, c.ttl)
}

func (c *restaurantCache) Invalidate(slug string) {
	c.bySlug.Delete(cacheKey(slug))
}

func cacheKey(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
