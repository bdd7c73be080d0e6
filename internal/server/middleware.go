package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tabledesk/internal/auditcontext"
	catalogdomain "github.com/smallbiznis/tabledesk/internal/catalog/domain"
	obscontext "github.com/smallbiznis/tabledesk/internal/observability/context"
	"github.com/smallbiznis/tabledesk/internal/observability/logger"
	"github.com/smallbiznis/tabledesk/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	HeaderActorID        = "X-Actor-ID"
	contextRestaurantKey = "restaurant"
	contextTableKey      = logger.TableKey
)

// ActorContext reads the staff identity used for audit. Requests without the
// header act as the diner.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := auditcontext.Actor{Type: auditcontext.ActorTypePatron}
		if id := strings.TrimSpace(c.GetHeader(HeaderActorID)); id != "" {
			actor = auditcontext.Actor{Type: auditcontext.ActorTypeStaff, ID: id}
		}

		ctx := auditcontext.WithActor(c.Request.Context(), actor)
		ctx = obscontext.WithActor(ctx, actor.Type, actor.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RestaurantContext resolves the :slug path parameter once per request.
func (s *Server) RestaurantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurant, err := s.catalogSvc.GetRestaurant(c.Request.Context(), c.Param("slug"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextRestaurantKey, restaurant)
		ctx := obscontext.WithRestaurantID(c.Request.Context(), strconv.FormatInt(restaurant.ID, 10))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func restaurantFromContext(c *gin.Context) (*catalogdomain.Restaurant, snowflake.ID) {
	value, ok := c.Get(contextRestaurantKey)
	if !ok {
		return nil, 0
	}
	restaurant, _ := value.(*catalogdomain.Restaurant)
	if restaurant == nil {
		return nil, 0
	}
	return restaurant, snowflake.ID(restaurant.ID)
}

type orderRateLimitKey struct {
	RestaurantSlug string `json:"restaurantSlug"`
	Table          string `json:"table"`
}

// OrderRateLimit throttles submissions per restaurant table. Bodies it cannot
// read pass through so the handler reports the validation error.
func (s *Server) OrderRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.orderLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key, err := readOrderRateLimitKey(c)
		if err != nil {
			logger.FromContext(ctx).Warn("order rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}
		if key.RestaurantSlug == "" || key.Table == "" {
			c.Next()
			return
		}
		c.Set(contextTableKey, key.Table)

		decision, err := s.orderLimiter.AllowOrder(ctx, key.RestaurantSlug, key.Table)
		if decision.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		}
		if err != nil {
			logger.FromContext(ctx).Warn("order rate limit exceeded",
				zap.String("restaurant_slug", key.RestaurantSlug),
				zap.String("table_number", key.Table),
			)
			c.Header("Retry-After", retryAfterSeconds(decision))
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func readOrderRateLimitKey(c *gin.Context) (orderRateLimitKey, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return orderRateLimitKey{}, err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return orderRateLimitKey{}, nil
	}

	var payload orderRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return orderRateLimitKey{}, nil
	}
	return orderRateLimitKey{
		RestaurantSlug: strings.TrimSpace(payload.RestaurantSlug),
		Table:          strings.TrimSpace(payload.Table),
	}, nil
}

func retryAfterSeconds(decision ratelimit.Decision) string {
	seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
