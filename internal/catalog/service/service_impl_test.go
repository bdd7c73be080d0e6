package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tabledesk/internal/cache"
	"github.com/smallbiznis/tabledesk/internal/catalog/domain"
	"github.com/smallbiznis/tabledesk/internal/catalog/repository"
	"github.com/smallbiznis/tabledesk/internal/clock"
	"github.com/smallbiznis/tabledesk/internal/config"
	"github.com/smallbiznis/tabledesk/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, storetest.Fixture) {
	t.Helper()
	conn := storetest.Open(t)
	node := storetest.Node(t)
	fx := storetest.Seed(t, conn, node, "lungo", map[string]string{"Burger": "8.00", "Salad": "6.50"})

	svc := New(Params{DB: conn, Log: zap.NewNop(), Repo: repository.Provide()})
	return svc, fx
}

func TestGetRestaurantNormalizesSlug(t *testing.T) {
	svc, fx := newTestService(t)

	rest, err := svc.GetRestaurant(context.Background(), "  Lungo ")
	require.NoError(t, err)
	assert.Equal(t, int64(fx.RestaurantID), rest.ID)

	_, err = svc.GetRestaurant(context.Background(), "unknown-place")
	assert.ErrorIs(t, err, domain.ErrRestaurantNotFound)

	_, err = svc.GetRestaurant(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidSlug)
}

func TestListProductsDecodesModifierOptions(t *testing.T) {
	svc, _ := newTestService(t)

	items, err := svc.ListProducts(context.Background(), domain.ListProductsRequest{RestaurantSlug: "lungo"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	burger := items[0]
	assert.Equal(t, "Burger", burger.Name)
	assert.True(t, burger.Price.Equal(decimal.RequireFromString("8.00")))
	require.Len(t, burger.Extras, 1)
	assert.Equal(t, "Bacon", burger.Extras[0].Label)
	assert.True(t, burger.Extras[0].Price.Equal(decimal.RequireFromString("1.50")))
	require.Len(t, burger.Excludes, 1)
}

func TestProductsByIDsDeduplicates(t *testing.T) {
	svc, fx := newTestService(t)
	burger := int64(fx.Products["Burger"])

	products, err := svc.ProductsByIDs(context.Background(), int64(fx.RestaurantID), []int64{burger, burger, 42})
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Contains(t, products, burger)
}

func TestGetRestaurantServesFromCache(t *testing.T) {
	conn := storetest.Open(t)
	fixture := storetest.Seed(t, conn, storetest.Node(t), "lungo", map[string]string{"Burger": "8.00"})
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Cache: cache.NewRestaurantCache(config.Config{}, clk),
	})

	_, err := svc.GetRestaurant(context.Background(), "lungo")
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`UPDATE restaurants SET name = ? WHERE id = ?`, "Renamed", fixture.RestaurantID).Error)

	rest, err := svc.GetRestaurant(context.Background(), "lungo")
	require.NoError(t, err)
	assert.Equal(t, "lungo", rest.Name)

	clk.Advance(2 * time.Minute)
	rest, err = svc.GetRestaurant(context.Background(), "lungo")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", rest.Name)
}
