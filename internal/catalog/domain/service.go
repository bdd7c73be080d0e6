package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Service is the read-only menu collaborator used by ordering.
type Service interface {
	GetRestaurant(ctx context.Context, slug string) (*Restaurant, error)
	GetRestaurantByID(ctx context.Context, id int64) (*Restaurant, error)
	ListProducts(ctx context.Context, req ListProductsRequest) ([]ProductResponse, error)
	ProductsByIDs(ctx context.Context, restaurantID int64, ids []int64) (map[int64]Product, error)
}

type ListProductsRequest struct {
	RestaurantSlug  string
	IncludeInactive bool
}

type OptionResponse struct {
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

type ProductResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Category  string           `json:"category"`
	Price     decimal.Decimal  `json:"price"`
	Extras    []OptionResponse `json:"extras"`
	Excludes  []OptionResponse `json:"excludes"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
}

var (
	ErrInvalidSlug        = errors.New("invalid_restaurant_slug")
	ErrRestaurantNotFound = errors.New("restaurant_not_found")
	ErrCatalogUnavailable = errors.New("catalog_unavailable")
)
