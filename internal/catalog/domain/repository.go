package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindRestaurantBySlug(ctx context.Context, db *gorm.DB, slug string) (*Restaurant, error)
	FindRestaurantByID(ctx context.Context, db *gorm.DB, id int64) (*Restaurant, error)
	ListProducts(ctx context.Context, db *gorm.DB, restaurantID int64, activeOnly bool) ([]Product, error)
	FindProductsByIDs(ctx context.Context, db *gorm.DB, restaurantID int64, ids []int64) ([]Product, error)
}
