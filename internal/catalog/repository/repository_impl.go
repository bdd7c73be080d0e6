package repository

import (
	"context"

	"github.com/smallbiznis/tabledesk/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindRestaurantBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Restaurant, error) {
	var rest domain.Restaurant
	err := db.WithContext(ctx).Raw(
		`SELECT id, slug, name, created_at FROM restaurants WHERE slug = ?`,
		slug,
	).Scan(&rest).Error
	if err != nil {
		return nil, err
	}
	if rest.ID == 0 {
		return nil, nil
	}
	return &rest, nil
}

func (r *repo) FindRestaurantByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Restaurant, error) {
	var rest domain.Restaurant
	err := db.WithContext(ctx).Raw(
		`SELECT id, slug, name, created_at FROM restaurants WHERE id = ?`,
		id,
	).Scan(&rest).Error
	if err != nil {
		return nil, err
	}
	if rest.ID == 0 {
		return nil, nil
	}
	return &rest, nil
}

func (r *repo) ListProducts(ctx context.Context, db *gorm.DB, restaurantID int64, activeOnly bool) ([]domain.Product, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("restaurant_id = ?", restaurantID)
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}

	var items []domain.Product
	if err := stmt.Order("category ASC").Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindProductsByIDs returns products regardless of their active flag; callers decide.
func (r *repo) FindProductsByIDs(ctx context.Context, db *gorm.DB, restaurantID int64, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Product
	err := db.WithContext(ctx).
		Where("restaurant_id = ? AND id IN ?", restaurantID, ids).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
