package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tabledesk/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (id, restaurant_id, session_id, method, amount, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RestaurantID, p.SessionID, p.Method, p.Amount, p.CreatedBy, p.CreatedAt,
	).Error
}

func (r *repo) ListBetween(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, from, to time.Time) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, restaurant_id, session_id, method, amount, created_by, created_at
		FROM payments
		WHERE restaurant_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC`,
		restaurantID, from.UTC(), to.UTC(),
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
