package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListBetween(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, from, to time.Time) ([]Payment, error)
}
