package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertOrder writes the header only while its session is still open and
	// reports whether it did.
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) (bool, error)
	InsertLines(ctx context.Context, db *gorm.DB, lines []Line) error
	InsertModifiers(ctx context.Context, db *gorm.DB, modifiers []Modifier) error
	DeleteOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) error

	FindByID(ctx context.Context, db *gorm.DB, restaurantID, orderID snowflake.ID) (*Order, error)
	ListWorkingSet(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, limit int) ([]Order, error)
	ListBySessions(ctx context.Context, db *gorm.DB, sessionIDs []snowflake.ID) ([]Order, error)
	ListCreatedBetween(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, from, to time.Time) ([]Order, error)
	AttachLines(ctx context.Context, db *gorm.DB, orders []Order) error

	// UpdateStatus stamps delivered_at only when it is still empty.
	UpdateStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status Status, deliveredAt *time.Time, at time.Time) error
	UpdateStatusOnly(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status Status, at time.Time) error
	// MarkSessionPaid flags the session's unpaid billable orders. A non-nil
	// settledAt limits it to orders created at or before that instant.
	MarkSessionPaid(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, settledAt *time.Time, at time.Time) ([]snowflake.ID, error)
}
