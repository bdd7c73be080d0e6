package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	RestaurantID snowflake.ID
	Status       Status
	Search       string
	Limit        int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, session *Session) error
	// FindByID optionally takes a row lock for the surrounding transaction.
	FindByID(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, forUpdate bool) (*Session, error)
	FindOpenByTable(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, table string) ([]Session, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Session, error)
	// Close only transitions a session that is still open and reports whether it did.
	Close(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, at time.Time, closedBy *string) (bool, error)
	ListPayments(ctx context.Context, db *gorm.DB, sessionIDs []snowflake.ID) ([]PaymentEntry, error)
	ListClosedWithUnpaidOrders(ctx context.Context, db *gorm.DB, limit int) ([]Session, error)
}
