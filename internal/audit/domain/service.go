package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionPaymentRecorded     = "payment.recorded"
	ActionSessionClosed       = "session.closed"
	ActionOrderStatusChanged  = "order.status_changed"
	ActionPaidFlagsReconciled = "session.paid_flags_reconciled"
	TargetTypePayment         = "payment"
	TargetTypeTableSession    = "table_session"
	TargetTypeOrder           = "order"
)

type AuditLog struct {
	ID           snowflake.ID      `json:"id" gorm:"primaryKey"`
	RestaurantID *snowflake.ID     `json:"restaurant_id,omitempty"`
	ActorType    string            `json:"actor_type"`
	ActorID      *string           `json:"actor_id,omitempty"`
	Action       string            `json:"action"`
	TargetType   string            `json:"target_type"`
	TargetID     *string           `json:"target_id,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	IPAddress    *string           `json:"ip_address,omitempty"`
	UserAgent    *string           `json:"user_agent,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry describes one auditable mutation. Actor, request id and client
// details come from the context.
type Entry struct {
	RestaurantID snowflake.ID
	Action       string
	TargetType   string
	TargetID     string
	Metadata     map[string]any
}

type ListRequest struct {
	RestaurantID snowflake.ID
	Action       string
	TargetType   string
	TargetID     string
	Since        *time.Time
	Limit        int
}

// ListFilter is a validated ListRequest. Empty strings match everything.
type ListFilter struct {
	RestaurantID snowflake.ID
	Action       string
	TargetType   string
	TargetID     string
	Since        *time.Time
	Limit        int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListRequest) ([]AuditLog, error)
}

var (
	ErrInvalidRestaurant = errors.New("invalid_restaurant")
	ErrInvalidAction     = errors.New("invalid_action")
)
