package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSent      Status = "sent"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// ParseStatus normalizes a wire value into a known status.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusSent, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// CanTransition applies the kitchen workflow rules. Moving to the current
// status is allowed and is a no-op for callers.
//
//	sent <-> preparing <-> ready -> delivered
//	delivered may step back; cancelled is terminal
func CanTransition(from, to Status, paid bool) error {
	if from == to {
		return nil
	}
	if from == StatusCancelled {
		return ErrInvalidTransition
	}
	switch to {
	case StatusDelivered:
		if from != StatusReady {
			return ErrInvalidTransition
		}
	case StatusCancelled:
		if paid {
			return ErrOrderPaid
		}
		if from == StatusDelivered {
			return ErrInvalidTransition
		}
	}
	return nil
}

// TransitionError rejects a status change and carries the order as it stands.
type TransitionError struct {
	Order *Order
	Err   error
}

func (e *TransitionError) Error() string { return e.Err.Error() }

func (e *TransitionError) Unwrap() error { return e.Err }

type Modifier struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderLineID snowflake.ID    `json:"order_line_id"`
	Label       string          `json:"label"`
	Kind        string          `json:"kind"`
	Price       decimal.Decimal `json:"price"`
}

func (Modifier) TableName() string { return "order_line_modifiers" }

type Line struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderID     snowflake.ID    `json:"order_id"`
	ProductID   snowflake.ID    `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Note        *string         `json:"note,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Position    int             `json:"position"`
	Modifiers   []Modifier      `json:"modifiers,omitempty" gorm:"-"`
}

func (Line) TableName() string { return "order_lines" }

type Order struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	RestaurantID snowflake.ID    `json:"restaurant_id"`
	SessionID    snowflake.ID    `json:"session_id"`
	TableNumber  string          `json:"table_number"`
	Status       Status          `json:"status"`
	Total        decimal.Decimal `json:"total"`
	IsPaid       bool            `json:"is_paid"`
	DeliveredAt  *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Lines        []Line          `json:"lines,omitempty" gorm:"-"`
}

func (Order) TableName() string { return "orders" }

// ItemCount sums line quantities.
func (o Order) ItemCount() int {
	n := 0
	for _, line := range o.Lines {
		n += line.Quantity
	}
	return n
}

// Open reports whether the order still belongs on a kitchen or cashier display.
func (o Order) Open() bool {
	if o.Status == StatusCancelled {
		return false
	}
	return !o.IsPaid || o.Status != StatusDelivered
}
