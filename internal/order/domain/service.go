package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/tabledesk/internal/catalog/domain"
)

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	Get(ctx context.Context, restaurantID snowflake.ID, orderID string) (*Order, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Order, error)
	ListWorkingSet(ctx context.Context, restaurantID snowflake.ID) ([]Order, error)
	ListBySession(ctx context.Context, sessionID snowflake.ID) ([]Order, error)
}

type SubmitModifier struct {
	Label string `json:"label"`
	Kind  string `json:"type"`
	// Price is accepted for compatibility and never trusted.
	Price *decimal.Decimal `json:"price,omitempty"`
}

type SubmitItem struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"qty"`
	Note      string           `json:"note,omitempty"`
	Modifiers []SubmitModifier `json:"modifiers,omitempty"`
}

type SubmitRequest struct {
	RestaurantSlug string       `json:"restaurantSlug"`
	Table          string       `json:"table"`
	Items          []SubmitItem `json:"items"`
}

// SubmitResult is returned whenever the order header and lines exist.
// Warning is set when modifiers could not be written.
type SubmitResult struct {
	Order              *Order
	ModifiersPersisted bool
	Warning            error
}

type UpdateStatusRequest struct {
	RestaurantID snowflake.ID
	OrderID      string
	Status       string
}

const MaxTableNumberLength = 32

var (
	ErrInvalidTable       = errors.New("invalid_table")
	ErrSessionChanged     = errors.New("session_changed")
	ErrEmptyOrder         = errors.New("empty_order")
	ErrInvalidProductID   = errors.New("invalid_product_id")
	ErrProductNotFound    = errors.New("product_not_found")
	ErrInvalidOrderID     = errors.New("invalid_order_id")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrOrderPaid          = errors.New("order_paid")
	ErrPartialWrite       = errors.New("partial_write")
	ErrCatalogUnavailable = catalogdomain.ErrCatalogUnavailable

	ErrModifiersNotPersisted = errors.New("modifiers_not_persisted")
)
