package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	"github.com/smallbiznis/tabledesk/internal/pricing"
	"gorm.io/gorm"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

type Session struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	RestaurantID snowflake.ID `json:"restaurant_id"`
	TableNumber  string       `json:"table_number"`
	Status       Status       `json:"status"`
	OpenedAt     time.Time    `json:"opened_at"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
	ClosedBy     *string      `json:"closed_by,omitempty"`
}

func (Session) TableName() string { return "table_sessions" }

// PaymentEntry is the read side of a recorded payment.
type PaymentEntry struct {
	ID        snowflake.ID    `json:"id"`
	SessionID snowflake.ID    `json:"session_id"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedBy *string         `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Aggregate is the bill of one table visit. It is derived on every read and
// never stored.
type Aggregate struct {
	Session    Session             `json:"session"`
	Orders     []orderdomain.Order `json:"orders"`
	Payments   []PaymentEntry      `json:"payments"`
	Total      decimal.Decimal     `json:"total"`
	PaidTotal  decimal.Decimal     `json:"paid_total"`
	Remaining  decimal.Decimal     `json:"remaining"`
	ItemCount  int                 `json:"item_count"`
	OrderCount int                 `json:"order_count"`
}

// Settled reports whether the remaining balance is within tolerance of zero.
func (a Aggregate) Settled() bool {
	return pricing.IsSettled(a.Remaining)
}

// BuildAggregate folds orders and payments through the pricing engine.
func BuildAggregate(session Session, orders []orderdomain.Order, payments []PaymentEntry) Aggregate {
	amounts := make([]pricing.OrderAmount, 0, len(orders))
	for _, o := range orders {
		amounts = append(amounts, pricing.OrderAmount{
			Total:     o.Total,
			ItemCount: o.ItemCount(),
			Cancelled: o.Status == orderdomain.StatusCancelled,
		})
	}
	paid := make([]decimal.Decimal, 0, len(payments))
	for _, p := range payments {
		paid = append(paid, p.Amount)
	}
	totals := pricing.SessionTotals(amounts, paid)

	if orders == nil {
		orders = []orderdomain.Order{}
	}
	if payments == nil {
		payments = []PaymentEntry{}
	}
	return Aggregate{
		Session:    session,
		Orders:     orders,
		Payments:   payments,
		Total:      totals.Total,
		PaidTotal:  totals.PaidTotal,
		Remaining:  totals.Remaining,
		ItemCount:  totals.ItemCount,
		OrderCount: totals.OrderCount,
	}
}

// Summary is one row of the cashier board.
type Summary struct {
	Session
	Total      decimal.Decimal `json:"total"`
	PaidTotal  decimal.Decimal `json:"paid_total"`
	Remaining  decimal.Decimal `json:"remaining"`
	ItemCount  int             `json:"item_count"`
	OrderCount int             `json:"order_count"`
}

// LoadAggregate reads the orders and payments of session through db, which
// may be a transaction.
func LoadAggregate(ctx context.Context, db *gorm.DB, sessions Repository, orders orderdomain.Repository, session Session) (*Aggregate, error) {
	ids := []snowflake.ID{session.ID}
	sessionOrders, err := orders.ListBySessions(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	payments, err := sessions.ListPayments(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	agg := BuildAggregate(session, sessionOrders, payments)
	return &agg, nil
}
