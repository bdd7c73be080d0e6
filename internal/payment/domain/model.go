package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
)

type Method string

const (
	MethodCash Method = "cash"
	MethodCard Method = "card"
)

func ParseMethod(value string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(value))) {
	case MethodCash:
		return MethodCash, nil
	case MethodCard:
		return MethodCard, nil
	default:
		return "", ErrInvalidMethod
	}
}

// Payment is immutable once written.
type Payment struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	RestaurantID snowflake.ID    `json:"restaurant_id"`
	SessionID    snowflake.ID    `json:"session_id"`
	Method       Method          `json:"method"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedBy    *string         `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

// OverpaymentError rejects an amount above the remaining balance and carries
// the balance the decision was made against.
type OverpaymentError struct {
	Amount    decimal.Decimal
	Aggregate *sessiondomain.Aggregate
}

func (e *OverpaymentError) Error() string {
	remaining := decimal.Zero
	if e.Aggregate != nil {
		remaining = e.Aggregate.Remaining
	}
	return fmt.Sprintf("%s: amount %s exceeds remaining %s",
		ErrOverpaymentRejected, e.Amount.StringFixed(2), remaining.StringFixed(2))
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpaymentRejected }

// SessionClosedError carries the settled session a payment arrived too late for.
type SessionClosedError struct {
	Aggregate *sessiondomain.Aggregate
}

func (e *SessionClosedError) Error() string { return ErrSessionClosed.Error() }

func (e *SessionClosedError) Unwrap() error { return ErrSessionClosed }
