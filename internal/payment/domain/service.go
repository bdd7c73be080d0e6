package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
)

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*RecordResult, error)
	Split(ctx context.Context, req SplitRequest) (*SplitResult, error)
	// ReconcilePaidFlags re-applies paid flags on closed sessions whose
	// settlement step failed. It returns the number of orders repaired.
	ReconcilePaidFlags(ctx context.Context, limit int) (int, error)
}

type RecordRequest struct {
	RestaurantID snowflake.ID
	SessionID    string
	Method       string
	Amount       decimal.Decimal
	CreatedBy    string
}

type RecordResult struct {
	Payment   Payment                  `json:"payment"`
	Aggregate *sessiondomain.Aggregate `json:"session"`
	Closed    bool                     `json:"closed"`
	// SyncWarning is set when the session closed but its orders could not
	// be flagged paid; a background job retries.
	SyncWarning error `json:"-"`
}

type SplitRequest struct {
	RestaurantID snowflake.ID
	SessionID    string
	Parts        int
	LineIDs      []string
}

// SplitResult is advisory; payments are always recorded one by one.
type SplitResult struct {
	Remaining decimal.Decimal   `json:"remaining"`
	Shares    []decimal.Decimal `json:"shares,omitempty"`
	Selected  *decimal.Decimal  `json:"selected,omitempty"`
}

const MaxSplitParts = 50

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidMethod       = errors.New("invalid_method")
	ErrInvalidSplit        = errors.New("invalid_split")
	ErrSessionClosed       = errors.New("session_closed")
	ErrOverpaymentRejected = errors.New("overpayment_rejected")
	ErrPostSettlementSync  = errors.New("post_settlement_sync_failed")
)

// SelectedLinesAmount sums the totals of the chosen lines, skipping
// cancelled orders, capped at the remaining balance.
func SelectedLinesAmount(agg *sessiondomain.Aggregate, lineIDs []string) (decimal.Decimal, error) {
	if agg == nil || len(lineIDs) == 0 {
		return decimal.Zero, ErrInvalidSplit
	}
	lines := make(map[string]orderdomain.Line)
	for _, o := range agg.Orders {
		if o.Status == orderdomain.StatusCancelled {
			continue
		}
		for _, line := range o.Lines {
			lines[line.ID.String()] = line
		}
	}

	sum := decimal.Zero
	seen := make(map[string]struct{}, len(lineIDs))
	for _, id := range lineIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		line, ok := lines[id]
		if !ok {
			return decimal.Zero, ErrInvalidSplit
		}
		sum = sum.Add(line.LineTotal)
	}
	if sum.GreaterThan(agg.Remaining) {
		return agg.Remaining, nil
	}
	return sum, nil
}
