package pricing

import "github.com/shopspring/decimal"

// OrderAmount is the slice of an order the session fold needs.
type OrderAmount struct {
	Total     decimal.Decimal
	ItemCount int
	Cancelled bool
}

type Totals struct {
	Total      decimal.Decimal
	PaidTotal  decimal.Decimal
	Remaining  decimal.Decimal
	ItemCount  int
	OrderCount int
}

// SessionTotals folds orders and payment amounts. Cancelled orders count
// towards neither total nor items.
func SessionTotals(orders []OrderAmount, payments []decimal.Decimal) Totals {
	out := Totals{Total: decimal.Zero, PaidTotal: decimal.Zero}
	for _, o := range orders {
		if o.Cancelled {
			continue
		}
		out.Total = out.Total.Add(o.Total)
		out.ItemCount += o.ItemCount
		out.OrderCount++
	}
	for _, amount := range payments {
		out.PaidTotal = out.PaidTotal.Add(amount)
	}
	out.Remaining = Remaining(out.Total, out.PaidTotal)
	return out
}

// EqualSplit divides remaining into parts shares rounded to cents. The last
// share absorbs the rounding difference so the shares always sum to remaining.
func EqualSplit(remaining decimal.Decimal, parts int) []decimal.Decimal {
	if parts < 1 || !remaining.IsPositive() {
		return nil
	}
	share := remaining.Div(decimal.NewFromInt(int64(parts))).RoundDown(2)
	shares := make([]decimal.Decimal, parts)
	allocated := decimal.Zero
	for i := 0; i < parts-1; i++ {
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[parts-1] = remaining.Sub(allocated)
	return shares
}
