package domain

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	"github.com/stretchr/testify/assert"
)

func TestBuildAggregateRemainingNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		var orders []orderdomain.Order
		total := decimal.Zero
		for n := rng.Intn(5); n > 0; n-- {
			amount := decimal.New(int64(rng.Intn(5000)), -2)
			status := orderdomain.StatusSent
			if rng.Intn(6) == 0 {
				status = orderdomain.StatusCancelled
			} else {
				total = total.Add(amount)
			}
			orders = append(orders, orderdomain.Order{Total: amount, Status: status})
		}

		var payments []PaymentEntry
		paid := decimal.Zero
		for n := rng.Intn(4); n > 0; n-- {
			amount := decimal.New(int64(rng.Intn(4000)+1), -2)
			paid = paid.Add(amount)
			payments = append(payments, PaymentEntry{Amount: amount})
		}

		agg := BuildAggregate(Session{}, orders, payments)
		want := total.Sub(paid)
		if want.IsNegative() {
			want = decimal.Zero
		}
		if !agg.Remaining.Equal(want) {
			t.Fatalf("case %d: remaining %s, want %s", i, agg.Remaining, want)
		}
		assert.True(t, agg.Total.Equal(total))
		assert.True(t, agg.PaidTotal.Equal(paid))
	}
}

func TestBuildAggregateEmptySession(t *testing.T) {
	agg := BuildAggregate(Session{Status: StatusOpen}, nil, nil)
	assert.True(t, agg.Total.IsZero())
	assert.True(t, agg.Remaining.IsZero())
	assert.True(t, agg.Settled())
	assert.NotNil(t, agg.Orders)
	assert.NotNil(t, agg.Payments)
}

func TestBuildAggregateCountsItems(t *testing.T) {
	orders := []orderdomain.Order{
		{Total: decimal.RequireFromString("19.00"), Status: orderdomain.StatusDelivered, Lines: []orderdomain.Line{{Quantity: 2}, {Quantity: 1}}},
		{Total: decimal.RequireFromString("4.00"), Status: orderdomain.StatusCancelled, Lines: []orderdomain.Line{{Quantity: 1}}},
	}
	agg := BuildAggregate(Session{}, orders, nil)
	assert.Equal(t, 3, agg.ItemCount)
	assert.Equal(t, 1, agg.OrderCount)
	assert.Equal(t, "19", agg.Remaining.String())
}
