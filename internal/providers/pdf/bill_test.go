package pdf

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAggregate() *sessiondomain.Aggregate {
	d := decimal.RequireFromString
	note := "well done"
	orders := []orderdomain.Order{
		{
			ID:     snowflake.ID(10),
			Status: orderdomain.StatusDelivered,
			Total:  d("19.00"),
			Lines: []orderdomain.Line{{
				ProductName: "Burger",
				Quantity:    2,
				UnitPrice:   d("9.50"),
				LineTotal:   d("19.00"),
				Note:        &note,
				Modifiers: []orderdomain.Modifier{
					{Label: "Bacon", Kind: "extra", Price: d("1.50")},
					{Label: "Onion", Kind: "remove", Price: d("0")},
				},
			}},
		},
		{
			ID:     snowflake.ID(11),
			Status: orderdomain.StatusCancelled,
			Total:  d("4.00"),
			Lines:  []orderdomain.Line{{ProductName: "Soda", Quantity: 1, LineTotal: d("4.00")}},
		},
	}
	payments := []sessiondomain.PaymentEntry{{Method: "cash", Amount: d("10.00")}}
	agg := sessiondomain.BuildAggregate(sessiondomain.Session{
		ID:          snowflake.ID(7),
		TableNumber: "12",
		Status:      sessiondomain.StatusOpen,
		OpenedAt:    time.Date(2026, 5, 2, 19, 0, 0, 0, time.UTC),
	}, orders, payments)
	return &agg
}

func TestNewBillDataSkipsCancelledOrders(t *testing.T) {
	data := NewBillData("Demo Diner", sampleAggregate(), time.Date(2026, 5, 2, 21, 0, 0, 0, time.UTC))

	require.Len(t, data.Items, 1)
	item := data.Items[0]
	assert.Equal(t, "Burger", item.Description)
	assert.Equal(t, 2, item.Qty)
	assert.Equal(t, []string{"+ Bacon 1.50", "sin Onion", "well done"}, item.Details)
	assert.Equal(t, "19.00", data.Total.StringFixed(2))
	assert.Equal(t, "9.00", data.Remaining.StringFixed(2))
	require.Len(t, data.Payments, 1)
	assert.Equal(t, "12", data.TableNumber)
}

func TestGenerateBillProducesPDF(t *testing.T) {
	data := NewBillData("Demo Diner", sampleAggregate(), time.Now())

	doc, err := New().GenerateBill(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestGenerateBillHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().GenerateBill(ctx, BillData{})
	assert.ErrorIs(t, err, context.Canceled)
}
