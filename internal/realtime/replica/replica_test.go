package replica

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	"github.com/smallbiznis/tabledesk/internal/realtime"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	restaurantID = snowflake.ID(100)
	sessionID    = snowflake.ID(200)
	orderID      = snowflake.ID(300)
)

var t0 = time.Date(2026, 5, 2, 19, 0, 0, 0, time.UTC)

func restaurantScope() Scope {
	return Scope{RestaurantID: restaurantID.String()}
}

func sampleOrder(status orderdomain.Status, updatedAt time.Time) orderdomain.Order {
	return orderdomain.Order{
		ID:           orderID,
		RestaurantID: restaurantID,
		SessionID:    sessionID,
		TableNumber:  "12",
		Status:       status,
		Total:        decimal.RequireFromString("19.00"),
		CreatedAt:    t0,
		UpdatedAt:    updatedAt,
		Lines: []orderdomain.Line{{
			ID:          snowflake.ID(400),
			OrderID:     orderID,
			ProductName: "Burger",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("9.50"),
			LineTotal:   decimal.RequireFromString("19.00"),
			Modifiers: []orderdomain.Modifier{
				{ID: snowflake.ID(500), OrderLineID: snowflake.ID(400), Label: "Bacon", Kind: "extra", Price: decimal.RequireFromString("1.50")},
			},
		}},
	}
}

func event(t *testing.T, entity realtime.Entity, op realtime.Op, session, record snowflake.ID, payload any) realtime.Event {
	t.Helper()
	ev, err := realtime.NewEvent(entity, op, restaurantID.String(), session.String(), record.String(), payload, t0)
	require.NoError(t, err)
	return ev
}

func TestApplyIsIdempotent(t *testing.T) {
	once := New(restaurantScope())
	twice := New(restaurantScope())
	ev := event(t, realtime.EntityOrder, realtime.OpInsert, sessionID, orderID, sampleOrder(orderdomain.StatusSent, t0))

	_, err := once.Apply(ev)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := twice.Apply(ev)
		require.NoError(t, err)
	}

	assert.Equal(t, once.Orders(), twice.Orders())
	require.Len(t, twice.Orders(), 1)
	assert.Len(t, twice.Orders()[0].Lines, 1)
	assert.Equal(t, ev.ID, twice.LastEventID())
}

func TestPartialOrderUpdateKeepsLines(t *testing.T) {
	r := New(restaurantScope())
	_, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpInsert, sessionID, orderID, sampleOrder(orderdomain.StatusSent, t0)))
	require.NoError(t, err)

	update := sampleOrder(orderdomain.StatusPreparing, t0.Add(time.Minute))
	update.Lines = nil
	_, err = r.Apply(event(t, realtime.EntityOrder, realtime.OpUpdate, sessionID, orderID, update))
	require.NoError(t, err)

	got, ok := r.Order(orderID)
	require.True(t, ok)
	assert.Equal(t, orderdomain.StatusPreparing, got.Status)
	require.Len(t, got.Lines, 1)
	assert.Len(t, got.Lines[0].Modifiers, 1)
}

func TestPartialLineUpdateKeepsModifiers(t *testing.T) {
	r := New(restaurantScope())
	_, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpInsert, sessionID, orderID, sampleOrder(orderdomain.StatusSent, t0)))
	require.NoError(t, err)

	line := sampleOrder(orderdomain.StatusSent, t0).Lines[0]
	line.Quantity = 3
	line.Modifiers = nil
	_, err = r.Apply(event(t, realtime.EntityOrderLine, realtime.OpUpdate, sessionID, line.ID, line))
	require.NoError(t, err)

	got, _ := r.Order(orderID)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 3, got.Lines[0].Quantity)
	assert.Len(t, got.Lines[0].Modifiers, 1)
}

func TestFullOrderRecordReplacesLines(t *testing.T) {
	r := New(restaurantScope())
	_, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpInsert, sessionID, orderID, sampleOrder(orderdomain.StatusSent, t0)))
	require.NoError(t, err)

	replacement := sampleOrder(orderdomain.StatusSent, t0.Add(time.Second))
	replacement.Lines = []orderdomain.Line{{ID: snowflake.ID(401), OrderID: orderID, ProductName: "Fries", Quantity: 1}}
	_, err = r.Apply(event(t, realtime.EntityOrder, realtime.OpUpdate, sessionID, orderID, replacement))
	require.NoError(t, err)

	got, _ := r.Order(orderID)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "Fries", got.Lines[0].ProductName)
	assert.Empty(t, got.Lines[0].Modifiers)
}

func TestStaleOrderUpdateIgnored(t *testing.T) {
	r := New(restaurantScope())
	_, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpUpdate, sessionID, orderID, sampleOrder(orderdomain.StatusReady, t0.Add(time.Minute))))
	require.NoError(t, err)
	_, err = r.Apply(event(t, realtime.EntityOrder, realtime.OpUpdate, sessionID, orderID, sampleOrder(orderdomain.StatusPreparing, t0)))
	require.NoError(t, err)

	got, _ := r.Order(orderID)
	assert.Equal(t, orderdomain.StatusReady, got.Status)
}

func TestDeleteRemovesOrderAndChildren(t *testing.T) {
	r := New(restaurantScope())
	_, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpInsert, sessionID, orderID, sampleOrder(orderdomain.StatusSent, t0)))
	require.NoError(t, err)
	_, err = r.Apply(event(t, realtime.EntityOrder, realtime.OpDelete, sessionID, orderID, nil))
	require.NoError(t, err)

	assert.Empty(t, r.Orders())
	assert.Empty(t, r.lines)
	assert.Empty(t, r.modifiers)
}

func TestScopeDropsOtherRestaurants(t *testing.T) {
	r := New(restaurantScope())
	ev, err := realtime.NewEvent(realtime.EntityOrder, realtime.OpInsert, "999", sessionID.String(), orderID.String(), sampleOrder(orderdomain.StatusSent, t0), t0)
	require.NoError(t, err)

	applied, err := r.Apply(ev)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, r.Orders())
}

func TestSessionScopeEvictsRecordThatMovesAway(t *testing.T) {
	r := New(Scope{RestaurantID: restaurantID.String(), SessionID: sessionID.String()})
	_, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpInsert, sessionID, orderID, sampleOrder(orderdomain.StatusSent, t0)))
	require.NoError(t, err)
	require.Len(t, r.Orders(), 1)

	moved := sampleOrder(orderdomain.StatusSent, t0.Add(time.Minute))
	moved.SessionID = snowflake.ID(201)
	applied, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpUpdate, moved.SessionID, orderID, moved))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, r.Orders())
}

func TestOpenOnlyEvictsSettledOrders(t *testing.T) {
	r := New(Scope{RestaurantID: restaurantID.String(), OpenOnly: true})
	_, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpInsert, sessionID, orderID, sampleOrder(orderdomain.StatusDelivered, t0)))
	require.NoError(t, err)
	require.Len(t, r.Orders(), 1)

	paid := sampleOrder(orderdomain.StatusDelivered, t0.Add(time.Minute))
	paid.IsPaid = true
	_, err = r.Apply(event(t, realtime.EntityOrder, realtime.OpUpdate, sessionID, orderID, paid))
	require.NoError(t, err)
	assert.Empty(t, r.Orders())
}

func TestStageConfirmRollback(t *testing.T) {
	r := New(restaurantScope())
	_, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpInsert, sessionID, orderID, sampleOrder(orderdomain.StatusSent, t0)))
	require.NoError(t, err)

	require.NoError(t, r.Stage(orderID, func(o *orderdomain.Order) { o.Status = orderdomain.StatusPreparing }))
	require.NoError(t, r.Stage(orderID, func(o *orderdomain.Order) { o.Status = orderdomain.StatusReady }))
	got, _ := r.Order(orderID)
	assert.Equal(t, orderdomain.StatusReady, got.Status)
	assert.Equal(t, 1, r.Pending())

	require.NoError(t, r.Rollback(orderID))
	got, _ = r.Order(orderID)
	assert.Equal(t, orderdomain.StatusSent, got.Status)
	assert.Len(t, got.Lines, 1)
	assert.Zero(t, r.Pending())
	assert.ErrorIs(t, r.Rollback(orderID), ErrNotStaged)

	require.NoError(t, r.Stage(orderID, func(o *orderdomain.Order) { o.Status = orderdomain.StatusPreparing }))
	confirmed := sampleOrder(orderdomain.StatusPreparing, t0.Add(time.Minute))
	confirmed.Lines = nil
	require.NoError(t, r.Confirm(orderID, confirmed))
	got, _ = r.Order(orderID)
	assert.Equal(t, orderdomain.StatusPreparing, got.Status)
	assert.Len(t, got.Lines, 1)
	assert.Zero(t, r.Pending())

	assert.ErrorIs(t, r.Stage(snowflake.ID(1), func(*orderdomain.Order) {}), ErrUnknownRecord)
}

func TestResetReplacesWorkingSet(t *testing.T) {
	r := New(restaurantScope())
	_, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpInsert, sessionID, orderID, sampleOrder(orderdomain.StatusSent, t0)))
	require.NoError(t, err)

	other := sampleOrder(orderdomain.StatusReady, t0)
	other.ID = snowflake.ID(301)
	other.Lines = nil
	foreign := sampleOrder(orderdomain.StatusReady, t0)
	foreign.ID = snowflake.ID(302)
	foreign.RestaurantID = snowflake.ID(999)

	r.Reset(Snapshot{
		Orders: []orderdomain.Order{other, foreign},
		Sessions: []sessiondomain.Session{{
			ID: sessionID, RestaurantID: restaurantID, TableNumber: "12", Status: sessiondomain.StatusOpen, OpenedAt: t0,
		}},
		Payments: []sessiondomain.PaymentEntry{
			{ID: snowflake.ID(600), SessionID: sessionID, Method: "cash", Amount: decimal.RequireFromString("5.00")},
			{ID: snowflake.ID(601), SessionID: snowflake.ID(777), Method: "cash", Amount: decimal.RequireFromString("1.00")},
		},
	})

	orders := r.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, snowflake.ID(301), orders[0].ID)
	require.Len(t, r.Sessions(), 1)

	agg, ok := r.Aggregate(sessionID)
	require.True(t, ok)
	assert.Equal(t, "14.00", agg.Remaining.StringFixed(2))
	assert.Len(t, agg.Payments, 1)
}

func TestChangedSignalsCoalesce(t *testing.T) {
	r := New(restaurantScope())
	for i := 0; i < 3; i++ {
		_, err := r.Apply(event(t, realtime.EntityOrder, realtime.OpInsert, sessionID, orderID, sampleOrder(orderdomain.StatusSent, t0)))
		require.NoError(t, err)
	}
	select {
	case <-r.Changed():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-r.Changed():
		t.Fatal("signals should coalesce")
	default:
	}
}
