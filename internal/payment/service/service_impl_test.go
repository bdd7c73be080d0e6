package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/tabledesk/internal/audit/domain"
	auditrepo "github.com/smallbiznis/tabledesk/internal/audit/repository"
	auditservice "github.com/smallbiznis/tabledesk/internal/audit/service"
	"github.com/smallbiznis/tabledesk/internal/clock"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	orderrepo "github.com/smallbiznis/tabledesk/internal/order/repository"
	"github.com/smallbiznis/tabledesk/internal/payment/domain"
	"github.com/smallbiznis/tabledesk/internal/payment/repository"
	"github.com/smallbiznis/tabledesk/internal/realtime"
	"github.com/smallbiznis/tabledesk/internal/storetest"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	sessionrepo "github.com/smallbiznis/tabledesk/internal/tablesession/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type flakyOrders struct {
	orderdomain.Repository
	failMarkPaid bool
}

func (r *flakyOrders) MarkSessionPaid(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, settledAt *time.Time, at time.Time) ([]snowflake.ID, error) {
	if r.failMarkPaid {
		return nil, errors.New("canceling statement due to lock timeout")
	}
	return r.Repository.MarkSessionPaid(ctx, db, sessionID, settledAt, at)
}

type env struct {
	conn   *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	seed   storetest.Fixture
	orders *flakyOrders
	events *realtime.Recorder
	audit  auditdomain.Service
	svc    domain.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conn := storetest.Open(t)
	node := storetest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC))
	e := &env{
		conn:   conn,
		node:   node,
		clock:  clk,
		seed:   storetest.Seed(t, conn, node, "pay-bistro", nil),
		orders: &flakyOrders{Repository: orderrepo.Provide()},
		events: &realtime.Recorder{},
	}
	e.audit = auditservice.NewService(auditservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	e.svc = NewService(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      repository.Provide(),
		Sessions:  sessionrepo.Provide(),
		Orders:    e.orders,
		Audit:     e.audit,
		Publisher: e.events,
	})
	return e
}

// openSession creates an open session holding one order per total.
func (e *env) openSession(t *testing.T, table string, totals ...string) snowflake.ID {
	t.Helper()
	now := e.clock.Now()
	sessionID := e.node.Generate()
	require.NoError(t, e.conn.Exec(
		`INSERT INTO table_sessions (id, restaurant_id, table_number, status, opened_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, e.seed.RestaurantID, table, "open", now,
	).Error)
	for _, total := range totals {
		e.addOrder(t, sessionID, table, total, now)
	}
	return sessionID
}

// addOrder inserts an unpaid delivered order with a single line.
func (e *env) addOrder(t *testing.T, sessionID snowflake.ID, table, total string, createdAt time.Time) snowflake.ID {
	t.Helper()
	orderID := e.node.Generate()
	require.NoError(t, e.conn.Exec(
		`INSERT INTO orders (id, restaurant_id, session_id, table_number, status, total, is_paid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orderID, e.seed.RestaurantID, sessionID, table, "delivered", decimal.RequireFromString(total), false, createdAt, createdAt,
	).Error)
	require.NoError(t, e.conn.Exec(
		`INSERT INTO order_lines (id, order_id, product_id, product_name, quantity, unit_price, line_total, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.node.Generate(), orderID, 1, "Dish", 1, decimal.RequireFromString(total), decimal.RequireFromString(total), 0,
	).Error)
	return orderID
}

func (e *env) pay(sessionID snowflake.ID, method, amount string) (*domain.RecordResult, error) {
	return e.svc.Record(context.Background(), domain.RecordRequest{
		RestaurantID: e.seed.RestaurantID,
		SessionID:    sessionID.String(),
		Method:       method,
		Amount:       decimal.RequireFromString(amount),
		CreatedBy:    "cashier-1",
	})
}

func (e *env) unpaidOrders(t *testing.T, sessionID snowflake.ID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.conn.Table("orders").Where("session_id = ? AND is_paid = ?", sessionID, false).Count(&n).Error)
	return n
}

func TestPartialPaymentsCloseOnLastOne(t *testing.T) {
	e := newEnv(t)
	sessionID := e.openSession(t, "8", "30.00", "20.00")

	first, err := e.pay(sessionID, "cash", "30.00")
	require.NoError(t, err)
	assert.False(t, first.Closed)
	require.NotNil(t, first.Aggregate)
	assert.True(t, first.Aggregate.Remaining.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, sessiondomain.StatusOpen, first.Aggregate.Session.Status)
	assert.EqualValues(t, 2, e.unpaidOrders(t, sessionID))

	second, err := e.pay(sessionID, "card", "20.00")
	require.NoError(t, err)
	assert.True(t, second.Closed)
	assert.Nil(t, second.SyncWarning)
	assert.True(t, second.Aggregate.Remaining.IsZero())
	assert.Equal(t, sessiondomain.StatusClosed, second.Aggregate.Session.Status)
	require.NotNil(t, second.Aggregate.Session.ClosedBy)
	assert.Equal(t, "cashier-1", *second.Aggregate.Session.ClosedBy)
	assert.EqualValues(t, 0, e.unpaidOrders(t, sessionID))
	for _, o := range second.Aggregate.Orders {
		assert.True(t, o.IsPaid)
	}

	assert.Equal(t, 2, e.events.Count(realtime.EntityPayment, realtime.OpInsert))
	assert.Equal(t, 1, e.events.Count(realtime.EntityTableSession, realtime.OpUpdate))
	assert.Equal(t, 2, e.events.Count(realtime.EntityOrder, realtime.OpUpdate))

	logs, err := e.audit.List(context.Background(), auditdomain.ListRequest{RestaurantID: e.seed.RestaurantID})
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	_, err = e.pay(sessionID, "cash", "1.00")
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	var closed *domain.SessionClosedError
	require.ErrorAs(t, err, &closed)
	require.NotNil(t, closed.Aggregate)
	assert.Equal(t, sessiondomain.StatusClosed, closed.Aggregate.Session.Status)
	assert.True(t, closed.Aggregate.Remaining.IsZero())
}

func TestOverpaymentIsRejected(t *testing.T) {
	e := newEnv(t)
	sessionID := e.openSession(t, "3", "10.00")

	_, err := e.pay(sessionID, "cash", "10.01")
	var over *domain.OverpaymentError
	require.ErrorAs(t, err, &over)
	assert.ErrorIs(t, err, domain.ErrOverpaymentRejected)
	require.NotNil(t, over.Aggregate)
	assert.True(t, over.Aggregate.Remaining.Equal(decimal.RequireFromString("10.00")))

	var payments int64
	require.NoError(t, e.conn.Table("payments").Count(&payments).Error)
	assert.EqualValues(t, 0, payments)

	res, err := e.pay(sessionID, "cash", "10.00")
	require.NoError(t, err)
	assert.True(t, res.Closed)
}

func TestRecordValidation(t *testing.T) {
	e := newEnv(t)
	sessionID := e.openSession(t, "3", "10.00")

	for _, amount := range []string{"0", "-1", "1.005"} {
		_, err := e.pay(sessionID, "cash", amount)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, amount)
	}
	_, err := e.pay(sessionID, "voucher", "1.00")
	assert.ErrorIs(t, err, domain.ErrInvalidMethod)

	_, err = e.svc.Record(context.Background(), domain.RecordRequest{
		RestaurantID: e.seed.RestaurantID, SessionID: "abc", Method: "cash", Amount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, sessiondomain.ErrInvalidSessionID)

	_, err = e.pay(e.node.Generate(), "cash", "1.00")
	assert.ErrorIs(t, err, sessiondomain.ErrSessionNotFound)
}

func TestSettlementSyncFailureKeepsPaymentAndClosure(t *testing.T) {
	e := newEnv(t)
	sessionID := e.openSession(t, "5", "12.00", "7.00")
	e.orders.failMarkPaid = true

	res, err := e.pay(sessionID, "card", "19.00")
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.ErrorIs(t, res.SyncWarning, domain.ErrPostSettlementSync)
	assert.Equal(t, sessiondomain.StatusClosed, res.Aggregate.Session.Status)
	assert.EqualValues(t, 2, e.unpaidOrders(t, sessionID))

	e.orders.failMarkPaid = false
	repaired, err := e.svc.ReconcilePaidFlags(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)
	assert.EqualValues(t, 0, e.unpaidOrders(t, sessionID))

	repaired, err = e.svc.ReconcilePaidFlags(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestReconcileSkipsOrdersAddedAfterClose(t *testing.T) {
	e := newEnv(t)
	sessionID := e.openSession(t, "6", "10.00")
	res, err := e.pay(sessionID, "cash", "10.00")
	require.NoError(t, err)
	require.True(t, res.Closed)

	e.clock.Advance(5 * time.Minute)
	late := e.addOrder(t, sessionID, "6", "25.00", e.clock.Now())

	repaired, err := e.svc.ReconcilePaidFlags(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, repaired)

	var paid bool
	require.NoError(t, e.conn.Raw(`SELECT is_paid FROM orders WHERE id = ?`, late).Row().Scan(&paid))
	assert.False(t, paid, "no payment covers an order created after the session closed")
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	e := newEnv(t)
	sessionID := e.openSession(t, "1", "50.00")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.pay(sessionID, "cash", "15.00"); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, accepted)
	var rows []struct{ Amount decimal.Decimal }
	require.NoError(t, e.conn.Raw(`SELECT amount FROM payments WHERE session_id = ?`, sessionID).Scan(&rows).Error)
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Amount)
	}
	assert.True(t, sum.LessThanOrEqual(decimal.NewFromInt(50)), sum.String())
}

func TestSplit(t *testing.T) {
	e := newEnv(t)
	sessionID := e.openSession(t, "2", "6.00", "4.00")
	ctx := context.Background()

	res, err := e.svc.Split(ctx, domain.SplitRequest{RestaurantID: e.seed.RestaurantID, SessionID: sessionID.String(), Parts: 3})
	require.NoError(t, err)
	require.Len(t, res.Shares, 3)
	assert.Equal(t, "3.33", res.Shares[0].StringFixed(2))
	assert.Equal(t, "3.34", res.Shares[2].StringFixed(2))

	agg, err := e.svc.Split(ctx, domain.SplitRequest{RestaurantID: e.seed.RestaurantID, SessionID: sessionID.String(), Parts: 1})
	require.NoError(t, err)
	assert.True(t, agg.Shares[0].Equal(decimal.NewFromInt(10)))

	var lineID snowflake.ID
	require.NoError(t, e.conn.Raw(
		`SELECT l.id FROM order_lines l JOIN orders o ON o.id = l.order_id WHERE o.session_id = ? AND o.total = ?`,
		sessionID, decimal.RequireFromString("6.00"),
	).Scan(&lineID).Error)
	selected, err := e.svc.Split(ctx, domain.SplitRequest{
		RestaurantID: e.seed.RestaurantID, SessionID: sessionID.String(), LineIDs: []string{lineID.String()},
	})
	require.NoError(t, err)
	require.NotNil(t, selected.Selected)
	assert.True(t, selected.Selected.Equal(decimal.NewFromInt(6)))

	_, err = e.svc.Split(ctx, domain.SplitRequest{RestaurantID: e.seed.RestaurantID, SessionID: sessionID.String()})
	assert.ErrorIs(t, err, domain.ErrInvalidSplit)
	_, err = e.svc.Split(ctx, domain.SplitRequest{RestaurantID: e.seed.RestaurantID, SessionID: sessionID.String(), LineIDs: []string{"42"}})
	assert.ErrorIs(t, err, domain.ErrInvalidSplit)
}
