package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tabledesk/internal/clock"
	orderrepo "github.com/smallbiznis/tabledesk/internal/order/repository"
	"github.com/smallbiznis/tabledesk/internal/realtime"
	"github.com/smallbiznis/tabledesk/internal/storetest"
	"github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	"github.com/smallbiznis/tabledesk/internal/tablesession/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// staleRepo hides existing open sessions on the first lookup, the way a
// concurrent request sees the table before the other one commits.
type staleRepo struct {
	domain.Repository
	staleReads int
	duplicate  bool
}

func (r *staleRepo) FindOpenByTable(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, table string) ([]domain.Session, error) {
	if r.staleReads > 0 {
		r.staleReads--
		return nil, nil
	}
	open, err := r.Repository.FindOpenByTable(ctx, db, restaurantID, table)
	if r.duplicate && len(open) == 1 {
		open = append(open, open[0])
	}
	return open, err
}

type fixture struct {
	conn   *gorm.DB
	node   *snowflake.Node
	seed   storetest.Fixture
	repo   *staleRepo
	events *realtime.Recorder
	svc    domain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conn := storetest.Open(t)
	node := storetest.Node(t)
	f := &fixture{
		conn:   conn,
		node:   node,
		seed:   storetest.Seed(t, conn, node, "osteria", nil),
		repo:   &staleRepo{Repository: repository.Provide()},
		events: &realtime.Recorder{},
	}
	f.svc = New(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)),
		Repo:      f.repo,
		Orders:    orderrepo.Provide(),
		Publisher: f.events,
	})
	return f
}

func (f *fixture) addOrder(t *testing.T, sessionID snowflake.ID, total, status string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.conn.Exec(
		`INSERT INTO orders (id, restaurant_id, session_id, table_number, status, total, is_paid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.node.Generate(), f.seed.RestaurantID, sessionID, "t", status, decimal.RequireFromString(total), false, now, now,
	).Error)
}

func (f *fixture) addPayment(t *testing.T, sessionID snowflake.ID, amount string) {
	t.Helper()
	require.NoError(t, f.conn.Exec(
		`INSERT INTO payments (id, restaurant_id, session_id, method, amount, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		f.node.Generate(), f.seed.RestaurantID, sessionID, "cash", decimal.RequireFromString(amount), time.Now().UTC(),
	).Error)
}

func TestResolveOpenSessionCreatesOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "12")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, first.Status)

	second, err := f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "12")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.events.Count(realtime.EntityTableSession, realtime.OpInsert))

	other, err := f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "13")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestResolveOpenSessionLosingRaceReadsWinner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	winner, err := f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "5")
	require.NoError(t, err)

	f.repo.staleReads = 1
	loser, err := f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "5")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, loser.ID)

	var open int64
	require.NoError(t, f.conn.Table("table_sessions").Where("status = ?", "open").Count(&open).Error)
	assert.EqualValues(t, 1, open)
}

func TestResolveOpenSessionAmbiguous(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "5")
	require.NoError(t, err)

	f.repo.duplicate = true
	_, err = f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "5")
	assert.ErrorIs(t, err, domain.ErrAmbiguousSession)
}

func TestResolveOpenSessionRejectsBadTable(t *testing.T) {
	f := setup(t)
	_, err := f.svc.ResolveOpenSession(context.Background(), f.seed.RestaurantID, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidTable)
}

func TestAggregateFoldsOrdersAndPayments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	session, err := f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "9")
	require.NoError(t, err)

	agg, err := f.svc.Aggregate(ctx, f.seed.RestaurantID, session.ID.String())
	require.NoError(t, err)
	assert.True(t, agg.Remaining.IsZero())

	f.addOrder(t, session.ID, "30.00", "sent")
	f.addOrder(t, session.ID, "20.00", "delivered")
	f.addOrder(t, session.ID, "99.00", "cancelled")
	f.addPayment(t, session.ID, "12.50")

	agg, err = f.svc.Aggregate(ctx, f.seed.RestaurantID, session.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "50", agg.Total.String())
	assert.Equal(t, "12.5", agg.PaidTotal.String())
	assert.Equal(t, "37.5", agg.Remaining.String())
	assert.Equal(t, 2, agg.OrderCount)
	assert.Len(t, agg.Orders, 3)
	assert.Len(t, agg.Payments, 1)

	byTable, err := f.svc.FindOpenByTable(ctx, f.seed.RestaurantID, "9")
	require.NoError(t, err)
	assert.Equal(t, session.ID, byTable.Session.ID)
}

func TestAggregateNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Aggregate(ctx, f.seed.RestaurantID, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidSessionID)

	_, err = f.svc.Aggregate(ctx, f.seed.RestaurantID, "1234")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	session, err := f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "1")
	require.NoError(t, err)
	_, err = f.svc.Aggregate(ctx, f.seed.RestaurantID+1, session.ID.String())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.svc.FindOpenByTable(ctx, f.seed.RestaurantID, "2")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestListFiltersAndSummarizes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	terrace, err := f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "Terrace 1")
	require.NoError(t, err)
	f.addOrder(t, terrace.ID, "18.00", "ready")
	f.addPayment(t, terrace.ID, "8.00")

	bar, err := f.svc.ResolveOpenSession(ctx, f.seed.RestaurantID, "Bar 2")
	require.NoError(t, err)
	f.addOrder(t, bar.ID, "6.00", "sent")
	f.addPayment(t, bar.ID, "6.00")
	require.NoError(t, f.conn.Exec(`UPDATE table_sessions SET status = ? WHERE id = ?`, "closed", bar.ID).Error)

	all, err := f.svc.List(ctx, domain.ListRequest{RestaurantID: f.seed.RestaurantID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := f.svc.List(ctx, domain.ListRequest{RestaurantID: f.seed.RestaurantID, Status: "open"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "Terrace 1", open[0].TableNumber)
	assert.Equal(t, "10", open[0].Remaining.String())
	assert.Equal(t, 1, open[0].OrderCount)

	found, err := f.svc.List(ctx, domain.ListRequest{RestaurantID: f.seed.RestaurantID, Search: "bar"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bar.ID, found[0].ID)

	_, err = f.svc.List(ctx, domain.ListRequest{RestaurantID: f.seed.RestaurantID, Status: "pending"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatusFilter)
}
