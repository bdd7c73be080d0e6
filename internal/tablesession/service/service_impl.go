package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tabledesk/internal/clock"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	"github.com/smallbiznis/tabledesk/internal/realtime"
	"github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	"github.com/smallbiznis/tabledesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Orders    orderdomain.Repository
	Publisher realtime.Publisher `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	orders    orderdomain.Repository
	publisher realtime.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("tablesession.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		orders:    p.Orders,
		publisher: p.Publisher,
	}
}

// NormalizeTable trims a table label and rejects empty or oversized ones.
func NormalizeTable(table string) (string, error) {
	table = strings.TrimSpace(table)
	if table == "" || len(table) > orderdomain.MaxTableNumberLength {
		return "", domain.ErrInvalidTable
	}
	return table, nil
}

// ResolveOpenSession returns the open session of a table, creating it when
// none exists. The partial unique index on open sessions decides concurrent
// creations; the loser re-reads the winner.
func (s *Service) ResolveOpenSession(ctx context.Context, restaurantID snowflake.ID, table string) (*domain.Session, error) {
	table, err := NormalizeTable(table)
	if err != nil {
		return nil, err
	}

	if existing, err := s.findSingleOpen(ctx, restaurantID, table); err != nil || existing != nil {
		return existing, err
	}

	session := domain.Session{
		ID:           s.genID.Generate(),
		RestaurantID: restaurantID,
		TableNumber:  table,
		Status:       domain.StatusOpen,
		OpenedAt:     s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, &session); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, db.Classify(err)
		}
		s.log.Debug("open session created concurrently, re-reading",
			zap.String("restaurant_id", restaurantID.String()),
			zap.String("table_number", table),
		)
		existing, err := s.findSingleOpen(ctx, restaurantID, table)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, db.ErrTransientStore
		}
		return existing, nil
	}

	s.publish(ctx, realtime.OpInsert, session)
	return &session, nil
}

func (s *Service) findSingleOpen(ctx context.Context, restaurantID snowflake.ID, table string) (*domain.Session, error) {
	open, err := s.repo.FindOpenByTable(ctx, s.db, restaurantID, table)
	if err != nil {
		return nil, db.Classify(err)
	}
	switch len(open) {
	case 0:
		return nil, nil
	case 1:
		return &open[0], nil
	default:
		s.log.Error("table has more than one open session",
			zap.String("restaurant_id", restaurantID.String()),
			zap.String("table_number", table),
			zap.Int("open_sessions", len(open)),
		)
		return nil, domain.ErrAmbiguousSession
	}
}

func (s *Service) Aggregate(ctx context.Context, restaurantID snowflake.ID, sessionID string) (*domain.Aggregate, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(sessionID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidSessionID
	}
	session, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return nil, db.Classify(err)
	}
	if session == nil || session.RestaurantID != restaurantID {
		return nil, domain.ErrSessionNotFound
	}
	agg, err := domain.LoadAggregate(ctx, s.db, s.repo, s.orders, *session)
	if err != nil {
		return nil, db.Classify(err)
	}
	return agg, nil
}

func (s *Service) FindOpenByTable(ctx context.Context, restaurantID snowflake.ID, table string) (*domain.Aggregate, error) {
	table, err := NormalizeTable(table)
	if err != nil {
		return nil, err
	}
	session, err := s.findSingleOpen(ctx, restaurantID, table)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	agg, err := domain.LoadAggregate(ctx, s.db, s.repo, s.orders, *session)
	if err != nil {
		return nil, db.Classify(err)
	}
	return agg, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Summary, error) {
	filter := domain.ListFilter{
		RestaurantID: req.RestaurantID,
		Search:       req.Search,
		Limit:        req.Limit,
	}
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "", "all":
	case string(domain.StatusOpen):
		filter.Status = domain.StatusOpen
	case string(domain.StatusClosed):
		filter.Status = domain.StatusClosed
	default:
		return nil, domain.ErrInvalidStatusFilter
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	sessions, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, db.Classify(err)
	}
	if len(sessions) == 0 {
		return []domain.Summary{}, nil
	}

	ids := make([]snowflake.ID, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	orders, err := s.orders.ListBySessions(ctx, s.db, ids)
	if err != nil {
		return nil, db.Classify(err)
	}
	payments, err := s.repo.ListPayments(ctx, s.db, ids)
	if err != nil {
		return nil, db.Classify(err)
	}

	ordersBySession := make(map[snowflake.ID][]orderdomain.Order, len(sessions))
	for _, o := range orders {
		ordersBySession[o.SessionID] = append(ordersBySession[o.SessionID], o)
	}
	paymentsBySession := make(map[snowflake.ID][]domain.PaymentEntry, len(sessions))
	for _, p := range payments {
		paymentsBySession[p.SessionID] = append(paymentsBySession[p.SessionID], p)
	}

	out := make([]domain.Summary, 0, len(sessions))
	for _, session := range sessions {
		agg := domain.BuildAggregate(session, ordersBySession[session.ID], paymentsBySession[session.ID])
		out = append(out, domain.Summary{
			Session:    session,
			Total:      agg.Total,
			PaidTotal:  agg.PaidTotal,
			Remaining:  agg.Remaining,
			ItemCount:  agg.ItemCount,
			OrderCount: agg.OrderCount,
		})
	}
	return out, nil
}

func (s *Service) OpenSessions(ctx context.Context, restaurantID snowflake.ID) ([]domain.Session, []domain.PaymentEntry, error) {
	sessions, err := s.repo.List(ctx, s.db, domain.ListFilter{
		RestaurantID: restaurantID,
		Status:       domain.StatusOpen,
		Limit:        maxListLimit,
	})
	if err != nil {
		return nil, nil, db.Classify(err)
	}
	if len(sessions) == 0 {
		return []domain.Session{}, []domain.PaymentEntry{}, nil
	}

	ids := make([]snowflake.ID, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	payments, err := s.repo.ListPayments(ctx, s.db, ids)
	if err != nil {
		return nil, nil, db.Classify(err)
	}
	if payments == nil {
		payments = []domain.PaymentEntry{}
	}
	return sessions, payments, nil
}

func (s *Service) publish(ctx context.Context, op realtime.Op, session domain.Session) {
	if s.publisher == nil {
		return
	}
	ev, err := realtime.NewEvent(realtime.EntityTableSession, op,
		session.RestaurantID.String(), session.ID.String(), session.ID.String(), session, s.clock.Now())
	if err != nil {
		s.log.Warn("failed to build session event", zap.Error(err))
		return
	}
	s.publisher.Publish(ctx, ev)
}
