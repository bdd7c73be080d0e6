package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/tabledesk/internal/catalog/domain"
	"github.com/smallbiznis/tabledesk/internal/clock"
	"github.com/smallbiznis/tabledesk/internal/observability/metrics"
	"github.com/smallbiznis/tabledesk/internal/order/domain"
	"github.com/smallbiznis/tabledesk/internal/pricing"
	"github.com/smallbiznis/tabledesk/internal/realtime"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	"github.com/smallbiznis/tabledesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	workingSetLimit    = 500
	maxSessionAttempts = 3
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Catalog   catalogdomain.Service
	Sessions  sessiondomain.Service
	Publisher realtime.Publisher `optional:"true"`
	Metrics   *metrics.Metrics   `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	catalog   catalogdomain.Service
	sessions  sessiondomain.Service
	publisher realtime.Publisher
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("order.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		catalog:   p.Catalog,
		sessions:  p.Sessions,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

type pricedItem struct {
	item    domain.SubmitItem
	product catalogdomain.Product
	price   pricing.LinePrice
}

// Submit validates and prices an order, then writes header, lines and
// modifiers as separate steps. A failed line write removes the header again;
// a failed modifier write keeps the order and reports a warning.
func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.SubmitResult, error) {
	table := strings.TrimSpace(req.Table)
	if table == "" || len(table) > domain.MaxTableNumberLength {
		return nil, domain.ErrInvalidTable
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	productIDs := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		id, err := strconv.ParseInt(strings.TrimSpace(item.ProductID), 10, 64)
		if err != nil || id <= 0 {
			return nil, domain.ErrInvalidProductID
		}
		if item.Quantity < 1 {
			return nil, pricing.ErrInvalidQuantity
		}
		productIDs = append(productIDs, id)
	}

	restaurant, err := s.catalog.GetRestaurant(ctx, req.RestaurantSlug)
	if err != nil {
		return nil, err
	}
	restaurantID := snowflake.ID(restaurant.ID)

	products, err := s.catalog.ProductsByIDs(ctx, restaurant.ID, productIDs)
	if err != nil {
		return nil, domain.ErrCatalogUnavailable
	}
	if len(products) == 0 {
		return nil, domain.ErrCatalogUnavailable
	}

	priced := make([]pricedItem, 0, len(req.Items))
	for i, item := range req.Items {
		product, ok := products[productIDs[i]]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		selections := make([]pricing.Selection, 0, len(item.Modifiers))
		for _, m := range item.Modifiers {
			selections = append(selections, pricing.Selection{
				Label: m.Label,
				Kind:  pricing.ModifierKind(strings.ToLower(strings.TrimSpace(m.Kind))),
			})
		}
		price, err := pricing.PriceLine(product, item.Quantity, selections)
		if err != nil {
			return nil, err
		}
		priced = append(priced, pricedItem{item: item, product: product, price: price})
	}

	order, modifiers, err := s.insertHeader(ctx, restaurantID, table, priced)
	if err != nil {
		return nil, err
	}
	log := s.log.With(
		zap.String("restaurant_id", restaurantID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("session_id", order.SessionID.String()),
	)

	if err := s.repo.InsertLines(ctx, s.db, order.Lines); err != nil {
		s.metrics.RecordOrderWriteFailure(ctx, restaurantID.String(), "lines")
		log.Error("order lines write failed, removing header", zap.Error(err))
		if delErr := s.repo.DeleteOrder(context.WithoutCancel(ctx), s.db, order.ID); delErr != nil {
			log.Error("compensating delete failed", zap.Error(delErr))
		}
		return nil, domain.ErrPartialWrite
	}

	result := &domain.SubmitResult{Order: order, ModifiersPersisted: true}
	if err := s.repo.InsertModifiers(ctx, s.db, modifiers); err != nil {
		s.metrics.RecordOrderWriteFailure(ctx, restaurantID.String(), "modifiers")
		log.Warn("order modifiers not persisted", zap.Int("modifiers", len(modifiers)), zap.Error(err))
		for i := range order.Lines {
			order.Lines[i].Modifiers = nil
		}
		result.ModifiersPersisted = false
		result.Warning = domain.ErrModifiersNotPersisted
	}

	s.metrics.RecordOrderSubmitted(ctx, restaurantID.String(), result.ModifiersPersisted)
	s.publish(ctx, realtime.OpInsert, *order)
	log.Info("order submitted",
		zap.String("table_number", table),
		zap.Int("lines", len(order.Lines)),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return result, nil
}

// insertHeader attaches the order to the table's open session. A payment can
// close that session between the lookup and the write; the order then goes to
// the session opened for the next visit.
func (s *Service) insertHeader(ctx context.Context, restaurantID snowflake.ID, table string, priced []pricedItem) (*domain.Order, []domain.Modifier, error) {
	for attempt := 1; attempt <= maxSessionAttempts; attempt++ {
		session, err := s.sessions.ResolveOpenSession(ctx, restaurantID, table)
		if err != nil {
			return nil, nil, err
		}

		order, modifiers := s.build(restaurantID, session.ID, table, priced)
		inserted, err := s.repo.InsertOrder(ctx, s.db, order)
		if err != nil {
			s.metrics.RecordOrderWriteFailure(ctx, restaurantID.String(), "header")
			return nil, nil, db.Classify(err)
		}
		if inserted {
			return order, modifiers, nil
		}
		s.log.Info("session closed during order submit",
			zap.String("session_id", session.ID.String()),
			zap.Int("attempt", attempt),
		)
	}
	return nil, nil, domain.ErrSessionChanged
}

func (s *Service) build(restaurantID, sessionID snowflake.ID, table string, priced []pricedItem) (*domain.Order, []domain.Modifier) {
	now := s.clock.Now().UTC()
	order := &domain.Order{
		ID:           s.genID.Generate(),
		RestaurantID: restaurantID,
		SessionID:    sessionID,
		TableNumber:  table,
		Status:       domain.StatusSent,
		CreatedAt:    now,
		UpdatedAt:    now,
		Lines:        make([]domain.Line, 0, len(priced)),
	}

	var modifiers []domain.Modifier
	prices := make([]pricing.LinePrice, 0, len(priced))
	for i, p := range priced {
		line := domain.Line{
			ID:          s.genID.Generate(),
			OrderID:     order.ID,
			ProductID:   snowflake.ID(p.product.ID),
			ProductName: p.product.Name,
			Quantity:    p.item.Quantity,
			UnitPrice:   p.price.UnitPrice,
			LineTotal:   p.price.LineTotal,
			Position:    i,
		}
		if note := strings.TrimSpace(p.item.Note); note != "" {
			line.Note = &note
		}
		for _, m := range p.price.Modifiers {
			mod := domain.Modifier{
				ID:          s.genID.Generate(),
				OrderLineID: line.ID,
				Label:       m.Label,
				Kind:        string(m.Kind),
				Price:       m.Price,
			}
			line.Modifiers = append(line.Modifiers, mod)
			modifiers = append(modifiers, mod)
		}
		order.Lines = append(order.Lines, line)
		prices = append(prices, p.price)
	}
	order.Total = pricing.OrderTotal(prices)
	return order, modifiers
}

func (s *Service) Get(ctx context.Context, restaurantID snowflake.ID, orderID string) (*domain.Order, error) {
	id, err := parseID(orderID)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.FindByID(ctx, s.db, restaurantID, id)
	if err != nil {
		return nil, db.Classify(err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// UpdateStatus moves an order along the kitchen workflow. Concurrent updates
// are last-write-wins; delivered_at is only ever set once.
func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (*domain.Order, error) {
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	order, err := s.Get(ctx, req.RestaurantID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if err := domain.CanTransition(order.Status, status, order.IsPaid); err != nil {
		return nil, &domain.TransitionError{Order: order, Err: err}
	}
	if order.Status == status {
		return order, nil
	}

	now := s.clock.Now().UTC()
	var deliveredAt *time.Time
	if status == domain.StatusDelivered {
		deliveredAt = &now
	}

	log := s.log.With(
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(order.Status)),
		zap.String("to", string(status)),
	)
	err = s.repo.UpdateStatus(ctx, s.db, order.ID, status, deliveredAt, now)
	if err != nil && db.IsUndefinedColumnErr(err) {
		log.Warn("store rejected delivered_at, retrying with status only", zap.Error(err))
		err = s.repo.UpdateStatusOnly(ctx, s.db, order.ID, status, now)
	}
	if err != nil {
		return nil, db.Classify(err)
	}

	s.metrics.RecordStatusTransition(ctx, string(order.Status), string(status))
	log.Info("order status updated")

	updated, err := s.repo.FindByID(ctx, s.db, req.RestaurantID, order.ID)
	if err != nil {
		return nil, db.Classify(err)
	}
	if updated == nil {
		return nil, domain.ErrOrderNotFound
	}
	s.publish(ctx, realtime.OpUpdate, *updated)
	return updated, nil
}

func (s *Service) ListWorkingSet(ctx context.Context, restaurantID snowflake.ID) ([]domain.Order, error) {
	orders, err := s.repo.ListWorkingSet(ctx, s.db, restaurantID, workingSetLimit)
	if err != nil {
		return nil, db.Classify(err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

func (s *Service) ListBySession(ctx context.Context, sessionID snowflake.ID) ([]domain.Order, error) {
	orders, err := s.repo.ListBySessions(ctx, s.db, []snowflake.ID{sessionID})
	if err != nil {
		return nil, db.Classify(err)
	}
	return orders, nil
}

func (s *Service) publish(ctx context.Context, op realtime.Op, order domain.Order) {
	if s.publisher == nil {
		return
	}
	ev, err := realtime.NewEvent(realtime.EntityOrder, op,
		order.RestaurantID.String(), order.SessionID.String(), order.ID.String(), order, s.clock.Now())
	if err != nil {
		s.log.Warn("failed to build order event", zap.Error(err))
		return
	}
	s.publisher.Publish(ctx, ev)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidOrderID
	}
	return id, nil
}
