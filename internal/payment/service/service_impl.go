package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tabledesk/internal/audit/domain"
	"github.com/smallbiznis/tabledesk/internal/auditcontext"
	"github.com/smallbiznis/tabledesk/internal/clock"
	"github.com/smallbiznis/tabledesk/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	"github.com/smallbiznis/tabledesk/internal/payment/domain"
	"github.com/smallbiznis/tabledesk/internal/pricing"
	"github.com/smallbiznis/tabledesk/internal/realtime"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	"github.com/smallbiznis/tabledesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Sessions  sessiondomain.Repository
	Orders    orderdomain.Repository
	Audit     auditdomain.Service `optional:"true"`
	Publisher realtime.Publisher  `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	sessions  sessiondomain.Repository
	orders    orderdomain.Repository
	audit     auditdomain.Service
	publisher realtime.Publisher
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		sessions:  p.Sessions,
		orders:    p.Orders,
		audit:     p.Audit,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

// Record inserts a payment against an open session. The session row is
// locked and the balance recomputed inside the transaction, so concurrent
// cashiers cannot jointly overpay. When the balance reaches zero the session
// closes and its orders are flagged paid in a savepoint; a failure there keeps
// the payment and the closure and is reported as SyncWarning.
func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error) {
	if !pricing.ValidAmount(req.Amount) {
		return nil, domain.ErrInvalidAmount
	}
	method, err := domain.ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}
	sessionID, err := snowflake.ParseString(strings.TrimSpace(req.SessionID))
	if err != nil || sessionID == 0 {
		return nil, sessiondomain.ErrInvalidSessionID
	}

	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		createdBy = auditcontext.ActorFromContext(ctx).ID
	}
	now := s.clock.Now().UTC()
	payment := domain.Payment{
		ID:           s.genID.Generate(),
		RestaurantID: req.RestaurantID,
		SessionID:    sessionID,
		Method:       method,
		Amount:       req.Amount,
		CreatedAt:    now,
	}
	if createdBy != "" {
		payment.CreatedBy = &createdBy
	}

	log := s.log.With(
		zap.String("restaurant_id", req.RestaurantID.String()),
		zap.String("session_id", sessionID.String()),
		zap.String("payment_id", payment.ID.String()),
	)

	result := &domain.RecordResult{Payment: payment}
	var flagged []snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.sessions.FindByID(ctx, tx, sessionID, true)
		if err != nil {
			return err
		}
		if session == nil || session.RestaurantID != req.RestaurantID {
			return sessiondomain.ErrSessionNotFound
		}
		if session.Status != sessiondomain.StatusOpen {
			return domain.ErrSessionClosed
		}

		agg, err := sessiondomain.LoadAggregate(ctx, tx, s.sessions, s.orders, *session)
		if err != nil {
			return err
		}
		if !pricing.WithinBalance(req.Amount, agg.Remaining) {
			return &domain.OverpaymentError{Amount: req.Amount, Aggregate: agg}
		}

		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}
		after := sessiondomain.BuildAggregate(*session, agg.Orders, append(agg.Payments, sessiondomain.PaymentEntry{
			ID:        payment.ID,
			SessionID: payment.SessionID,
			Method:    string(payment.Method),
			Amount:    payment.Amount,
			CreatedBy: payment.CreatedBy,
			CreatedAt: payment.CreatedAt,
		}))
		if !after.Settled() {
			return nil
		}

		closed, err := s.sessions.Close(ctx, tx, sessionID, now, payment.CreatedBy)
		if err != nil {
			return err
		}
		if !closed {
			return domain.ErrSessionClosed
		}
		result.Closed = true

		if err := tx.Transaction(func(sp *gorm.DB) error {
			ids, err := s.orders.MarkSessionPaid(ctx, sp, sessionID, nil, now)
			if err != nil {
				return err
			}
			flagged = ids
			return nil
		}); err != nil {
			log.Error("session closed but orders not flagged paid", zap.Error(err))
			result.SyncWarning = domain.ErrPostSettlementSync
		}
		return nil
	})
	if err != nil {
		return nil, s.rejected(ctx, req.RestaurantID, sessionID, err)
	}

	agg, err := s.reload(ctx, sessionID)
	if err != nil {
		log.Warn("payment committed, aggregate reload failed", zap.Error(err))
	}
	result.Aggregate = agg

	s.metrics.RecordPayment(ctx, req.RestaurantID.String(), string(method))
	s.writeAudit(ctx, auditdomain.Entry{
		RestaurantID: req.RestaurantID,
		Action:       auditdomain.ActionPaymentRecorded,
		TargetType:   auditdomain.TargetTypePayment,
		TargetID:     payment.ID.String(),
		Metadata: map[string]any{
			"session_id": sessionID.String(),
			"method":     string(method),
			"amount":     payment.Amount.StringFixed(2),
		},
	})
	s.publishPayment(ctx, payment)

	if result.Closed {
		s.metrics.RecordSessionClosed(ctx, req.RestaurantID.String())
		if result.SyncWarning != nil {
			s.metrics.RecordSettlementWarning(ctx, req.RestaurantID.String())
		}
		s.writeAudit(ctx, auditdomain.Entry{
			RestaurantID: req.RestaurantID,
			Action:       auditdomain.ActionSessionClosed,
			TargetType:   auditdomain.TargetTypeTableSession,
			TargetID:     sessionID.String(),
			Metadata: map[string]any{
				"orders_flagged": len(flagged),
				"sync_warning":   result.SyncWarning != nil,
			},
		})
		if agg != nil {
			s.publishSettlement(ctx, agg, flagged)
		}
		log.Info("session settled", zap.Int("orders_flagged", len(flagged)))
	}
	return result, nil
}

func (s *Service) rejected(ctx context.Context, restaurantID, sessionID snowflake.ID, err error) error {
	var over *domain.OverpaymentError
	switch {
	case errors.As(err, &over):
		s.metrics.RecordPaymentRejected(ctx, restaurantID.String(), "overpayment")
		return err
	case errors.Is(err, domain.ErrSessionClosed):
		s.metrics.RecordPaymentRejected(ctx, restaurantID.String(), "session_closed")
		agg, reloadErr := s.reload(ctx, sessionID)
		if reloadErr != nil {
			s.log.Warn("closed session reload failed", zap.String("session_id", sessionID.String()), zap.Error(reloadErr))
			return err
		}
		return &domain.SessionClosedError{Aggregate: agg}
	case errors.Is(err, sessiondomain.ErrSessionNotFound):
		return err
	default:
		return db.Classify(err)
	}
}

func (s *Service) reload(ctx context.Context, sessionID snowflake.ID) (*sessiondomain.Aggregate, error) {
	session, err := s.sessions.FindByID(ctx, s.db, sessionID, false)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, sessiondomain.ErrSessionNotFound
	}
	return sessiondomain.LoadAggregate(ctx, s.db, s.sessions, s.orders, *session)
}

func (s *Service) Split(ctx context.Context, req domain.SplitRequest) (*domain.SplitResult, error) {
	sessionID, err := snowflake.ParseString(strings.TrimSpace(req.SessionID))
	if err != nil || sessionID == 0 {
		return nil, sessiondomain.ErrInvalidSessionID
	}
	agg, err := s.reload(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessiondomain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, db.Classify(err)
	}
	if agg.Session.RestaurantID != req.RestaurantID {
		return nil, sessiondomain.ErrSessionNotFound
	}

	out := &domain.SplitResult{Remaining: agg.Remaining}
	switch {
	case len(req.LineIDs) > 0:
		selected, err := domain.SelectedLinesAmount(agg, req.LineIDs)
		if err != nil {
			return nil, err
		}
		out.Selected = &selected
	case req.Parts >= 1 && req.Parts <= domain.MaxSplitParts:
		out.Shares = pricing.EqualSplit(agg.Remaining, req.Parts)
	default:
		return nil, domain.ErrInvalidSplit
	}
	return out, nil
}

func (s *Service) ReconcilePaidFlags(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	sessions, err := s.sessions.ListClosedWithUnpaidOrders(ctx, s.db, limit)
	if err != nil {
		return 0, db.Classify(err)
	}

	repaired := 0
	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		// Orders created after the close were never covered by a payment.
		ids, err := s.orders.MarkSessionPaid(ctx, s.db, session.ID, session.ClosedAt, s.clock.Now().UTC())
		if err != nil {
			s.log.Warn("paid flag repair failed",
				zap.String("session_id", session.ID.String()),
				zap.Error(err),
			)
			continue
		}
		repaired += len(ids)

		s.writeAudit(ctx, auditdomain.Entry{
			RestaurantID: session.RestaurantID,
			Action:       auditdomain.ActionPaidFlagsReconciled,
			TargetType:   auditdomain.TargetTypeTableSession,
			TargetID:     session.ID.String(),
			Metadata:     map[string]any{"orders_flagged": len(ids)},
		})
		if agg, err := sessiondomain.LoadAggregate(ctx, s.db, s.sessions, s.orders, session); err == nil {
			s.publishSettlement(ctx, agg, ids)
		}
	}
	return repaired, nil
}

func (s *Service) writeAudit(ctx context.Context, entry auditdomain.Entry) {
	if s.audit == nil {
		return
	}
	// Audit failures are logged by the audit service and never undo a payment.
	_ = s.audit.Record(ctx, entry)
}

func (s *Service) publishPayment(ctx context.Context, p domain.Payment) {
	s.emit(ctx, realtime.EntityPayment, realtime.OpInsert, p.RestaurantID, p.SessionID, p.ID, p)
}

func (s *Service) publishSettlement(ctx context.Context, agg *sessiondomain.Aggregate, flagged []snowflake.ID) {
	session := agg.Session
	s.emit(ctx, realtime.EntityTableSession, realtime.OpUpdate, session.RestaurantID, session.ID, session.ID, session)

	changed := make(map[snowflake.ID]struct{}, len(flagged))
	for _, id := range flagged {
		changed[id] = struct{}{}
	}
	for _, o := range agg.Orders {
		if _, ok := changed[o.ID]; !ok {
			continue
		}
		s.emit(ctx, realtime.EntityOrder, realtime.OpUpdate, o.RestaurantID, o.SessionID, o.ID, o)
	}
}

func (s *Service) emit(ctx context.Context, entity realtime.Entity, op realtime.Op, restaurantID, sessionID, recordID snowflake.ID, record any) {
	if s.publisher == nil {
		return
	}
	ev, err := realtime.NewEvent(entity, op, restaurantID.String(), sessionID.String(), recordID.String(), record, s.clock.Now())
	if err != nil {
		s.log.Warn("failed to build event", zap.String("entity", string(entity)), zap.Error(err))
		return
	}
	s.publisher.Publish(ctx, ev)
}
