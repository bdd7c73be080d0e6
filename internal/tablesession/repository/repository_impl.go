package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const sessionColumns = `id, restaurant_id, table_number, status, opened_at, closed_at, closed_by`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO table_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.RestaurantID, s.TableNumber, s.Status, s.OpenedAt, s.ClosedAt, s.ClosedBy,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, forUpdate bool) (*domain.Session, error) {
	stmt := db.WithContext(ctx).Model(&domain.Session{})
	// SQLite serializes writers on its own and has no row locks.
	if forUpdate && db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var sessions []domain.Session
	if err := stmt.Where("id = ?", sessionID).Limit(1).Find(&sessions).Error; err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

func (r *repo) FindOpenByTable(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, table string) ([]domain.Session, error) {
	var sessions []domain.Session
	err := db.WithContext(ctx).Raw(
		`SELECT `+sessionColumns+` FROM table_sessions
		WHERE restaurant_id = ? AND table_number = ? AND status = ?
		ORDER BY opened_at ASC`,
		restaurantID, table, domain.StatusOpen,
	).Scan(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Session, error) {
	stmt := db.WithContext(ctx).Model(&domain.Session{}).
		Where("restaurant_id = ?", filter.RestaurantID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		stmt = stmt.Where("LOWER(table_number) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	stmt = stmt.Order("opened_at DESC, id DESC")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var sessions []domain.Session
	if err := stmt.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repo) Close(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, at time.Time, closedBy *string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE table_sessions SET status = ?, closed_at = ?, closed_by = ? WHERE id = ? AND status = ?`,
		domain.StatusClosed, at, closedBy, sessionID, domain.StatusOpen,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, sessionIDs []snowflake.ID) ([]domain.PaymentEntry, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	var payments []domain.PaymentEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, session_id, method, amount, created_by, created_at FROM payments
		WHERE session_id IN ? ORDER BY created_at ASC, id ASC`,
		sessionIDs,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) ListClosedWithUnpaidOrders(ctx context.Context, db *gorm.DB, limit int) ([]domain.Session, error) {
	var sessions []domain.Session
	err := db.WithContext(ctx).Raw(
		`SELECT s.id, s.restaurant_id, s.table_number, s.status, s.opened_at, s.closed_at, s.closed_by
		FROM table_sessions s
		WHERE s.status = ? AND EXISTS (
			SELECT 1 FROM orders o
			WHERE o.session_id = s.id AND o.is_paid = ? AND o.status <> ?
			AND o.created_at <= s.closed_at
		)
		ORDER BY s.closed_at ASC, s.id ASC
		LIMIT ?`,
		domain.StatusClosed, false, "cancelled", limit,
	).Scan(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
