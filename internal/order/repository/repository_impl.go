package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tabledesk/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, restaurant_id, session_id, table_number, status, total, is_paid, delivered_at, created_at, updated_at`

const sessionStatusOpen = "open"

// InsertOrder holds a share lock on the session row while it checks the status
// and writes the header, so a settling payment either sees the order in its
// total or the order sees the session closed.
func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, o *domain.Order) (bool, error) {
	inserted := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := `SELECT status FROM table_sessions WHERE id = ?`
		// SQLite serializes writers on its own and has no row locks.
		if tx.Dialector.Name() != "sqlite" {
			query += ` FOR SHARE`
		}
		var status []string
		if err := tx.Raw(query, o.SessionID).Scan(&status).Error; err != nil {
			return err
		}
		if len(status) == 0 || status[0] != sessionStatusOpen {
			return nil
		}

		if err := tx.Exec(
			`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.RestaurantID, o.SessionID, o.TableNumber, o.Status, o.Total,
			o.IsPaid, o.DeliveredAt, o.CreatedAt, o.UpdatedAt,
		).Error; err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// InsertLines writes all lines in one statement so a failure leaves none behind.
func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []domain.Line) error {
	if len(lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&lines).Error
}

func (r *repo) InsertModifiers(ctx context.Context, db *gorm.DB, modifiers []domain.Modifier) error {
	if len(modifiers) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&modifiers).Error
}

func (r *repo) DeleteOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM order_line_modifiers WHERE order_line_id IN (SELECT id FROM order_lines WHERE order_id = ?)`,
			orderID,
		).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM order_lines WHERE order_id = ?`, orderID).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM orders WHERE id = ?`, orderID).Error
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, restaurantID, orderID snowflake.ID) (*domain.Order, error) {
	var orders []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE restaurant_id = ? AND id = ?`,
		restaurantID, orderID,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	if err := r.AttachLines(ctx, db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *repo) ListWorkingSet(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	stmt := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		WHERE restaurant_id = ? AND status <> ? AND (is_paid = ? OR status <> ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		restaurantID, domain.StatusCancelled, false, domain.StatusDelivered, limit,
	)
	if err := stmt.Scan(&orders).Error; err != nil {
		return nil, err
	}
	if err := r.AttachLines(ctx, db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListBySessions(ctx context.Context, db *gorm.DB, sessionIDs []snowflake.ID) ([]domain.Order, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	var orders []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE session_id IN ? ORDER BY created_at ASC, id ASC`,
		sessionIDs,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	if err := r.AttachLines(ctx, db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListCreatedBetween(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, from, to time.Time) ([]domain.Order, error) {
	var orders []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		WHERE restaurant_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`,
		restaurantID, from.UTC(), to.UTC(),
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// AttachLines loads lines and their modifiers for the given orders in two queries.
func (r *repo) AttachLines(ctx context.Context, db *gorm.DB, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	orderIDs := make([]snowflake.ID, 0, len(orders))
	for _, o := range orders {
		orderIDs = append(orderIDs, o.ID)
	}

	var lines []domain.Line
	if err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, product_id, product_name, quantity, note, unit_price, line_total, position
		FROM order_lines WHERE order_id IN ? ORDER BY position ASC, id ASC`,
		orderIDs,
	).Scan(&lines).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	lineIDs := make([]snowflake.ID, 0, len(lines))
	for _, l := range lines {
		lineIDs = append(lineIDs, l.ID)
	}
	var modifiers []domain.Modifier
	if err := db.WithContext(ctx).Raw(
		`SELECT id, order_line_id, label, kind, price FROM order_line_modifiers
		WHERE order_line_id IN ? ORDER BY id ASC`,
		lineIDs,
	).Scan(&modifiers).Error; err != nil {
		return err
	}

	byLine := make(map[snowflake.ID][]domain.Modifier, len(lines))
	for _, m := range modifiers {
		byLine[m.OrderLineID] = append(byLine[m.OrderLineID], m)
	}
	byOrder := make(map[snowflake.ID][]domain.Line, len(orders))
	for _, l := range lines {
		l.Modifiers = byLine[l.ID]
		byOrder[l.OrderID] = append(byOrder[l.OrderID], l)
	}
	for i := range orders {
		orders[i].Lines = byOrder[orders[i].ID]
	}
	return nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status domain.Status, deliveredAt *time.Time, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = ?, delivered_at = COALESCE(delivered_at, ?) WHERE id = ?`,
		status, at, deliveredAt, orderID,
	).Error
}

func (r *repo) UpdateStatusOnly(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status domain.Status, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, at, orderID,
	).Error
}

// MarkSessionPaid returns the ids it changed.
func (r *repo) MarkSessionPaid(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, settledAt *time.Time, at time.Time) ([]snowflake.ID, error) {
	query := `SELECT id FROM orders WHERE session_id = ? AND is_paid = ? AND status <> ?`
	args := []any{sessionID, false, domain.StatusCancelled}
	if settledAt != nil {
		query += ` AND created_at <= ?`
		args = append(args, settledAt.UTC())
	}

	var ids []snowflake.ID
	if err := db.WithContext(ctx).Raw(query+` ORDER BY id`, args...).Scan(&ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := db.WithContext(ctx).Exec(
		`UPDATE orders SET is_paid = ?, updated_at = ? WHERE id IN ?`,
		true, at, ids,
	).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
