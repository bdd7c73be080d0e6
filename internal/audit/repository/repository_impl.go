package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/tabledesk/internal/audit/domain"
	"gorm.io/gorm"
)

const auditColumns = `id, restaurant_id, actor_type, actor_id, action, target_type, target_id,
	metadata, ip_address, user_agent, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, row *domain.AuditLog) error {
	if row == nil {
		return nil
	}
	args := []any{
		row.ID, row.RestaurantID, row.ActorType, row.ActorID, row.Action, row.TargetType,
		row.TargetID, row.Metadata, row.IPAddress, row.UserAgent, row.CreatedAt,
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (`+auditColumns+`) VALUES (`+placeholders+`)`,
		args...,
	).Error
}

// List returns newest first.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.AuditLog, error) {
	where := []string{"restaurant_id = ?"}
	args := []any{filter.RestaurantID}
	for column, value := range map[string]string{
		"action":      filter.Action,
		"target_type": filter.TargetType,
		"target_id":   filter.TargetID,
	} {
		if value = strings.TrimSpace(value); value != "" {
			where = append(where, column+" = ?")
			args = append(args, value)
		}
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var rows []domain.AuditLog
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
