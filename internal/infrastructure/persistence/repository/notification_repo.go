package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqldb.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores an unread in-app notification
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	n.CreatedAt = now()
	n.IsRead = false

	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications (company_id, user_id, title, message, link, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		n.CompanyID,
		n.UserID,
		n.Title,
		n.Message,
		n.Link,
		n.IsRead,
		n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.Int64("user_id", n.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListForUser returns the user's notifications, newest first
func (r *NotificationRepository) ListForUser(ctx context.Context, companyID, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	query := `
		SELECT id, company_id, user_id, title, message, link, is_read, created_at
		FROM notifications
		WHERE company_id = ? AND user_id = ?`
	args := []interface{}{companyID, userID}
	if unreadOnly {
		query += ` AND is_read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	list := []*entity.Notification{}
	for rows.Next() {
		var n entity.Notification
		if err := rows.Scan(&n.ID, &n.CompanyID, &n.UserID, &n.Title, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}

// MarkRead flags a notification as read if it belongs to the user
func (r *NotificationRepository) MarkRead(ctx context.Context, companyID, userID, id int64) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = ?
		WHERE id = ? AND company_id = ? AND user_id = ?`,
		true, id, companyID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

var _ port.NotificationRepository = (*NotificationRepository)(nil)
