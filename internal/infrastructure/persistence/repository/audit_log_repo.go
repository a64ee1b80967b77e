package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// AuditLogRepository implements port.WorkflowLogRepository.
// The workflow_logs table is append-only: this type exposes no update or delete.
type AuditLogRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *sqldb.DB, logger *zap.Logger) port.WorkflowLogRepository {
	return &AuditLogRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts an audit entry
func (r *AuditLogRepository) Append(ctx context.Context, entry *entity.WorkflowLog) error {
	entry.CreatedAt = now()

	err := r.db.QueryRow(ctx, `
		INSERT INTO workflow_logs (instance_id, actor_id, step_order, action, comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		entry.InstanceID,
		entry.ActorID,
		entry.StepOrder,
		entry.Action,
		entry.Comments,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		r.logger.Error("Failed to append audit log",
			zap.Int64("instance_id", entry.InstanceID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// ListByInstance returns the audit trail in insertion order
func (r *AuditLogRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.WorkflowLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT l.id, l.instance_id, l.actor_id, COALESCE(u.username, ''), l.step_order,
			l.action, l.comments, l.created_at
		FROM workflow_logs l
		LEFT JOIN users u ON u.id = l.actor_id
		WHERE l.instance_id = ?
		ORDER BY l.id ASC`, instanceID)
	if err != nil {
		r.logger.Error("Failed to list audit log", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	defer rows.Close()

	logs := []*entity.WorkflowLog{}
	for rows.Next() {
		var l entity.WorkflowLog
		if err := rows.Scan(&l.ID, &l.InstanceID, &l.ActorID, &l.ActorUsername, &l.StepOrder,
			&l.Action, &l.Comments, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

var _ port.WorkflowLogRepository = (*AuditLogRepository)(nil)
