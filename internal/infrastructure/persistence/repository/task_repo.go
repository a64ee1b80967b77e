package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// TaskRepository implements port.TaskRepository
type TaskRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new workflow task repository
func NewTaskRepository(db *sqldb.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a hand-off of a step to an assignee
func (r *TaskRepository) Create(ctx context.Context, task *entity.WorkflowTask) error {
	task.CreatedAt = now()

	err := r.db.QueryRow(ctx, `
		INSERT INTO workflow_tasks (instance_id, step_order, assigned_to, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		task.InstanceID,
		task.StepOrder,
		task.AssignedTo,
		task.CreatedAt,
	).Scan(&task.ID)
	if err != nil {
		r.logger.Error("Failed to create workflow task",
			zap.Int64("instance_id", task.InstanceID),
			zap.Int("step_order", task.StepOrder),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow task: %w", err)
	}
	return nil
}

// ListByInstance returns the hand-offs of an instance in creation order
func (r *TaskRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.WorkflowTask, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, instance_id, step_order, assigned_to, created_at
		FROM workflow_tasks
		WHERE instance_id = ?
		ORDER BY id ASC`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*entity.WorkflowTask{}
	for rows.Next() {
		var t entity.WorkflowTask
		if err := rows.Scan(&t.ID, &t.InstanceID, &t.StepOrder, &t.AssignedTo, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

var _ port.TaskRepository = (*TaskRepository)(nil)
