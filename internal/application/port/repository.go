package port

import (
	"context"
	"errors"

	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

// ErrStaleVersion is returned by InstanceRepository.Update when the row changed since it was read
var ErrStaleVersion = errors.New("instance was modified concurrently")

// DefinitionRepository defines persistence operations for WorkflowDefinition and its steps
type DefinitionRepository interface {
	// Create inserts the definition with its steps and approvers, filling generated IDs
	Create(ctx context.Context, def *entity.WorkflowDefinition) error

	// Update rewrites the definition header and replaces all steps and approvers
	Update(ctx context.Context, def *entity.WorkflowDefinition) error

	// GetByID loads a definition of the company with steps and approvers, nil if absent
	GetByID(ctx context.Context, companyID, id int64) (*entity.WorkflowDefinition, error)

	// List returns the company's definitions with steps, ordered by priority then id
	List(ctx context.Context, companyID int64) ([]*entity.WorkflowDefinition, error)

	// ListByRoute returns definition headers bound to route, ordered by priority then id
	ListByRoute(ctx context.Context, companyID int64, route string) ([]*entity.WorkflowDefinition, error)

	// ListByKind returns definition headers for the document kind, ordered by priority then id
	ListByKind(ctx context.Context, companyID int64, kind entity.DocumentKind) ([]*entity.WorkflowDefinition, error)
}

// InstanceRepository defines persistence operations for DocumentWorkflow
type InstanceRepository interface {
	Create(ctx context.Context, inst *entity.DocumentWorkflow) error
	GetByID(ctx context.Context, companyID, id int64) (*entity.DocumentWorkflow, error)

	// GetForUpdate reads the instance holding a row lock for the rest of the transaction
	GetForUpdate(ctx context.Context, companyID, id int64) (*entity.DocumentWorkflow, error)

	// Update writes step, status, assignee and completion time if the version still matches.
	// On success inst.Version is incremented; otherwise ErrStaleVersion is returned.
	Update(ctx context.Context, inst *entity.DocumentWorkflow) error

	// FindPendingByDocument returns the PENDING instance of a document, nil if none
	FindPendingByDocument(ctx context.Context, companyID int64, kind entity.DocumentKind, documentID int64) (*entity.DocumentWorkflow, error)

	// ListPendingForUser returns PENDING instances assigned to the user, newest first
	ListPendingForUser(ctx context.Context, companyID, userID int64) ([]*entity.PendingApproval, error)

	// CountPendingByDefinition counts PENDING instances running the definition
	CountPendingByDefinition(ctx context.Context, companyID, definitionID int64) (int, error)
}

// TaskRepository defines persistence operations for WorkflowTask
type TaskRepository interface {
	Create(ctx context.Context, task *entity.WorkflowTask) error
	ListByInstance(ctx context.Context, instanceID int64) ([]*entity.WorkflowTask, error)
}

// WorkflowLogRepository is the append-only audit trail. There is no update or delete.
type WorkflowLogRepository interface {
	Append(ctx context.Context, entry *entity.WorkflowLog) error

	// ListByInstance returns entries in insertion order with actor usernames resolved
	ListByInstance(ctx context.Context, instanceID int64) ([]*entity.WorkflowLog, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	ListForUser(ctx context.Context, companyID, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error)

	// MarkRead flags the notification as read; false if it does not belong to the user
	MarkRead(ctx context.Context, companyID, userID, id int64) (bool, error)
}

// UserDirectory reads the administration module's users
type UserDirectory interface {
	// GetByIDs returns the users of the company found among ids, keyed by id
	GetByIDs(ctx context.Context, companyID int64, ids []int64) (map[int64]*entity.User, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
