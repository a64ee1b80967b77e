package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

const instanceColumns = `
	dw.id, dw.company_id, dw.definition_id, dw.document_type, dw.document_id, dw.amount,
	dw.current_step_order, dw.status, dw.assigned_to, dw.submitted_by, dw.version,
	dw.created_at, dw.updated_at, dw.completed_at`

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new document workflow repository
func NewInstanceRepository(db *sqldb.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new document workflow instance at version 1
func (r *InstanceRepository) Create(ctx context.Context, inst *entity.DocumentWorkflow) error {
	ts := now()
	inst.CreatedAt = ts
	inst.UpdatedAt = ts
	inst.Version = 1

	err := r.db.QueryRow(ctx, `
		INSERT INTO document_workflows (
			company_id, definition_id, document_type, document_id, amount,
			current_step_order, status, assigned_to, submitted_by, version,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		inst.CompanyID,
		inst.DefinitionID,
		string(inst.DocumentType),
		inst.DocumentID,
		nullFloat(inst.Amount),
		inst.CurrentStepOrder,
		inst.Status,
		inst.AssignedTo,
		inst.SubmittedBy,
		inst.Version,
		inst.CreatedAt,
		inst.UpdatedAt,
		nullTime(inst.CompletedAt),
	).Scan(&inst.ID)
	if err != nil {
		r.logger.Error("Failed to create workflow instance",
			zap.String("document_type", string(inst.DocumentType)),
			zap.Int64("document_id", inst.DocumentID),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}
	return nil
}

// GetByID retrieves an instance by ID, nil if absent in the company
func (r *InstanceRepository) GetByID(ctx context.Context, companyID, id int64) (*entity.DocumentWorkflow, error) {
	return r.getOne(ctx, `SELECT `+instanceColumns+`
		FROM document_workflows dw
		WHERE dw.id = ? AND dw.company_id = ?`, companyID, id)
}

// GetForUpdate retrieves an instance and locks its row until the transaction ends
func (r *InstanceRepository) GetForUpdate(ctx context.Context, companyID, id int64) (*entity.DocumentWorkflow, error) {
	if !sqldb.InTransaction(ctx) {
		return nil, fmt.Errorf("GetForUpdate requires a transaction")
	}
	return r.getOne(ctx, `SELECT `+instanceColumns+`
		FROM document_workflows dw
		WHERE dw.id = ? AND dw.company_id = ?`+r.db.ForUpdate(), companyID, id)
}

func (r *InstanceRepository) getOne(ctx context.Context, query string, companyID, id int64) (*entity.DocumentWorkflow, error) {
	inst, err := scanInstance(r.db.QueryRow(ctx, query, id, companyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow instance", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow instance: %w", err)
	}
	return inst, nil
}

// Update writes the mutable fields guarded by the optimistic version
func (r *InstanceRepository) Update(ctx context.Context, inst *entity.DocumentWorkflow) error {
	inst.UpdatedAt = now()

	result, err := r.db.Exec(ctx, `
		UPDATE document_workflows
		SET current_step_order = ?, status = ?, assigned_to = ?, completed_at = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND company_id = ? AND version = ?`,
		inst.CurrentStepOrder,
		inst.Status,
		inst.AssignedTo,
		nullTime(inst.CompletedAt),
		inst.UpdatedAt,
		inst.ID,
		inst.CompanyID,
		inst.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow instance", zap.Int64("id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow instance: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		r.logger.Warn("Stale workflow instance version",
			zap.Int64("id", inst.ID),
			zap.Int("version", inst.Version))
		return port.ErrStaleVersion
	}

	inst.Version++
	return nil
}

// FindPendingByDocument returns the document's PENDING instance, nil if none
func (r *InstanceRepository) FindPendingByDocument(ctx context.Context, companyID int64, kind entity.DocumentKind, documentID int64) (*entity.DocumentWorkflow, error) {
	inst, err := scanInstance(r.db.QueryRow(ctx, `SELECT `+instanceColumns+`
		FROM document_workflows dw
		WHERE dw.company_id = ? AND dw.document_type = ? AND dw.document_id = ? AND dw.status = ?
		ORDER BY dw.id DESC
		LIMIT 1`,
		companyID, string(kind), documentID, entity.InstanceStatusPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending workflow: %w", err)
	}
	return inst, nil
}

// CountPendingByDefinition counts the definition's PENDING instances
func (r *InstanceRepository) CountPendingByDefinition(ctx context.Context, companyID, definitionID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*)
		FROM document_workflows
		WHERE company_id = ? AND definition_id = ? AND status = ?`,
		companyID, definitionID, entity.InstanceStatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending workflows: %w", err)
	}
	return n, nil
}

// ListPendingForUser returns PENDING instances assigned to the user with
// the definition name and the document number of whichever module owns it
func (r *InstanceRepository) ListPendingForUser(ctx context.Context, companyID, userID int64) ([]*entity.PendingApproval, error) {
	rows, err := r.db.Query(ctx, `SELECT `+instanceColumns+`,
			wd.name,
			COALESCE(v.number, po.number, rq.number, so.number, '')
		FROM document_workflows dw
		JOIN workflow_definitions wd ON wd.id = dw.definition_id
		LEFT JOIN vouchers v
			ON dw.document_type IN ('PAYMENT_VOUCHER', 'RECEIPT_VOUCHER', 'JOURNAL_VOUCHER') AND v.id = dw.document_id
		LEFT JOIN purchase_orders po
			ON dw.document_type = 'PURCHASE_ORDER' AND po.id = dw.document_id
		LEFT JOIN requisitions rq
			ON dw.document_type = 'PURCHASE_REQUISITION' AND rq.id = dw.document_id
		LEFT JOIN sales_orders so
			ON dw.document_type = 'SALES_ORDER' AND so.id = dw.document_id
		WHERE dw.company_id = ? AND dw.assigned_to = ? AND dw.status = ?
		ORDER BY dw.created_at DESC, dw.id DESC`,
		companyID, userID, entity.InstanceStatusPending)
	if err != nil {
		r.logger.Error("Failed to list pending approvals", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	result := []*entity.PendingApproval{}
	for rows.Next() {
		var p entity.PendingApproval
		inst, err := scanInstance(rows, &p.DefinitionName, &p.DocumentNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending approval: %w", err)
		}
		p.Instance = inst
		result = append(result, &p)
	}
	return result, rows.Err()
}

func scanInstance(row rowScanner, extra ...interface{}) (*entity.DocumentWorkflow, error) {
	var inst entity.DocumentWorkflow
	var docType string
	var amount sql.NullFloat64
	var completedAt sql.NullTime

	dest := []interface{}{
		&inst.ID,
		&inst.CompanyID,
		&inst.DefinitionID,
		&docType,
		&inst.DocumentID,
		&amount,
		&inst.CurrentStepOrder,
		&inst.Status,
		&inst.AssignedTo,
		&inst.SubmittedBy,
		&inst.Version,
		&inst.CreatedAt,
		&inst.UpdatedAt,
		&completedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	inst.DocumentType = entity.DocumentKind(docType)
	inst.Amount = floatPtr(amount)
	inst.CompletedAt = timePtr(completedAt)
	return &inst, nil
}

var _ port.InstanceRepository = (*InstanceRepository)(nil)
