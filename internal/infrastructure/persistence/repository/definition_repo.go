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

const definitionColumns = `
	id, company_id, name, document_type, document_route, min_amount, max_amount,
	is_active, default_behavior, priority, created_at, updated_at`

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new workflow definition repository
func NewDefinitionRepository(db *sqldb.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the definition header, steps and approvers.
// Callers wrap it in a transaction so a partial definition is never visible.
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	ts := now()
	def.CreatedAt = ts
	def.UpdatedAt = ts

	err := r.db.QueryRow(ctx, `
		INSERT INTO workflow_definitions (
			company_id, name, document_type, document_route, min_amount, max_amount,
			is_active, default_behavior, priority, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		def.CompanyID,
		def.Name,
		string(def.DocumentType),
		nullString(def.DocumentRoute),
		nullFloat(def.MinAmount),
		nullFloat(def.MaxAmount),
		def.IsActive,
		def.DefaultBehavior,
		def.Priority,
		def.CreatedAt,
		def.UpdatedAt,
	).Scan(&def.ID)
	if err != nil {
		r.logger.Error("Failed to create workflow definition", zap.String("name", def.Name), zap.Error(err))
		return fmt.Errorf("failed to create workflow definition: %w", err)
	}

	return r.insertSteps(ctx, def)
}

// Update rewrites the header and replaces steps and approvers
func (r *DefinitionRepository) Update(ctx context.Context, def *entity.WorkflowDefinition) error {
	def.UpdatedAt = now()

	result, err := r.db.Exec(ctx, `
		UPDATE workflow_definitions
		SET name = ?, document_type = ?, document_route = ?, min_amount = ?, max_amount = ?,
			is_active = ?, default_behavior = ?, priority = ?, updated_at = ?
		WHERE id = ? AND company_id = ?`,
		def.Name,
		string(def.DocumentType),
		nullString(def.DocumentRoute),
		nullFloat(def.MinAmount),
		nullFloat(def.MaxAmount),
		def.IsActive,
		def.DefaultBehavior,
		def.Priority,
		def.UpdatedAt,
		def.ID,
		def.CompanyID,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow definition", zap.Int64("id", def.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow definition: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("workflow definition %d not found", def.ID)
	}

	if _, err := r.db.Exec(ctx, `
		DELETE FROM workflow_step_approvers
		WHERE step_id IN (SELECT id FROM workflow_steps WHERE definition_id = ?)`, def.ID); err != nil {
		return fmt.Errorf("failed to clear step approvers: %w", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM workflow_steps WHERE definition_id = ?`, def.ID); err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}

	return r.insertSteps(ctx, def)
}

func (r *DefinitionRepository) insertSteps(ctx context.Context, def *entity.WorkflowDefinition) error {
	for _, step := range def.Steps {
		step.DefinitionID = def.ID
		err := r.db.QueryRow(ctx, `
			INSERT INTO workflow_steps (definition_id, step_order, name, is_mandatory, approval_limit)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`,
			step.DefinitionID,
			step.StepOrder,
			step.Name,
			step.IsMandatory,
			nullFloat(step.ApprovalLimit),
		).Scan(&step.ID)
		if err != nil {
			r.logger.Error("Failed to create workflow step",
				zap.Int64("definition_id", def.ID),
				zap.Int("step_order", step.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create workflow step %d: %w", step.StepOrder, err)
		}

		for _, a := range step.Approvers {
			a.StepID = step.ID
			if _, err := r.db.Exec(ctx, `
				INSERT INTO workflow_step_approvers (step_id, user_id, position)
				VALUES (?, ?, ?)`,
				a.StepID, a.UserID, a.Position,
			); err != nil {
				return fmt.Errorf("failed to add approver %d to step %d: %w", a.UserID, step.StepOrder, err)
			}
		}
	}
	return nil
}

// GetByID retrieves a definition with its steps, nil if it does not exist in the company
func (r *DefinitionRepository) GetByID(ctx context.Context, companyID, id int64) (*entity.WorkflowDefinition, error) {
	row := r.db.QueryRow(ctx, `SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE id = ? AND company_id = ?`, id, companyID)

	def, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow definition", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}

	if err := r.loadSteps(ctx, []*entity.WorkflowDefinition{def}); err != nil {
		return nil, err
	}
	return def, nil
}

// List returns the company's definitions with steps
func (r *DefinitionRepository) List(ctx context.Context, companyID int64) ([]*entity.WorkflowDefinition, error) {
	defs, err := r.queryDefinitions(ctx, `SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE company_id = ?
		ORDER BY priority ASC, id ASC`, companyID)
	if err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// ListByRoute returns headers of definitions bound to route
func (r *DefinitionRepository) ListByRoute(ctx context.Context, companyID int64, route string) ([]*entity.WorkflowDefinition, error) {
	return r.queryDefinitions(ctx, `SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE company_id = ? AND document_route = ?
		ORDER BY priority ASC, id ASC`, companyID, route)
}

// ListByKind returns headers of definitions for the document kind
func (r *DefinitionRepository) ListByKind(ctx context.Context, companyID int64, kind entity.DocumentKind) ([]*entity.WorkflowDefinition, error) {
	return r.queryDefinitions(ctx, `SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE company_id = ? AND document_type = ?
		ORDER BY priority ASC, id ASC`, companyID, string(kind))
}

func (r *DefinitionRepository) queryDefinitions(ctx context.Context, query string, args ...interface{}) ([]*entity.WorkflowDefinition, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflow definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}
	defer rows.Close()

	var defs []*entity.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// loadSteps attaches steps and approvers to defs. Each result set is drained
// before the next query so the same transaction connection can be reused.
func (r *DefinitionRepository) loadSteps(ctx context.Context, defs []*entity.WorkflowDefinition) error {
	if len(defs) == 0 {
		return nil
	}

	byID := make(map[int64]*entity.WorkflowDefinition, len(defs))
	ids := make([]interface{}, 0, len(defs))
	for _, d := range defs {
		d.Steps = []*entity.WorkflowStep{}
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}

	steps, err := r.querySteps(ctx, ids)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}

	stepByID := make(map[int64]*entity.WorkflowStep, len(steps))
	stepIDs := make([]interface{}, 0, len(steps))
	for _, s := range steps {
		s.Approvers = []*entity.StepApprover{}
		stepByID[s.ID] = s
		stepIDs = append(stepIDs, s.ID)
		byID[s.DefinitionID].Steps = append(byID[s.DefinitionID].Steps, s)
	}

	rows, err := r.db.Query(ctx, `
		SELECT a.step_id, a.user_id, a.position, COALESCE(u.username, '')
		FROM workflow_step_approvers a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.step_id IN (`+placeholders(len(stepIDs))+`)
		ORDER BY a.step_id, a.position`, stepIDs...)
	if err != nil {
		return fmt.Errorf("failed to load step approvers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a entity.StepApprover
		if err := rows.Scan(&a.StepID, &a.UserID, &a.Position, &a.Username); err != nil {
			return fmt.Errorf("failed to scan step approver: %w", err)
		}
		stepByID[a.StepID].Approvers = append(stepByID[a.StepID].Approvers, &a)
	}
	return rows.Err()
}

func (r *DefinitionRepository) querySteps(ctx context.Context, definitionIDs []interface{}) ([]*entity.WorkflowStep, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, definition_id, step_order, name, is_mandatory, approval_limit
		FROM workflow_steps
		WHERE definition_id IN (`+placeholders(len(definitionIDs))+`)
		ORDER BY definition_id, step_order`, definitionIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.WorkflowStep
	for rows.Next() {
		var s entity.WorkflowStep
		var limit sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.DefinitionID, &s.StepOrder, &s.Name, &s.IsMandatory, &limit); err != nil {
			return nil, fmt.Errorf("failed to scan workflow step: %w", err)
		}
		s.ApprovalLimit = floatPtr(limit)
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDefinition(row rowScanner) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	var docType string
	var route sql.NullString
	var minAmount, maxAmount sql.NullFloat64

	err := row.Scan(
		&def.ID,
		&def.CompanyID,
		&def.Name,
		&docType,
		&route,
		&minAmount,
		&maxAmount,
		&def.IsActive,
		&def.DefaultBehavior,
		&def.Priority,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	def.DocumentType = entity.DocumentKind(docType)
	def.DocumentRoute = route.String
	def.MinAmount = floatPtr(minAmount)
	def.MaxAmount = floatPtr(maxAmount)
	return &def, nil
}

var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
