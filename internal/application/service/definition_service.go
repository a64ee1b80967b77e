package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/apperror"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/pkg/utils"
)

// DefinitionInput is the payload for creating or replacing a workflow definition
type DefinitionInput struct {
	Name            string      `json:"name" validate:"required,max=200"`
	DocumentType    string      `json:"document_type" validate:"required"`
	DocumentRoute   string      `json:"document_route"`
	MinAmount       *float64    `json:"min_amount" validate:"omitempty,gte=0"`
	MaxAmount       *float64    `json:"max_amount" validate:"omitempty,gte=0"`
	IsActive        *bool       `json:"is_active"`
	DefaultBehavior string      `json:"default_behavior" validate:"omitempty,oneof=BLOCK AUTO_APPROVE"`
	Priority        int         `json:"priority" validate:"gte=0"`
	Steps           []StepInput `json:"steps" validate:"required,min=1,dive"`
}

// StepInput is one step of a DefinitionInput. Steps are ordered by their position in the list.
type StepInput struct {
	Name          string   `json:"name" validate:"required,max=200"`
	IsMandatory   *bool    `json:"is_mandatory"`
	ApprovalLimit *float64 `json:"approval_limit" validate:"omitempty,gte=0"`
	Approvers     []int64  `json:"approvers" validate:"required,min=1,unique,dive,gt=0"`
}

// DefinitionService manages workflow definitions
type DefinitionService interface {
	Create(ctx context.Context, companyID int64, in DefinitionInput) (*entity.WorkflowDefinition, error)
	Update(ctx context.Context, companyID, id int64, in DefinitionInput) (*entity.WorkflowDefinition, error)
	Get(ctx context.Context, companyID, id int64) (*entity.WorkflowDefinition, error)
	List(ctx context.Context, companyID int64) ([]*entity.WorkflowDefinition, error)
}

type definitionServiceImpl struct {
	definitions port.DefinitionRepository
	instances   port.InstanceRepository
	users       port.UserDirectory
	txManager   port.TransactionManager
	validate    *validator.Validate
	logger      Logger
}

// NewDefinitionService creates a new DefinitionService
func NewDefinitionService(
	definitions port.DefinitionRepository,
	instances port.InstanceRepository,
	users port.UserDirectory,
	txManager port.TransactionManager,
	logger Logger,
) DefinitionService {
	return &definitionServiceImpl{
		definitions: definitions,
		instances:   instances,
		users:       users,
		txManager:   txManager,
		validate:    utils.NewValidator(),
		logger:      logger,
	}
}

func (s *definitionServiceImpl) Create(ctx context.Context, companyID int64, in DefinitionInput) (*entity.WorkflowDefinition, error) {
	def, err := s.build(ctx, companyID, in)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		return s.definitions.Create(ctx, def)
	})
	if err != nil {
		s.logger.Error("Failed to create workflow definition", "company_id", companyID, "error", err)
		return nil, err
	}

	s.logger.Info("Workflow definition created",
		"company_id", companyID,
		"definition_id", def.ID,
		"document_type", def.DocumentType,
		"steps", len(def.Steps),
	)
	return s.Get(ctx, companyID, def.ID)
}

func (s *definitionServiceImpl) Update(ctx context.Context, companyID, id int64, in DefinitionInput) (*entity.WorkflowDefinition, error) {
	def, err := s.build(ctx, companyID, in)
	if err != nil {
		return nil, err
	}
	def.ID = id

	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.definitions.GetByID(ctx, companyID, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperror.NotFound("workflow definition", id)
		}
		// running instances address steps by order, so the step list is frozen while any are open
		pending, err := s.instances.CountPendingByDefinition(ctx, companyID, id)
		if err != nil {
			return err
		}
		if pending > 0 {
			return apperror.Conflict("workflow definition %d has %d pending instances", id, pending)
		}
		return s.definitions.Update(ctx, def)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Workflow definition updated", "company_id", companyID, "definition_id", id)
	return s.Get(ctx, companyID, id)
}

func (s *definitionServiceImpl) Get(ctx context.Context, companyID, id int64) (*entity.WorkflowDefinition, error) {
	def, err := s.definitions.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, apperror.NotFound("workflow definition", id)
	}
	return def, nil
}

func (s *definitionServiceImpl) List(ctx context.Context, companyID int64) ([]*entity.WorkflowDefinition, error) {
	return s.definitions.List(ctx, companyID)
}

// build validates the input and turns it into a definition with dense step orders
func (s *definitionServiceImpl) build(ctx context.Context, companyID int64, in DefinitionInput) (*entity.WorkflowDefinition, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperror.Validation("%s", utils.ValidationMessage(err))
	}

	kind, err := entity.ParseDocumentKind(in.DocumentType)
	if err != nil {
		return nil, apperror.Validation("%v", err)
	}
	if in.MinAmount != nil && in.MaxAmount != nil && *in.MinAmount > *in.MaxAmount {
		return nil, apperror.Validation("min_amount %.2f is greater than max_amount %.2f", *in.MinAmount, *in.MaxAmount)
	}

	route := ""
	if strings.TrimSpace(in.DocumentRoute) != "" {
		routeKind, ok := entity.KindForRoute(in.DocumentRoute)
		if !ok || routeKind != kind {
			return nil, apperror.Validation("document_route %q does not serve %s", in.DocumentRoute, kind.Label())
		}
		route = kind.Route()
	}

	if err := s.checkApprovers(ctx, companyID, in.Steps); err != nil {
		return nil, err
	}

	behavior := in.DefaultBehavior
	if behavior == "" {
		behavior = entity.DefaultBehaviorBlock
	}
	def := &entity.WorkflowDefinition{
		CompanyID:       companyID,
		Name:            in.Name,
		DocumentType:    kind,
		DocumentRoute:   route,
		MinAmount:       in.MinAmount,
		MaxAmount:       in.MaxAmount,
		IsActive:        boolOr(in.IsActive, true),
		DefaultBehavior: behavior,
		Priority:        in.Priority,
	}
	for i, st := range in.Steps {
		step := &entity.WorkflowStep{
			StepOrder:     i + 1,
			Name:          strings.TrimSpace(st.Name),
			IsMandatory:   boolOr(st.IsMandatory, true),
			ApprovalLimit: st.ApprovalLimit,
		}
		for pos, userID := range st.Approvers {
			step.Approvers = append(step.Approvers, &entity.StepApprover{UserID: userID, Position: pos})
		}
		def.Steps = append(def.Steps, step)
	}
	return def, nil
}

// checkApprovers rejects approvers unknown to the company's user directory
func (s *definitionServiceImpl) checkApprovers(ctx context.Context, companyID int64, steps []StepInput) error {
	seen := make(map[int64]bool)
	var ids []int64
	for _, st := range steps {
		for _, id := range st.Approvers {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	users, err := s.users.GetByIDs(ctx, companyID, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return apperror.Validation("approver user %d does not exist", id)
		}
	}
	return nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
