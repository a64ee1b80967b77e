package service

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/apperror"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/erp-workflow/internal/domain/workflow"
)

// QueryService answers the approver-facing read queries
type QueryService interface {
	// PendingForUser lists the PENDING instances assigned to the user
	PendingForUser(ctx context.Context, companyID, userID int64) ([]*entity.PendingApproval, error)

	// Review returns everything needed to decide on an instance
	Review(ctx context.Context, companyID, instanceID int64) (*entity.ApprovalReview, error)

	// ExportHistory writes the instance's audit history as a report
	ExportHistory(ctx context.Context, companyID, instanceID int64, w io.Writer) error

	// HistoryContentType is the MIME type written by ExportHistory
	HistoryContentType() string
}

type queryServiceImpl struct {
	instances   port.InstanceRepository
	definitions port.DefinitionRepository
	logs        port.WorkflowLogRepository
	documents   port.DocumentStore
	exporter    port.HistoryExporter
	logger      Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(
	instances port.InstanceRepository,
	definitions port.DefinitionRepository,
	logs port.WorkflowLogRepository,
	documents port.DocumentStore,
	exporter port.HistoryExporter,
	logger Logger,
) QueryService {
	return &queryServiceImpl{
		instances:   instances,
		definitions: definitions,
		logs:        logs,
		documents:   documents,
		exporter:    exporter,
		logger:      logger,
	}
}

func (s *queryServiceImpl) PendingForUser(ctx context.Context, companyID, userID int64) ([]*entity.PendingApproval, error) {
	pending, err := s.instances.ListPendingForUser(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		pending = []*entity.PendingApproval{}
	}
	return pending, nil
}

func (s *queryServiceImpl) Review(ctx context.Context, companyID, instanceID int64) (*entity.ApprovalReview, error) {
	inst, err := s.instances.GetByID(ctx, companyID, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperror.NotFound("workflow instance", instanceID)
	}

	var (
		def  *entity.WorkflowDefinition
		doc  *entity.DocumentSnapshot
		logs []*entity.WorkflowLog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		def, err = s.definitions.GetByID(gctx, companyID, inst.DefinitionID)
		return err
	})
	g.Go(func() error {
		var err error
		doc, err = s.documents.Load(gctx, companyID, inst.DocumentType, inst.DocumentID)
		return err
	})
	g.Go(func() error {
		var err error
		logs, err = s.logs.ListByInstance(gctx, inst.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to load approval review", "instance_id", instanceID, "error", err)
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("workflow definition %d of instance %d is missing", inst.DefinitionID, inst.ID)
	}

	review := &entity.ApprovalReview{
		Instance:          inst,
		DefinitionName:    def.Name,
		Document:          doc,
		IsLastStep:        inst.CurrentStepOrder >= def.LastStepOrder(),
		NextStepApprovers: []*entity.User{},
		Logs:              logs,
	}
	if review.Logs == nil {
		review.Logs = []*entity.WorkflowLog{}
	}
	if step := def.StepByOrder(inst.CurrentStepOrder); step != nil {
		review.ApprovalLimit = step.ApprovalLimit
	}
	review.AllowedActions = allowedActions(ctx, inst.Status, review.IsLastStep)
	if !review.IsLastStep && !inst.IsTerminal() {
		if next := nextStep(def, inst.CurrentStepOrder); next != nil {
			for _, a := range next.Approvers {
				review.NextStepApprovers = append(review.NextStepApprovers, &entity.User{ID: a.UserID, Username: a.Username})
			}
		}
	}
	return review, nil
}

func (s *queryServiceImpl) ExportHistory(ctx context.Context, companyID, instanceID int64, w io.Writer) error {
	review, err := s.Review(ctx, companyID, instanceID)
	if err != nil {
		return err
	}
	if err := s.exporter.Export(ctx, w, review); err != nil {
		s.logger.Error("Failed to export workflow history", "instance_id", instanceID, "error", err)
		return fmt.Errorf("export history: %w", err)
	}
	return nil
}

func (s *queryServiceImpl) HistoryContentType() string {
	return s.exporter.ContentType()
}

func nextStep(def *entity.WorkflowDefinition, order int) *entity.WorkflowStep {
	var next *entity.WorkflowStep
	for _, st := range def.Steps {
		if st.StepOrder > order && (next == nil || st.StepOrder < next.StepOrder) {
			next = st
		}
	}
	return next
}

// allowedActions lists the actions the approval machine accepts for the instance.
// FORWARD is served by the delegate endpoint.
func allowedActions(ctx context.Context, status string, lastStep bool) []string {
	sm := domainwf.NewApprovalMachine(domainwf.State(status))
	triggers := sm.PermittedTriggers(domainwf.WithFinalStep(ctx, lastStep))
	actions := make([]string, 0, len(triggers))
	for _, t := range triggers {
		actions = append(actions, t.String())
	}
	return actions
}
