package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/erp-workflow/internal/application/dispatcher"
	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/apperror"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/domain/event"
	domainwf "github.com/garyjia/erp-workflow/internal/domain/workflow"
)

const (
	tracerName        = "github.com/garyjia/erp-workflow/internal/application/workflow"
	defaultLinkPrefix = "/administration/workflows/approvals/"
)

// Repositories groups the persistence ports the engine writes through
type Repositories struct {
	Definitions   port.DefinitionRepository
	Instances     port.InstanceRepository
	Tasks         port.TaskRepository
	Logs          port.WorkflowLogRepository
	Notifications port.NotificationRepository
	Documents     port.DocumentStore
}

type engineImpl struct {
	repos      Repositories
	txManager  port.TransactionManager
	selector   *Selector
	dispatcher dispatcher.Dispatcher
	metrics    port.WorkflowMetrics
	tracer     trace.Tracer
	logger     Logger

	linkPrefix  string
	asyncEvents bool
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher publishes committed transitions to observers
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithAsyncEvents runs observers in the background instead of before returning
func WithAsyncEvents(async bool) EngineOption {
	return func(e *engineImpl) {
		e.asyncEvents = async
	}
}

// WithMetrics records transition counts and latencies
func WithMetrics(m port.WorkflowMetrics) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithTracer overrides the global tracer
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *engineImpl) {
		e.tracer = t
	}
}

// WithLinkPrefix sets the path notifications link to; the instance id is appended
func WithLinkPrefix(prefix string) EngineOption {
	return func(e *engineImpl) {
		if prefix != "" {
			e.linkPrefix = prefix
		}
	}
}

// NewEngine creates a new workflow engine
func NewEngine(repos Repositories, txManager port.TransactionManager, logger Logger, opts ...EngineOption) Engine {
	e := &engineImpl{
		repos:      repos,
		txManager:  txManager,
		selector:   NewSelector(repos.Definitions, logger),
		metrics:    noopMetrics{},
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
		linkPrefix: defaultLinkPrefix,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit implements Engine
func (e *engineImpl) Submit(ctx context.Context, req SubmitRequest) (res *SubmitResult, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.Submit", trace.WithAttributes(
		attribute.Int64("company_id", req.CompanyID),
		attribute.String("document_type", string(req.Kind)),
		attribute.Int64("document_id", req.DocumentID),
	))
	started := time.Now()
	defer func() { e.finish(ctx, span, entity.ActionSubmit, started, err) }()

	if !req.Kind.IsValid() {
		return nil, apperror.Validation("unknown document type %q", req.Kind)
	}
	if req.DocumentID <= 0 {
		return nil, apperror.Validation("document id is required")
	}

	var evt *event.Event
	err = e.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		doc, err := e.repos.Documents.Load(ctx, req.CompanyID, req.Kind, req.DocumentID)
		if err != nil {
			return fmt.Errorf("load document: %w", err)
		}
		if doc == nil {
			return apperror.NotFound(req.Kind.Label(), req.DocumentID)
		}
		if doc.Status == entity.DocumentStatusApproved {
			return apperror.Conflict("%s %s is already approved", req.Kind.Label(), doc.Number)
		}

		pending, err := e.repos.Instances.FindPendingByDocument(ctx, req.CompanyID, req.Kind, req.DocumentID)
		if err != nil {
			return fmt.Errorf("check pending workflow: %w", err)
		}
		if pending != nil {
			return apperror.Conflict("%s %s already has a pending workflow", req.Kind.Label(), doc.Number)
		}

		amount := req.Amount
		if amount == nil {
			amount = doc.Amount
		}

		sel, err := e.selector.Select(ctx, SelectionRequest{
			CompanyID:  req.CompanyID,
			Kind:       req.Kind,
			Route:      req.Kind.Route(),
			Amount:     amount,
			WorkflowID: req.WorkflowID,
		})
		if err != nil {
			return err
		}
		e.metrics.RecordSelection(ctx, req.Kind, string(sel.Decision))

		switch sel.Decision {
		case DecisionAutoApprove:
			if err := e.repos.Documents.SetStatus(ctx, req.CompanyID, req.Kind, req.DocumentID, entity.DocumentStatusApproved); err != nil {
				return fmt.Errorf("auto-approve document: %w", err)
			}
			res = &SubmitResult{Status: entity.DocumentStatusApproved}
			evt = event.NewEvent(event.TypeDocumentAutoApproved, req.CompanyID, 0, nil).
				ForDocument(string(req.Kind), req.DocumentID, req.SubmittedBy).
				WithPayload("number", doc.Number)
			return nil

		case DecisionNone:
			if err := e.repos.Documents.SetStatus(ctx, req.CompanyID, req.Kind, req.DocumentID, entity.DocumentStatusSubmitted); err != nil {
				return fmt.Errorf("mark document submitted: %w", err)
			}
			res = &SubmitResult{Status: entity.DocumentStatusSubmitted}
			return nil
		}

		inst, err := e.openInstance(ctx, req, doc, amount, sel.Definition)
		if err != nil {
			return err
		}
		id := inst.ID
		res = &SubmitResult{InstanceID: &id, Status: inst.Status}
		evt = event.NewEvent(event.TypeInstanceSubmitted, req.CompanyID, inst.ID, map[string]interface{}{
			"definition_id": inst.DefinitionID,
			"assigned_to":   inst.AssignedTo,
		}).ForDocument(string(req.Kind), req.DocumentID, req.SubmittedBy)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Document submitted",
		"company_id", req.CompanyID,
		"document_type", req.Kind,
		"document_id", req.DocumentID,
		"status", res.Status,
	)
	e.publish(ctx, evt)
	return res, nil
}

// openInstance writes the instance, its first task, the SUBMIT audit row, the
// document status and the assignee's notification
func (e *engineImpl) openInstance(
	ctx context.Context,
	req SubmitRequest,
	doc *entity.DocumentSnapshot,
	amount *float64,
	def *entity.WorkflowDefinition,
) (*entity.DocumentWorkflow, error) {
	step := def.FirstStep()
	if step == nil {
		return nil, apperror.Validation("workflow definition %q has no steps", def.Name)
	}
	assignee, err := resolveAssignee(step, req.TargetUserID)
	if err != nil {
		return nil, err
	}

	sm := domainwf.NewApprovalMachine(domainwf.StateDraft)
	if err := sm.Fire(ctx, domainwf.TriggerSubmit); err != nil {
		return nil, fmt.Errorf("submit transition: %w", err)
	}

	inst := &entity.DocumentWorkflow{
		CompanyID:        req.CompanyID,
		DefinitionID:     def.ID,
		DocumentType:     req.Kind,
		DocumentID:       req.DocumentID,
		Amount:           amount,
		CurrentStepOrder: step.StepOrder,
		Status:           sm.State().String(),
		AssignedTo:       assignee,
		SubmittedBy:      req.SubmittedBy,
	}
	if err := e.repos.Instances.Create(ctx, inst); err != nil {
		return nil, err
	}
	if err := e.handOff(ctx, inst, doc, step, fmt.Sprintf("%s %s is awaiting your approval (%s)", doc.Kind.Label(), doc.Number, step.Name)); err != nil {
		return nil, err
	}
	if err := e.audit(ctx, inst.ID, req.SubmittedBy, step.StepOrder, entity.ActionSubmit, req.Comments); err != nil {
		return nil, err
	}
	if err := e.repos.Documents.SetStatus(ctx, req.CompanyID, req.Kind, req.DocumentID, entity.DocumentStatusSubmitted); err != nil {
		return nil, fmt.Errorf("mark document submitted: %w", err)
	}
	return inst, nil
}

// ProcessAction implements Engine
func (e *engineImpl) ProcessAction(ctx context.Context, req ActionRequest) (res *ActionResult, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.ProcessAction", trace.WithAttributes(
		attribute.Int64("company_id", req.CompanyID),
		attribute.Int64("instance_id", req.InstanceID),
		attribute.String("action", req.Action),
	))
	started := time.Now()
	defer func() { e.finish(ctx, span, req.Action, started, err) }()

	if !entity.IsDecisionAction(req.Action) {
		return nil, apperror.Validation("action must be one of APPROVE, REJECT, RETURN")
	}
	if entity.RequiresComment(req.Action) && strings.TrimSpace(req.Comments) == "" {
		return nil, apperror.Validation("comments are required for %s", req.Action)
	}
	trigger, _ := domainwf.ParseTrigger(req.Action)

	var evt *event.Event
	err = e.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		inst, def, step, err := e.lockForActor(ctx, req.CompanyID, req.InstanceID, req.ActorID)
		if err != nil {
			return err
		}

		actedStep := step.StepOrder
		final := actedStep >= def.LastStepOrder()
		if trigger == domainwf.TriggerApprove && final && step.ExceedsLimit(inst.Amount) {
			return apperror.BusinessRule("amount %.2f exceeds the approval limit %.2f of step %q",
				*inst.Amount, *step.ApprovalLimit, step.Name)
		}

		sm := domainwf.NewApprovalMachine(domainwf.State(inst.Status))
		if err := sm.Fire(domainwf.WithFinalStep(ctx, final), trigger); err != nil {
			return apperror.Conflict("cannot %s workflow instance %d: %v", strings.ToLower(req.Action), inst.ID, err)
		}
		next := sm.State()

		doc, err := e.repos.Documents.Load(ctx, inst.CompanyID, inst.DocumentType, inst.DocumentID)
		if err != nil {
			return fmt.Errorf("load document: %w", err)
		}
		if doc == nil {
			return fmt.Errorf("document %s %d of instance %d is missing", inst.DocumentType, inst.DocumentID, inst.ID)
		}

		var nextStep *entity.WorkflowStep
		if next == domainwf.StatePending {
			nextStep = stepAfter(def, actedStep)
			if nextStep == nil {
				return fmt.Errorf("workflow definition %d has no step after %d", def.ID, actedStep)
			}
			assignee, err := resolveAssignee(nextStep, req.TargetUserID)
			if err != nil {
				return err
			}
			inst.CurrentStepOrder = nextStep.StepOrder
			inst.AssignedTo = assignee
		} else {
			inst.Status = next.String()
			completed := time.Now().UTC()
			inst.CompletedAt = &completed
		}

		if err := e.updateInstance(ctx, inst); err != nil {
			return err
		}
		if err := e.audit(ctx, inst.ID, req.ActorID, actedStep, req.Action, req.Comments); err != nil {
			return err
		}

		if nextStep != nil {
			msg := fmt.Sprintf("%s %s is awaiting your approval (%s)", doc.Kind.Label(), doc.Number, nextStep.Name)
			if err := e.handOff(ctx, inst, doc, nextStep, msg); err != nil {
				return err
			}
		} else if err := e.repos.Documents.SetStatus(ctx, inst.CompanyID, inst.DocumentType, inst.DocumentID, documentStatusFor(next)); err != nil {
			return fmt.Errorf("update document status: %w", err)
		}

		res = resultOf(inst)
		evt = event.NewEvent(eventTypeFor(next), inst.CompanyID, inst.ID, map[string]interface{}{
			"step_order":   actedStep,
			"comments":     req.Comments,
			"submitted_by": inst.SubmittedBy,
			"number":       doc.Number,
		}).ForDocument(string(inst.DocumentType), inst.DocumentID, req.ActorID)
		if nextStep != nil {
			evt = evt.WithPayload("assigned_to", inst.AssignedTo)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Workflow action processed",
		"instance_id", res.InstanceID,
		"action", req.Action,
		"actor_id", req.ActorID,
		"status", res.Status,
		"step_order", res.CurrentStepOrder,
	)
	e.publish(ctx, evt)
	return res, nil
}

// Delegate implements Engine
func (e *engineImpl) Delegate(ctx context.Context, req DelegateRequest) (res *ActionResult, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.Delegate", trace.WithAttributes(
		attribute.Int64("company_id", req.CompanyID),
		attribute.Int64("instance_id", req.InstanceID),
		attribute.Int64("target_user_id", req.TargetUserID),
	))
	started := time.Now()
	defer func() { e.finish(ctx, span, entity.ActionForward, started, err) }()

	if req.TargetUserID <= 0 {
		return nil, apperror.Validation("target_user_id is required")
	}

	var evt *event.Event
	err = e.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		inst, _, step, err := e.lockForActor(ctx, req.CompanyID, req.InstanceID, req.ActorID)
		if err != nil {
			return err
		}
		if req.TargetUserID == inst.AssignedTo {
			return apperror.Validation("workflow instance %d is already assigned to user %d", inst.ID, req.TargetUserID)
		}
		if !step.HasApprover(req.TargetUserID) {
			return apperror.BusinessRule("user %d is not an approver of step %q", req.TargetUserID, step.Name)
		}

		sm := domainwf.NewApprovalMachine(domainwf.State(inst.Status))
		if err := sm.Fire(ctx, domainwf.TriggerForward); err != nil {
			return apperror.Conflict("cannot delegate workflow instance %d: %v", inst.ID, err)
		}

		doc, err := e.repos.Documents.Load(ctx, inst.CompanyID, inst.DocumentType, inst.DocumentID)
		if err != nil {
			return fmt.Errorf("load document: %w", err)
		}
		if doc == nil {
			return fmt.Errorf("document %s %d of instance %d is missing", inst.DocumentType, inst.DocumentID, inst.ID)
		}

		previous := inst.AssignedTo
		inst.AssignedTo = req.TargetUserID
		if err := e.updateInstance(ctx, inst); err != nil {
			return err
		}
		if err := e.audit(ctx, inst.ID, req.ActorID, step.StepOrder, entity.ActionForward, req.Comments); err != nil {
			return err
		}
		msg := fmt.Sprintf("%s %s was delegated to you (%s)", doc.Kind.Label(), doc.Number, step.Name)
		if err := e.handOff(ctx, inst, doc, step, msg); err != nil {
			return err
		}

		res = resultOf(inst)
		evt = event.NewEvent(event.TypeInstanceForwarded, inst.CompanyID, inst.ID, map[string]interface{}{
			"step_order": step.StepOrder,
			"from":       previous,
			"to":         req.TargetUserID,
		}).ForDocument(string(inst.DocumentType), inst.DocumentID, req.ActorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Workflow step delegated",
		"instance_id", res.InstanceID,
		"actor_id", req.ActorID,
		"assigned_to", res.AssignedTo,
	)
	e.publish(ctx, evt)
	return res, nil
}

// lockForActor loads and locks a PENDING instance and checks the actor may act on its current step
func (e *engineImpl) lockForActor(ctx context.Context, companyID, instanceID, actorID int64) (*entity.DocumentWorkflow, *entity.WorkflowDefinition, *entity.WorkflowStep, error) {
	inst, err := e.repos.Instances.GetForUpdate(ctx, companyID, instanceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load workflow instance: %w", err)
	}
	if inst == nil {
		return nil, nil, nil, apperror.NotFound("workflow instance", instanceID)
	}
	if inst.IsTerminal() {
		return nil, nil, nil, apperror.Conflict("workflow instance %d is already %s", inst.ID, inst.Status)
	}

	def, err := e.repos.Definitions.GetByID(ctx, companyID, inst.DefinitionID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load workflow definition: %w", err)
	}
	if def == nil {
		return nil, nil, nil, fmt.Errorf("workflow definition %d of instance %d is missing", inst.DefinitionID, inst.ID)
	}
	step := def.StepByOrder(inst.CurrentStepOrder)
	if step == nil {
		return nil, nil, nil, apperror.Conflict("workflow definition %d no longer has step %d of instance %d", def.ID, inst.CurrentStepOrder, inst.ID)
	}

	if actorID != inst.AssignedTo && !step.HasApprover(actorID) {
		return nil, nil, nil, apperror.Conflict("user %d is not an approver of the current step of workflow instance %d", actorID, inst.ID)
	}
	return inst, def, step, nil
}

func (e *engineImpl) updateInstance(ctx context.Context, inst *entity.DocumentWorkflow) error {
	err := e.repos.Instances.Update(ctx, inst)
	if errors.Is(err, port.ErrStaleVersion) {
		return apperror.Conflict("workflow instance %d was modified concurrently", inst.ID)
	}
	return err
}

// handOff records the task for the instance's current assignee and notifies them
func (e *engineImpl) handOff(ctx context.Context, inst *entity.DocumentWorkflow, doc *entity.DocumentSnapshot, step *entity.WorkflowStep, message string) error {
	if err := e.repos.Tasks.Create(ctx, &entity.WorkflowTask{
		InstanceID: inst.ID,
		StepOrder:  step.StepOrder,
		AssignedTo: inst.AssignedTo,
	}); err != nil {
		return err
	}
	return e.repos.Notifications.Create(ctx, &entity.Notification{
		CompanyID: inst.CompanyID,
		UserID:    inst.AssignedTo,
		Title:     "Approval required: " + doc.Kind.Label(),
		Message:   message,
		Link:      fmt.Sprintf("%s%d", e.linkPrefix, inst.ID),
	})
}

func (e *engineImpl) audit(ctx context.Context, instanceID, actorID int64, stepOrder int, action, comments string) error {
	return e.repos.Logs.Append(ctx, &entity.WorkflowLog{
		InstanceID: instanceID,
		ActorID:    actorID,
		StepOrder:  stepOrder,
		Action:     action,
		Comments:   strings.TrimSpace(comments),
	})
}

func (e *engineImpl) publish(ctx context.Context, evt *event.Event) {
	if e.dispatcher == nil || evt == nil {
		return
	}
	if e.asyncEvents {
		e.dispatcher.DispatchAsync(ctx, evt)
		return
	}
	if err := e.dispatcher.Dispatch(ctx, evt); err != nil {
		// The transition is committed; observers cannot undo it.
		e.logger.Error("Workflow observer failed", "event_type", evt.Type, "instance_id", evt.InstanceID, "error", err)
	}
}

func (e *engineImpl) finish(ctx context.Context, span trace.Span, action string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(apperror.CodeOf(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.PublicMessage(err))
		if apperror.CodeOf(err) == apperror.CodeInternal {
			e.logger.Error("Workflow operation failed", "action", action, "error", err)
		}
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	span.End()
	e.metrics.RecordTransition(ctx, action, outcome, time.Since(started))
}

// resolveAssignee returns target when it belongs to the step, the primary approver otherwise
func resolveAssignee(step *entity.WorkflowStep, target *int64) (int64, error) {
	if len(step.Approvers) == 0 {
		return 0, apperror.Validation("step %q has no approvers", step.Name)
	}
	if target != nil {
		if !step.HasApprover(*target) {
			return 0, apperror.BusinessRule("user %d is not an approver of step %q", *target, step.Name)
		}
		return *target, nil
	}
	return step.PrimaryApprover(), nil
}

// stepAfter returns the step with the smallest order greater than order
func stepAfter(def *entity.WorkflowDefinition, order int) *entity.WorkflowStep {
	var next *entity.WorkflowStep
	for _, s := range def.Steps {
		if s.StepOrder > order && (next == nil || s.StepOrder < next.StepOrder) {
			next = s
		}
	}
	return next
}

func documentStatusFor(s domainwf.State) string {
	switch s {
	case domainwf.StateApproved:
		return entity.DocumentStatusApproved
	case domainwf.StateRejected:
		return entity.DocumentStatusRejected
	case domainwf.StateReturned:
		return entity.DocumentStatusReturned
	default:
		return entity.DocumentStatusSubmitted
	}
}

func eventTypeFor(s domainwf.State) event.Type {
	switch s {
	case domainwf.StateApproved:
		return event.TypeInstanceApproved
	case domainwf.StateRejected:
		return event.TypeInstanceRejected
	case domainwf.StateReturned:
		return event.TypeInstanceReturned
	default:
		return event.TypeInstanceAdvanced
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordTransition(context.Context, string, string, time.Duration) {}
func (noopMetrics) RecordSelection(context.Context, entity.DocumentKind, string)    {}
