package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/garyjia/erp-workflow/internal/application/dispatcher"
	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/apperror"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/domain/event"
	"github.com/garyjia/erp-workflow/internal/infrastructure/documents"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/erp-workflow/internal/testutil"
	"github.com/garyjia/erp-workflow/pkg/utils"
)

const (
	company   = int64(1)
	submitter = int64(3)
	user7     = int64(7)
	user8     = int64(8)
	user9     = int64(9)
)

type fixture struct {
	db     *sqldb.DB
	repos  Repositories
	engine Engine
	events *recordingDispatcher
}

// recordingDispatcher captures published events
type recordingDispatcher struct {
	dispatcher.Dispatcher
	mu     sync.Mutex
	events []*event.Event
}

func (r *recordingDispatcher) Dispatch(_ context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingDispatcher) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	logger := zap.NewNop()

	router, err := documents.NewRouter(documents.NewDefaultSinks(db, logger)...)
	require.NoError(t, err)

	repos := Repositories{
		Definitions:   repository.NewDefinitionRepository(db, logger),
		Instances:     repository.NewInstanceRepository(db, logger),
		Tasks:         repository.NewTaskRepository(db, logger),
		Logs:          repository.NewAuditLogRepository(db, logger),
		Notifications: repository.NewNotificationRepository(db, logger),
		Documents:     router,
	}
	events := &recordingDispatcher{}
	return &fixture{
		db:     db,
		repos:  repos,
		events: events,
		engine: NewEngine(repos, db, utils.NewKVLogger(logger), WithDispatcher(events)),
	}
}

type stepSpec struct {
	approvers []int64
	limit     *float64
}

func (f *fixture) define(t *testing.T, name string, kind entity.DocumentKind, active bool, steps ...stepSpec) *entity.WorkflowDefinition {
	t.Helper()
	def := &entity.WorkflowDefinition{
		CompanyID:       company,
		Name:            name,
		DocumentType:    kind,
		IsActive:        active,
		DefaultBehavior: entity.DefaultBehaviorBlock,
	}
	for i, s := range steps {
		step := &entity.WorkflowStep{StepOrder: i + 1, Name: name + " step", IsMandatory: true, ApprovalLimit: s.limit}
		for pos, a := range s.approvers {
			step.Approvers = append(step.Approvers, &entity.StepApprover{UserID: a, Position: pos})
		}
		def.Steps = append(def.Steps, step)
	}
	require.NoError(t, f.repos.Definitions.Create(context.Background(), def))
	return def
}

func (f *fixture) submit(t *testing.T, kind entity.DocumentKind, amount float64) (int64, *SubmitResult) {
	t.Helper()
	docID := testutil.InsertDocument(t, f.db, kind, company, "DOC-1", testutil.Ptr(amount))
	res, err := f.engine.Submit(context.Background(), SubmitRequest{
		CompanyID:   company,
		Kind:        kind,
		DocumentID:  docID,
		SubmittedBy: submitter,
	})
	require.NoError(t, err)
	return docID, res
}

func (f *fixture) act(instanceID, actor int64, action, comments string) (*ActionResult, error) {
	return f.engine.ProcessAction(context.Background(), ActionRequest{
		CompanyID:  company,
		InstanceID: instanceID,
		ActorID:    actor,
		Action:     action,
		Comments:   comments,
	})
}

func (f *fixture) logs(t *testing.T, instanceID int64) []*entity.WorkflowLog {
	t.Helper()
	logs, err := f.repos.Logs.ListByInstance(context.Background(), instanceID)
	require.NoError(t, err)
	return logs
}

func (f *fixture) instance(t *testing.T, id int64) *entity.DocumentWorkflow {
	t.Helper()
	inst, err := f.repos.Instances.GetByID(context.Background(), company, id)
	require.NoError(t, err)
	require.NotNil(t, inst)
	return inst
}

func (f *fixture) notificationsFor(t *testing.T, user int64) []*entity.Notification {
	t.Helper()
	list, err := f.repos.Notifications.ListForUser(context.Background(), company, user, false, 100)
	require.NoError(t, err)
	return list
}

func actions(logs []*entity.WorkflowLog) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Action
	}
	return out
}

func TestScenarioA_SingleStepApproval(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV Approval", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7}, limit: testutil.Ptr(5000.0)})

	docID, res := f.submit(t, entity.KindPaymentVoucher, 4000)
	require.NotNil(t, res.InstanceID)
	assert.Equal(t, entity.InstanceStatusPending, res.Status)

	inst := f.instance(t, *res.InstanceID)
	assert.Equal(t, 1, inst.CurrentStepOrder)
	assert.Equal(t, user7, inst.AssignedTo)
	assert.Equal(t, entity.DocumentStatusSubmitted, testutil.DocumentStatus(t, f.db, entity.KindPaymentVoucher, docID))

	notes := f.notificationsFor(t, user7)
	require.Len(t, notes, 1)
	assert.Equal(t, "/administration/workflows/approvals/"+itoa(inst.ID), notes[0].Link)

	out, err := f.act(inst.ID, user7, entity.ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusApproved, out.Status)

	assert.Equal(t, entity.DocumentStatusApproved, testutil.DocumentStatus(t, f.db, entity.KindPaymentVoucher, docID))
	assert.Equal(t, []string{entity.ActionSubmit, entity.ActionApprove}, actions(f.logs(t, inst.ID)))
	assert.NotNil(t, f.instance(t, inst.ID).CompletedAt)
	assert.Equal(t, []event.Type{event.TypeInstanceSubmitted, event.TypeInstanceApproved}, f.events.types())
}

func TestScenarioB_FinalApprovalOverLimit(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV Approval", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7}, limit: testutil.Ptr(5000.0)})

	docID, res := f.submit(t, entity.KindPaymentVoucher, 6000)

	_, err := f.act(*res.InstanceID, user7, entity.ActionApprove, "")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeBusinessRule, apperror.CodeOf(err))

	inst := f.instance(t, *res.InstanceID)
	assert.Equal(t, entity.InstanceStatusPending, inst.Status)
	assert.Equal(t, 1, inst.Version)
	assert.Len(t, f.logs(t, inst.ID), 1)
	assert.Equal(t, entity.DocumentStatusSubmitted, testutil.DocumentStatus(t, f.db, entity.KindPaymentVoucher, docID))
}

func TestScenarioC_TwoStepApproval(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PO two step", entity.KindPurchaseOrder, true,
		stepSpec{approvers: []int64{user7}},
		stepSpec{approvers: []int64{user9}},
	)

	docID, res := f.submit(t, entity.KindPurchaseOrder, 100)
	id := *res.InstanceID
	assert.Equal(t, user7, f.instance(t, id).AssignedTo)

	out, err := f.act(id, user7, entity.ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusPending, out.Status)
	assert.Equal(t, 2, out.CurrentStepOrder)
	assert.Equal(t, user9, out.AssignedTo)
	assert.Len(t, f.logs(t, id), 2)
	assert.Len(t, f.notificationsFor(t, user9), 1)

	out, err = f.act(id, user9, entity.ActionApprove, "ok")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusApproved, out.Status)

	logs := f.logs(t, id)
	assert.Equal(t, []string{entity.ActionSubmit, entity.ActionApprove, entity.ActionApprove}, actions(logs))
	assert.Equal(t, []int{1, 1, 2}, []int{logs[0].StepOrder, logs[1].StepOrder, logs[2].StepOrder})
	assert.Equal(t, entity.DocumentStatusApproved, testutil.DocumentStatus(t, f.db, entity.KindPurchaseOrder, docID))

	tasks, err := f.repos.Tasks.ListByInstance(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, user9, tasks[1].AssignedTo)

	// the hand-off event names the next assignee, the final approval does not
	require.Len(t, f.events.events, 3)
	assert.Equal(t, user9, f.events.events[1].GetPayloadInt("assigned_to"))
	assert.NotContains(t, f.events.events[2].Payload, "assigned_to")
}

func TestScenarioD_RejectAtFirstStep(t *testing.T) {
	f := newFixture(t)
	f.define(t, "SO two step", entity.KindSalesOrder, true,
		stepSpec{approvers: []int64{user7}},
		stepSpec{approvers: []int64{user9}},
	)

	docID, res := f.submit(t, entity.KindSalesOrder, 100)

	out, err := f.act(*res.InstanceID, user7, entity.ActionReject, "insufficient funds")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusRejected, out.Status)

	logs := f.logs(t, *res.InstanceID)
	require.Len(t, logs, 2)
	assert.Equal(t, "insufficient funds", logs[1].Comments)
	assert.Equal(t, entity.DocumentStatusRejected, testutil.DocumentStatus(t, f.db, entity.KindSalesOrder, docID))
	assert.Empty(t, f.notificationsFor(t, user9))
}

func TestScenarioE_AutoApproveWithoutActiveDefinition(t *testing.T) {
	f := newFixture(t)
	def := f.define(t, "inactive", entity.KindJournalVoucher, false, stepSpec{approvers: []int64{user7}})
	def.DefaultBehavior = entity.DefaultBehaviorAutoApprove
	require.NoError(t, f.repos.Definitions.Update(context.Background(), def))

	docID, res := f.submit(t, entity.KindJournalVoucher, 10)

	assert.Nil(t, res.InstanceID)
	assert.Equal(t, entity.DocumentStatusApproved, res.Status)
	assert.Equal(t, entity.DocumentStatusApproved, testutil.DocumentStatus(t, f.db, entity.KindJournalVoucher, docID))

	pending, err := f.repos.Instances.FindPendingByDocument(context.Background(), company, entity.KindJournalVoucher, docID)
	require.NoError(t, err)
	assert.Nil(t, pending)
	assert.Equal(t, []event.Type{event.TypeDocumentAutoApproved}, f.events.types())
	assert.Equal(t, "DOC-1", f.events.events[0].GetPayloadString("number"))
}

func TestSubmit_NoDefinitionMarksSubmitted(t *testing.T) {
	f := newFixture(t)

	docID, res := f.submit(t, entity.KindPurchaseRequisition, 10)

	assert.Nil(t, res.InstanceID)
	assert.Equal(t, entity.DocumentStatusSubmitted, res.Status)
	assert.Equal(t, entity.DocumentStatusSubmitted, testutil.DocumentStatus(t, f.db, entity.KindPurchaseRequisition, docID))
}

func TestSubmit_Conflicts(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7}})
	docID, res := f.submit(t, entity.KindPaymentVoucher, 10)

	_, err := f.engine.Submit(context.Background(), SubmitRequest{CompanyID: company, Kind: entity.KindPaymentVoucher, DocumentID: docID, SubmittedBy: submitter})
	assert.True(t, apperror.Is(err, apperror.CodeStateConflict), "second submit while pending: %v", err)

	_, err = f.act(*res.InstanceID, user7, entity.ActionApprove, "")
	require.NoError(t, err)

	_, err = f.engine.Submit(context.Background(), SubmitRequest{CompanyID: company, Kind: entity.KindPaymentVoucher, DocumentID: docID, SubmittedBy: submitter})
	assert.True(t, apperror.Is(err, apperror.CodeStateConflict), "submit after approval: %v", err)
}

func TestSubmit_ResubmitAfterReturn(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7}})
	docID, res := f.submit(t, entity.KindPaymentVoucher, 10)

	_, err := f.act(*res.InstanceID, user7, entity.ActionReturn, "attach invoice")
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusReturned, testutil.DocumentStatus(t, f.db, entity.KindPaymentVoucher, docID))

	again, err := f.engine.Submit(context.Background(), SubmitRequest{CompanyID: company, Kind: entity.KindPaymentVoucher, DocumentID: docID, SubmittedBy: submitter})
	require.NoError(t, err)
	require.NotNil(t, again.InstanceID)
	assert.NotEqual(t, *res.InstanceID, *again.InstanceID)
}

func TestSubmit_MissingDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Submit(context.Background(), SubmitRequest{CompanyID: company, Kind: entity.KindSalesOrder, DocumentID: 404, SubmittedBy: submitter})
	assert.Equal(t, apperror.CodeNotFound, apperror.CodeOf(err))

	_, err = f.engine.Submit(context.Background(), SubmitRequest{CompanyID: company, Kind: "INVOICE", DocumentID: 1})
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
}

func TestSubmit_AmountDefaultsToDocument(t *testing.T) {
	f := newFixture(t)
	small := &entity.WorkflowDefinition{
		CompanyID:       company,
		Name:            "small",
		DocumentType:    entity.KindPaymentVoucher,
		MaxAmount:       testutil.Ptr(1000.0),
		IsActive:        true,
		DefaultBehavior: entity.DefaultBehaviorBlock,
		Steps: []*entity.WorkflowStep{
			{StepOrder: 1, Name: "clerk", Approvers: []*entity.StepApprover{{UserID: user7}}},
		},
	}
	require.NoError(t, f.repos.Definitions.Create(context.Background(), small))
	big := f.define(t, "big", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user9}})

	_, res := f.submit(t, entity.KindPaymentVoucher, 2500)

	inst := f.instance(t, *res.InstanceID)
	assert.Equal(t, big.ID, inst.DefinitionID)
	assert.Equal(t, user9, inst.AssignedTo)
	require.NotNil(t, inst.Amount)
	assert.Equal(t, 2500.0, *inst.Amount)
}

func TestSubmit_WorkflowOverrideWins(t *testing.T) {
	f := newFixture(t)
	f.define(t, "default", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7}})
	override := f.define(t, "override", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user9}})
	other := f.define(t, "sales", entity.KindSalesOrder, true, stepSpec{approvers: []int64{user8}})
	docID := testutil.InsertDocument(t, f.db, entity.KindPaymentVoucher, company, "PV-2", testutil.Ptr(50.0))

	_, err := f.engine.Submit(context.Background(), SubmitRequest{
		CompanyID: company, Kind: entity.KindPaymentVoucher, DocumentID: docID, SubmittedBy: submitter,
		WorkflowID: testutil.Ptr(other.ID),
	})
	assert.Equal(t, apperror.CodeNotFound, apperror.CodeOf(err))

	res, err := f.engine.Submit(context.Background(), SubmitRequest{
		CompanyID: company, Kind: entity.KindPaymentVoucher, DocumentID: docID, SubmittedBy: submitter,
		WorkflowID: testutil.Ptr(override.ID),
	})
	require.NoError(t, err)
	inst := f.instance(t, *res.InstanceID)
	assert.Equal(t, override.ID, inst.DefinitionID)
	assert.Equal(t, user9, inst.AssignedTo)
}

func TestSubmit_TargetOverride(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7, user8}})
	docID := testutil.InsertDocument(t, f.db, entity.KindPaymentVoucher, company, "PV-9", nil)

	_, err := f.engine.Submit(context.Background(), SubmitRequest{
		CompanyID: company, Kind: entity.KindPaymentVoucher, DocumentID: docID, SubmittedBy: submitter,
		TargetUserID: testutil.Ptr(user9),
	})
	assert.Equal(t, apperror.CodeBusinessRule, apperror.CodeOf(err))
	assert.Equal(t, entity.DocumentStatusDraft, testutil.DocumentStatus(t, f.db, entity.KindPaymentVoucher, docID))

	res, err := f.engine.Submit(context.Background(), SubmitRequest{
		CompanyID: company, Kind: entity.KindPaymentVoucher, DocumentID: docID, SubmittedBy: submitter,
		TargetUserID: testutil.Ptr(user8),
	})
	require.NoError(t, err)
	assert.Equal(t, user8, f.instance(t, *res.InstanceID).AssignedTo)
}

func TestSubmit_StepWithoutApprovers(t *testing.T) {
	f := newFixture(t)
	f.define(t, "empty", entity.KindSalesOrder, true, stepSpec{})
	docID := testutil.InsertDocument(t, f.db, entity.KindSalesOrder, company, "SO-1", nil)

	_, err := f.engine.Submit(context.Background(), SubmitRequest{CompanyID: company, Kind: entity.KindSalesOrder, DocumentID: docID, SubmittedBy: submitter})
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
	assert.Equal(t, entity.DocumentStatusDraft, testutil.DocumentStatus(t, f.db, entity.KindSalesOrder, docID))
}

func TestProcessAction_Validation(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7}})
	_, res := f.submit(t, entity.KindPaymentVoucher, 10)
	id := *res.InstanceID

	tests := []struct {
		name     string
		actor    int64
		action   string
		comments string
		code     apperror.Code
	}{
		{"unknown action", user7, "ESCALATE", "", apperror.CodeValidation},
		{"forward is not a decision", user7, entity.ActionForward, "", apperror.CodeValidation},
		{"reject without comment", user7, entity.ActionReject, "   ", apperror.CodeValidation},
		{"return without comment", user7, entity.ActionReturn, "", apperror.CodeValidation},
		{"not an approver", user9, entity.ActionApprove, "", apperror.CodeStateConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.act(id, tt.actor, tt.action, tt.comments)
			assert.Equal(t, tt.code, apperror.CodeOf(err))
		})
	}

	_, err := f.act(id+100, user7, entity.ActionApprove, "")
	assert.Equal(t, apperror.CodeNotFound, apperror.CodeOf(err))
	assert.Len(t, f.logs(t, id), 1)
}

func TestProcessAction_TerminalIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7}})
	_, res := f.submit(t, entity.KindPaymentVoucher, 10)
	id := *res.InstanceID

	_, err := f.act(id, user7, entity.ActionApprove, "")
	require.NoError(t, err)
	version := f.instance(t, id).Version

	for _, action := range []string{entity.ActionApprove, entity.ActionReject, entity.ActionReturn} {
		_, err := f.act(id, user7, action, "again")
		assert.Equal(t, apperror.CodeStateConflict, apperror.CodeOf(err), action)
	}
	_, err = f.engine.Delegate(context.Background(), DelegateRequest{CompanyID: company, InstanceID: id, ActorID: user7, TargetUserID: user9})
	assert.Equal(t, apperror.CodeStateConflict, apperror.CodeOf(err))

	assert.Equal(t, version, f.instance(t, id).Version)
	assert.Len(t, f.logs(t, id), 2)
}

func TestProcessAction_AnyStepApproverMayAct(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true,
		stepSpec{approvers: []int64{user7, user8}},
		stepSpec{approvers: []int64{user9, user7}},
	)
	_, res := f.submit(t, entity.KindPaymentVoucher, 10)

	out, err := f.engine.ProcessAction(context.Background(), ActionRequest{
		CompanyID: company, InstanceID: *res.InstanceID, ActorID: user8, Action: entity.ActionApprove,
		TargetUserID: testutil.Ptr(user7),
	})
	require.NoError(t, err)
	assert.Equal(t, user7, out.AssignedTo)
	assert.Equal(t, user8, f.logs(t, *res.InstanceID)[1].ActorID)
}

func TestProcessAction_NextStepTargetMustBeApprover(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true,
		stepSpec{approvers: []int64{user7}},
		stepSpec{approvers: []int64{user9}},
	)
	_, res := f.submit(t, entity.KindPaymentVoucher, 10)

	_, err := f.engine.ProcessAction(context.Background(), ActionRequest{
		CompanyID: company, InstanceID: *res.InstanceID, ActorID: user7, Action: entity.ActionApprove,
		TargetUserID: testutil.Ptr(user8),
	})
	assert.Equal(t, apperror.CodeBusinessRule, apperror.CodeOf(err))
	assert.Equal(t, 1, f.instance(t, *res.InstanceID).CurrentStepOrder)
}

func TestProcessAction_LimitOnlyEnforcedAtFinalStep(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true,
		stepSpec{approvers: []int64{user7}, limit: testutil.Ptr(10.0)},
		stepSpec{approvers: []int64{user9}},
	)
	_, res := f.submit(t, entity.KindPaymentVoucher, 500)

	out, err := f.act(*res.InstanceID, user7, entity.ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, 2, out.CurrentStepOrder)
}

func TestDelegate(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7, user8}})
	_, res := f.submit(t, entity.KindPaymentVoucher, 10)
	id := *res.InstanceID

	_, err := f.engine.Delegate(context.Background(), DelegateRequest{CompanyID: company, InstanceID: id, ActorID: user7, TargetUserID: user9})
	assert.Equal(t, apperror.CodeBusinessRule, apperror.CodeOf(err))

	_, err = f.engine.Delegate(context.Background(), DelegateRequest{CompanyID: company, InstanceID: id, ActorID: user7, TargetUserID: user7})
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))

	out, err := f.engine.Delegate(context.Background(), DelegateRequest{CompanyID: company, InstanceID: id, ActorID: user7, TargetUserID: user8, Comments: "on leave"})
	require.NoError(t, err)
	assert.Equal(t, user8, out.AssignedTo)
	assert.Equal(t, 1, out.CurrentStepOrder)
	assert.Equal(t, entity.InstanceStatusPending, out.Status)

	logs := f.logs(t, id)
	assert.Equal(t, []string{entity.ActionSubmit, entity.ActionForward}, actions(logs))
	assert.Equal(t, "on leave", logs[1].Comments)
	assert.Len(t, f.notificationsFor(t, user8), 1)

	out, err = f.act(id, user8, entity.ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusApproved, out.Status)
}

func TestProcessAction_RollbackOnWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true,
		stepSpec{approvers: []int64{user7}},
		stepSpec{approvers: []int64{user9}},
	)
	_, res := f.submit(t, entity.KindPaymentVoucher, 10)
	id := *res.InstanceID

	repos := f.repos
	repos.Notifications = failingNotifications{}
	engine := NewEngine(repos, f.db, utils.NewKVLogger(zap.NewNop()))

	_, err := engine.ProcessAction(context.Background(), ActionRequest{CompanyID: company, InstanceID: id, ActorID: user7, Action: entity.ActionApprove})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInternal, apperror.CodeOf(err))

	inst := f.instance(t, id)
	assert.Equal(t, 1, inst.CurrentStepOrder)
	assert.Equal(t, user7, inst.AssignedTo)
	assert.Len(t, f.logs(t, id), 1)
	tasks, err := f.repos.Tasks.ListByInstance(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

type failingNotifications struct{}

func (failingNotifications) Create(context.Context, *entity.Notification) error {
	return errors.New("disk full")
}

func (failingNotifications) ListForUser(context.Context, int64, int64, bool, int) ([]*entity.Notification, error) {
	return nil, nil
}

func (failingNotifications) MarkRead(context.Context, int64, int64, int64) (bool, error) {
	return false, nil
}

func TestProcessAction_StepOrderMonotonic(t *testing.T) {
	f := newFixture(t)
	f.define(t, "three", entity.KindPaymentVoucher, true,
		stepSpec{approvers: []int64{user7}},
		stepSpec{approvers: []int64{user8}},
		stepSpec{approvers: []int64{user9}},
	)
	_, res := f.submit(t, entity.KindPaymentVoucher, 10)
	id := *res.InstanceID

	last := f.instance(t, id).CurrentStepOrder
	for _, actor := range []int64{user7, user8, user9} {
		out, err := f.act(id, actor, entity.ActionApprove, "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out.CurrentStepOrder, last)
		last = out.CurrentStepOrder
	}
	assert.Equal(t, entity.InstanceStatusApproved, f.instance(t, id).Status)
	assert.Len(t, f.logs(t, id), 4)
}

func itoa(v int64) string {
	return fmt.Sprintf("%d", v)
}

// staleInstances forces every Update to lose the version race
type staleInstances struct {
	port.InstanceRepository
}

func (staleInstances) Update(context.Context, *entity.DocumentWorkflow) error {
	return port.ErrStaleVersion
}

func TestProcessAction_StaleVersionIsConflict(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7}})
	_, res := f.submit(t, entity.KindPaymentVoucher, 10)

	repos := f.repos
	repos.Instances = staleInstances{f.repos.Instances}
	engine := NewEngine(repos, f.db, utils.NewKVLogger(zap.NewNop()))

	_, err := engine.ProcessAction(context.Background(), ActionRequest{CompanyID: company, InstanceID: *res.InstanceID, ActorID: user7, Action: entity.ActionApprove})
	assert.Equal(t, apperror.CodeStateConflict, apperror.CodeOf(err))
	assert.Equal(t, entity.InstanceStatusPending, f.instance(t, *res.InstanceID).Status)
	assert.Len(t, f.logs(t, *res.InstanceID), 1)
}

func TestProcessAction_ConcurrentApprovalsApplyOnce(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7, user8}})
	_, res := f.submit(t, entity.KindPaymentVoucher, 10)
	id := *res.InstanceID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []int64{user7, user8} {
		wg.Add(1)
		go func(i int, actor int64) {
			defer wg.Done()
			_, errs[i] = f.act(id, actor, entity.ActionApprove, "")
		}(i, actor)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.Is(err, apperror.CodeStateConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, f.logs(t, id), 2)
	assert.Equal(t, entity.InstanceStatusApproved, f.instance(t, id).Status)
}

// recordingMetrics counts transitions by action and outcome
type recordingMetrics struct {
	mu          sync.Mutex
	transitions map[string]int
	selections  []string
}

func (m *recordingMetrics) RecordTransition(_ context.Context, action, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[action+"/"+outcome]++
}

func (m *recordingMetrics) RecordSelection(_ context.Context, _ entity.DocumentKind, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections = append(m.selections, result)
}

func TestEngine_RecordsSpansAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.define(t, "PV", entity.KindPaymentVoucher, true, stepSpec{approvers: []int64{user7}, limit: testutil.Ptr(10.0)})

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	metrics := &recordingMetrics{transitions: map[string]int{}}
	engine := NewEngine(f.repos, f.db, utils.NewKVLogger(zap.NewNop()), WithTracer(tp.Tracer("test")), WithMetrics(metrics))

	docID := testutil.InsertDocument(t, f.db, entity.KindPaymentVoucher, company, "PV-5", testutil.Ptr(50.0))
	res, err := engine.Submit(context.Background(), SubmitRequest{CompanyID: company, Kind: entity.KindPaymentVoucher, DocumentID: docID, SubmittedBy: submitter})
	require.NoError(t, err)
	_, err = engine.ProcessAction(context.Background(), ActionRequest{CompanyID: company, InstanceID: *res.InstanceID, ActorID: user7, Action: entity.ActionApprove})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "workflow.Submit", spans[0].Name())
	assert.Equal(t, "workflow.ProcessAction", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("outcome", "business_rule_violation"))

	assert.Equal(t, 1, metrics.transitions["SUBMIT/ok"])
	assert.Equal(t, 1, metrics.transitions["APPROVE/business_rule_violation"])
	assert.Equal(t, []string{string(DecisionDefinition)}, metrics.selections)
}
