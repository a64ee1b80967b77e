package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/erp-workflow/internal/application/workflow"
	"github.com/garyjia/erp-workflow/internal/domain/apperror"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/infrastructure/documents"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/erp-workflow/internal/testutil"
	"github.com/garyjia/erp-workflow/pkg/utils"
)

type mockExporter struct {
	exportFunc func(ctx context.Context, w io.Writer, review *entity.ApprovalReview) error
}

func (m *mockExporter) ContentType() string { return "text/plain" }

func (m *mockExporter) Export(ctx context.Context, w io.Writer, review *entity.ApprovalReview) error {
	if m.exportFunc != nil {
		return m.exportFunc(ctx, w, review)
	}
	_, err := io.WriteString(w, review.DefinitionName)
	return err
}

type queryFixture struct {
	engine  workflow.Engine
	query   QueryService
	manager int64
	finance int64
	clerk   int64
	docID   int64
}

func newQueryFixture(t *testing.T, exporter *mockExporter) *queryFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	logger := zap.NewNop()

	manager := testutil.InsertUser(t, db, 1, "manager")
	finance := testutil.InsertUser(t, db, 1, "finance")
	clerk := testutil.InsertUser(t, db, 1, "clerk")

	router, err := documents.NewRouter(documents.NewDefaultSinks(db, logger)...)
	require.NoError(t, err)
	defs := repository.NewDefinitionRepository(db, logger)
	instances := repository.NewInstanceRepository(db, logger)
	logs := repository.NewAuditLogRepository(db, logger)

	require.NoError(t, defs.Create(context.Background(), &entity.WorkflowDefinition{
		CompanyID:       1,
		Name:            "PO Approval",
		DocumentType:    entity.KindPurchaseOrder,
		IsActive:        true,
		DefaultBehavior: entity.DefaultBehaviorBlock,
		Steps: []*entity.WorkflowStep{
			{StepOrder: 1, Name: "Manager", ApprovalLimit: testutil.Ptr(2000.0), Approvers: []*entity.StepApprover{{UserID: manager}}},
			{StepOrder: 2, Name: "Finance", Approvers: []*entity.StepApprover{{UserID: finance}}},
		},
	}))

	engine := workflow.NewEngine(workflow.Repositories{
		Definitions:   defs,
		Instances:     instances,
		Tasks:         repository.NewTaskRepository(db, logger),
		Logs:          logs,
		Notifications: repository.NewNotificationRepository(db, logger),
		Documents:     router,
	}, db, utils.NewKVLogger(logger))

	return &queryFixture{
		engine:  engine,
		query:   NewQueryService(instances, defs, logs, router, exporter, &mockLogger{}),
		manager: manager,
		finance: finance,
		clerk:   clerk,
		docID:   testutil.InsertDocument(t, db, entity.KindPurchaseOrder, 1, "PO-7", testutil.Ptr(1500.0)),
	}
}

func (f *queryFixture) submit(t *testing.T) int64 {
	t.Helper()
	res, err := f.engine.Submit(context.Background(), workflow.SubmitRequest{
		CompanyID:   1,
		Kind:        entity.KindPurchaseOrder,
		DocumentID:  f.docID,
		SubmittedBy: f.clerk,
	})
	require.NoError(t, err)
	require.NotNil(t, res.InstanceID)
	return *res.InstanceID
}

func TestQueryService_Review(t *testing.T) {
	f := newQueryFixture(t, &mockExporter{})
	ctx := context.Background()
	id := f.submit(t)

	review, err := f.query.Review(ctx, 1, id)
	require.NoError(t, err)
	assert.Equal(t, "PO Approval", review.DefinitionName)
	assert.Equal(t, "PO-7", review.Document.Number)
	assert.False(t, review.IsLastStep)
	require.NotNil(t, review.ApprovalLimit)
	assert.Equal(t, 2000.0, *review.ApprovalLimit)
	require.Len(t, review.NextStepApprovers, 1)
	assert.Equal(t, f.finance, review.NextStepApprovers[0].ID)
	assert.Equal(t, "finance", review.NextStepApprovers[0].Username)
	require.Len(t, review.Logs, 1)
	assert.Equal(t, "clerk", review.Logs[0].ActorUsername)
	assert.Equal(t, []string{"APPROVE", "FORWARD", "REJECT", "RETURN"}, review.AllowedActions)

	_, err = f.engine.ProcessAction(ctx, workflow.ActionRequest{CompanyID: 1, InstanceID: id, ActorID: f.manager, Action: entity.ActionApprove})
	require.NoError(t, err)

	review, err = f.query.Review(ctx, 1, id)
	require.NoError(t, err)
	assert.True(t, review.IsLastStep)
	assert.Nil(t, review.ApprovalLimit)
	assert.Empty(t, review.NextStepApprovers)
	assert.Len(t, review.Logs, 2)

	_, err = f.engine.ProcessAction(ctx, workflow.ActionRequest{CompanyID: 1, InstanceID: id, ActorID: f.finance, Action: entity.ActionReject, Comments: "over budget"})
	require.NoError(t, err)
	review, err = f.query.Review(ctx, 1, id)
	require.NoError(t, err)
	assert.Empty(t, review.AllowedActions)

	_, err = f.query.Review(ctx, 2, id)
	assert.Equal(t, apperror.CodeNotFound, apperror.CodeOf(err))
}

func TestQueryService_PendingForUser(t *testing.T) {
	f := newQueryFixture(t, &mockExporter{})
	ctx := context.Background()

	empty, err := f.query.PendingForUser(ctx, 1, f.manager)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	id := f.submit(t)

	pending, err := f.query.PendingForUser(ctx, 1, f.manager)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].Instance.ID)
	assert.Equal(t, "PO Approval", pending[0].DefinitionName)
	assert.Equal(t, "PO-7", pending[0].DocumentNumber)

	others, err := f.query.PendingForUser(ctx, 1, f.finance)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestQueryService_ExportHistory(t *testing.T) {
	f := newQueryFixture(t, &mockExporter{})
	id := f.submit(t)

	var buf bytes.Buffer
	require.NoError(t, f.query.ExportHistory(context.Background(), 1, id, &buf))
	assert.Equal(t, "PO Approval", buf.String())
	assert.Equal(t, "text/plain", f.query.HistoryContentType())

	err := f.query.ExportHistory(context.Background(), 1, id+1, &buf)
	assert.Equal(t, apperror.CodeNotFound, apperror.CodeOf(err))
}

func TestQueryService_ExportHistoryFailure(t *testing.T) {
	boom := errors.New("disk full")
	f := newQueryFixture(t, &mockExporter{exportFunc: func(context.Context, io.Writer, *entity.ApprovalReview) error {
		return boom
	}})
	id := f.submit(t)

	err := f.query.ExportHistory(context.Background(), 1, id, io.Discard)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, apperror.CodeInternal, apperror.CodeOf(err))
}
