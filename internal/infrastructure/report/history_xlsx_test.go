package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

func TestHistoryWorkbook_Export(t *testing.T) {
	amount := 4000.0
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	review := &entity.ApprovalReview{
		Instance: &entity.DocumentWorkflow{
			ID:               12,
			DocumentType:     entity.KindPaymentVoucher,
			Amount:           &amount,
			CurrentStepOrder: 1,
			Status:           entity.InstanceStatusApproved,
			CreatedAt:        created,
		},
		DefinitionName: "PV Approval",
		Document:       &entity.DocumentSnapshot{Number: "PV-0042"},
		Logs: []*entity.WorkflowLog{
			{ActorID: 3, ActorUsername: "clerk", StepOrder: 1, Action: entity.ActionSubmit, CreatedAt: created},
			{ActorID: 7, StepOrder: 1, Action: entity.ActionApprove, Comments: "ok", CreatedAt: created.Add(time.Hour)},
		},
	}

	exporter := NewHistoryWorkbook(zap.NewNop())
	var buf bytes.Buffer
	require.NoError(t, exporter.Export(context.Background(), &buf, review))
	assert.Contains(t, exporter.ContentType(), "spreadsheetml")

	file, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer file.Close()

	cell := func(axis string) string {
		v, err := file.GetCellValue(sheetName, axis)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "PV Approval", cell("B1"))
	assert.Equal(t, "Payment Voucher PV-0042", cell("B2"))
	assert.Equal(t, "4000.00", cell("B3"))
	assert.Equal(t, "APPROVED", cell("B4"))

	assert.Equal(t, "Action", cell("C8"))
	assert.Equal(t, "SUBMIT", cell("C9"))
	assert.Equal(t, "clerk", cell("D9"))
	assert.Equal(t, "APPROVE", cell("C10"))
	assert.Equal(t, "user 7", cell("D10"))
	assert.Equal(t, "ok", cell("E10"))
	assert.Empty(t, cell("C11"))
}

func TestHistoryWorkbook_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	review := &entity.ApprovalReview{Instance: &entity.DocumentWorkflow{ID: 1, DocumentType: entity.KindSalesOrder}}
	var buf bytes.Buffer
	err := NewHistoryWorkbook(zap.NewNop()).Export(ctx, &buf, review)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}
