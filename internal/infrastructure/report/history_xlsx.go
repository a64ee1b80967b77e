package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

const (
	sheetName = "History"

	// Summary block occupies rows 1-6, the log table header sits on row 8
	logHeaderRow = 8

	colTime    = "A"
	colStep    = "B"
	colAction  = "C"
	colActor   = "D"
	colComment = "E"
)

// HistoryWorkbook renders an instance's audit log as an XLSX workbook
type HistoryWorkbook struct {
	logger *zap.Logger
}

// NewHistoryWorkbook creates a new XLSX history exporter
func NewHistoryWorkbook(logger *zap.Logger) *HistoryWorkbook {
	return &HistoryWorkbook{logger: logger}
}

func (h *HistoryWorkbook) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Export writes the workbook to w
func (h *HistoryWorkbook) Export(ctx context.Context, w io.Writer, review *entity.ApprovalReview) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := h.fillSummary(file, review); err != nil {
		return fmt.Errorf("failed to fill summary: %w", err)
	}
	if err := h.fillLogRows(file, review.Logs); err != nil {
		return fmt.Errorf("failed to fill log rows: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	h.logger.Debug("Workflow history exported",
		zap.Int64("instance_id", review.Instance.ID),
		zap.Int("log_count", len(review.Logs)))
	return nil
}

func (h *HistoryWorkbook) fillSummary(file *excelize.File, review *entity.ApprovalReview) error {
	inst := review.Instance
	number := ""
	if review.Document != nil {
		number = review.Document.Number
	}
	amount := "-"
	if inst.Amount != nil {
		amount = fmt.Sprintf("%.2f", *inst.Amount)
	}

	rows := [][2]interface{}{
		{"Workflow", review.DefinitionName},
		{"Document", fmt.Sprintf("%s %s", inst.DocumentType.Label(), number)},
		{"Amount", amount},
		{"Status", inst.Status},
		{"Current step", inst.CurrentStepOrder},
		{"Submitted", inst.CreatedAt.UTC().Format(time.RFC3339)},
	}
	for i, r := range rows {
		row := i + 1
		if err := file.SetCellValue(sheetName, fmt.Sprintf("A%d", row), r[0]); err != nil {
			return err
		}
		if err := file.SetCellValue(sheetName, fmt.Sprintf("B%d", row), r[1]); err != nil {
			return err
		}
	}

	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	return file.SetCellStyle(sheetName, "A1", fmt.Sprintf("A%d", len(rows)), bold)
}

func (h *HistoryWorkbook) fillLogRows(file *excelize.File, logs []*entity.WorkflowLog) error {
	header := []interface{}{"Time", "Step", "Action", "Actor", "Comments"}
	if err := file.SetSheetRow(sheetName, fmt.Sprintf("%s%d", colTime, logHeaderRow), &header); err != nil {
		return err
	}
	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return err
	}
	if err := file.SetCellStyle(sheetName,
		fmt.Sprintf("%s%d", colTime, logHeaderRow),
		fmt.Sprintf("%s%d", colComment, logHeaderRow), headerStyle); err != nil {
		return err
	}

	for i, l := range logs {
		row := logHeaderRow + 1 + i
		actor := l.ActorUsername
		if actor == "" {
			actor = fmt.Sprintf("user %d", l.ActorID)
		}
		values := []interface{}{
			l.CreatedAt.UTC().Format(time.RFC3339),
			l.StepOrder,
			l.Action,
			actor,
			l.Comments,
		}
		if err := file.SetSheetRow(sheetName, fmt.Sprintf("%s%d", colTime, row), &values); err != nil {
			return err
		}
	}

	if err := file.SetColWidth(sheetName, colTime, colTime, 22); err != nil {
		return err
	}
	if err := file.SetColWidth(sheetName, colActor, colActor, 18); err != nil {
		return err
	}
	return file.SetColWidth(sheetName, colComment, colComment, 48)
}

var _ port.HistoryExporter = (*HistoryWorkbook)(nil)
