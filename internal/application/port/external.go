package port

import (
	"context"
	"io"
	"time"

	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

// DocumentStore reads business documents and writes back their approval status.
// Business modules own the documents; the engine only touches the status column.
type DocumentStore interface {
	// Load returns the document of the company, nil if absent
	Load(ctx context.Context, companyID int64, kind entity.DocumentKind, id int64) (*entity.DocumentSnapshot, error)

	// SetStatus updates the document status within the caller's transaction
	SetStatus(ctx context.Context, companyID int64, kind entity.DocumentKind, id int64, status string) error
}

// DocumentStatusSink is a DocumentStore serving a fixed set of kinds, one per business module
type DocumentStatusSink interface {
	DocumentStore
	Kinds() []entity.DocumentKind
}

// HistoryExporter renders an instance's audit history as a downloadable report
type HistoryExporter interface {
	ContentType() string
	Export(ctx context.Context, w io.Writer, review *entity.ApprovalReview) error
}

// WorkflowMetrics records workflow transitions
type WorkflowMetrics interface {
	RecordTransition(ctx context.Context, action, outcome string, elapsed time.Duration)
	RecordSelection(ctx context.Context, kind entity.DocumentKind, result string)
}
