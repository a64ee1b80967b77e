package dispatcher

import (
	"context"

	"github.com/garyjia/erp-workflow/internal/domain/event"
)

// Handler processes a committed workflow event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo pairs a handler with its registration
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
