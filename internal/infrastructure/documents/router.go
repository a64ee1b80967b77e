package documents

import (
	"context"
	"fmt"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

// Router dispatches document reads and status writes to the sink owning the kind
type Router struct {
	sinks map[entity.DocumentKind]port.DocumentStatusSink
}

// NewRouter builds a router. A kind claimed by two sinks is a wiring bug.
func NewRouter(sinks ...port.DocumentStatusSink) (*Router, error) {
	r := &Router{sinks: make(map[entity.DocumentKind]port.DocumentStatusSink)}
	for _, s := range sinks {
		for _, k := range s.Kinds() {
			if _, dup := r.sinks[k]; dup {
				return nil, fmt.Errorf("document kind %s registered twice", k)
			}
			r.sinks[k] = s
		}
	}
	return r, nil
}

func (r *Router) sink(kind entity.DocumentKind) (port.DocumentStatusSink, error) {
	s, ok := r.sinks[kind]
	if !ok {
		return nil, fmt.Errorf("no document store for %s", kind)
	}
	return s, nil
}

func (r *Router) Load(ctx context.Context, companyID int64, kind entity.DocumentKind, id int64) (*entity.DocumentSnapshot, error) {
	s, err := r.sink(kind)
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, companyID, kind, id)
}

func (r *Router) SetStatus(ctx context.Context, companyID int64, kind entity.DocumentKind, id int64, status string) error {
	s, err := r.sink(kind)
	if err != nil {
		return err
	}
	return s.SetStatus(ctx, companyID, kind, id, status)
}

var _ port.DocumentStore = (*Router)(nil)
