package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/apperror"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

// Decision is the kind of outcome a selection produced
type Decision string

const (
	DecisionDefinition  Decision = "DEFINITION"
	DecisionAutoApprove Decision = "AUTO_APPROVE"
	DecisionNone        Decision = "NO_DECISION"
)

// SelectionRequest describes the document a workflow is being chosen for
type SelectionRequest struct {
	CompanyID  int64
	Kind       entity.DocumentKind
	Route      string
	Amount     *float64
	WorkflowID *int64
}

// Selection is the selector's answer. Definition is set, with steps, only for DecisionDefinition.
type Selection struct {
	Decision   Decision
	Definition *entity.WorkflowDefinition
}

// Selector picks the workflow definition governing a document
type Selector struct {
	definitions port.DefinitionRepository
	logger      Logger
}

// NewSelector creates a workflow selector
func NewSelector(definitions port.DefinitionRepository, logger Logger) *Selector {
	return &Selector{definitions: definitions, logger: logger}
}

// Select resolves the governing definition:
//  1. an explicit, active override of the same kind wins
//  2. otherwise candidates bound to the route, followed by the rest bound to the kind,
//     each group by priority then id
//  3. the first active candidate whose range contains the amount wins
//  4. with no match, the first candidate's default behavior decides auto-approval
func (s *Selector) Select(ctx context.Context, req SelectionRequest) (*Selection, error) {
	if req.WorkflowID != nil {
		def, err := s.definitions.GetByID(ctx, req.CompanyID, *req.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("load workflow override: %w", err)
		}
		if def == nil || def.DocumentType != req.Kind {
			return nil, apperror.NotFound("workflow definition", *req.WorkflowID)
		}
		if def.IsActive {
			return &Selection{Decision: DecisionDefinition, Definition: def}, nil
		}
		s.logger.Info("Ignoring inactive workflow override",
			"workflow_id", def.ID,
			"document_type", req.Kind,
		)
	}

	candidates, err := s.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if !c.IsActive || !c.MatchesAmount(req.Amount) {
			continue
		}
		def, err := s.definitions.GetByID(ctx, req.CompanyID, c.ID)
		if err != nil {
			return nil, fmt.Errorf("load workflow definition %d: %w", c.ID, err)
		}
		if def == nil {
			return nil, fmt.Errorf("workflow definition %d disappeared during selection", c.ID)
		}
		return &Selection{Decision: DecisionDefinition, Definition: def}, nil
	}

	if len(candidates) > 0 && candidates[0].DefaultBehavior == entity.DefaultBehaviorAutoApprove {
		return &Selection{Decision: DecisionAutoApprove}, nil
	}
	return &Selection{Decision: DecisionNone}, nil
}

func (s *Selector) candidates(ctx context.Context, req SelectionRequest) ([]*entity.WorkflowDefinition, error) {
	var merged []*entity.WorkflowDefinition
	seen := make(map[int64]bool)
	add := func(defs []*entity.WorkflowDefinition) {
		for _, d := range defs {
			if d.DocumentType != req.Kind || seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			merged = append(merged, d)
		}
	}

	if req.Route != "" {
		byRoute, err := s.definitions.ListByRoute(ctx, req.CompanyID, req.Route)
		if err != nil {
			return nil, fmt.Errorf("list definitions by route: %w", err)
		}
		add(byRoute)
	}

	byKind, err := s.definitions.ListByKind(ctx, req.CompanyID, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("list definitions by kind: %w", err)
	}
	add(byKind)
	return merged, nil
}
