// Package documents adapts the business modules' document tables to the
// workflow engine. Each module gets its own store; Router picks one by kind.
package documents

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// tableStore reads and updates a single document table. filter, when set,
// narrows a shared table to one kind (the finance vouchers table holds PV, RV and JV).
type tableStore struct {
	db     *sqldb.DB
	logger *zap.Logger
	table  string
	kinds  []entity.DocumentKind
	filter func(kind entity.DocumentKind) (clause string, arg interface{})
}

func (s *tableStore) Kinds() []entity.DocumentKind {
	return s.kinds
}

func (s *tableStore) serves(kind entity.DocumentKind) bool {
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (s *tableStore) where(kind entity.DocumentKind) (string, []interface{}) {
	clause := "id = ? AND company_id = ?"
	if s.filter == nil {
		return clause, nil
	}
	extra, arg := s.filter(kind)
	return clause + " AND " + extra, []interface{}{arg}
}

// Load returns the document, nil if it does not exist in the company
func (s *tableStore) Load(ctx context.Context, companyID int64, kind entity.DocumentKind, id int64) (*entity.DocumentSnapshot, error) {
	if !s.serves(kind) {
		return nil, fmt.Errorf("%s store does not serve %s", s.table, kind)
	}

	clause, extra := s.where(kind)
	args := append([]interface{}{id, companyID}, extra...)

	doc := entity.DocumentSnapshot{Kind: kind}
	var amount sql.NullFloat64
	err := s.db.QueryRow(ctx, `
		SELECT id, company_id, number, amount, status, description
		FROM `+s.table+`
		WHERE `+clause, args...,
	).Scan(&doc.ID, &doc.CompanyID, &doc.Number, &amount, &doc.Status, &doc.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to load document",
			zap.String("table", s.table),
			zap.Int64("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to load %s %d: %w", kind, id, err)
	}

	if amount.Valid {
		v := amount.Float64
		doc.Amount = &v
	}
	return &doc, nil
}

// SetStatus writes the approval status back to the document
func (s *tableStore) SetStatus(ctx context.Context, companyID int64, kind entity.DocumentKind, id int64, status string) error {
	if !s.serves(kind) {
		return fmt.Errorf("%s store does not serve %s", s.table, kind)
	}

	clause, extra := s.where(kind)
	args := append([]interface{}{status, id, companyID}, extra...)

	result, err := s.db.Exec(ctx, `UPDATE `+s.table+` SET status = ? WHERE `+clause, args...)
	if err != nil {
		s.logger.Error("Failed to update document status",
			zap.String("table", s.table),
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update %s %d status: %w", kind, id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d not found", kind, id)
	}

	s.logger.Debug("Document status updated",
		zap.String("document_type", string(kind)),
		zap.Int64("id", id),
		zap.String("status", status))
	return nil
}
