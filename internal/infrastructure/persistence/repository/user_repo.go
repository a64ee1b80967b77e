package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// UserRepository implements port.UserDirectory over the administration module's users table
type UserRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewUserRepository creates a new read-only user directory
func NewUserRepository(db *sqldb.DB, logger *zap.Logger) port.UserDirectory {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetByIDs returns the company's users among ids
func (r *UserRepository) GetByIDs(ctx context.Context, companyID int64, ids []int64) (map[int64]*entity.User, error) {
	users := make(map[int64]*entity.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, companyID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, company_id, username, full_name
		FROM users
		WHERE company_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		r.logger.Error("Failed to load users", zap.Int("count", len(ids)), zap.Error(err))
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Username, &u.FullName); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[u.ID] = &u
	}
	return users, rows.Err()
}

var _ port.UserDirectory = (*UserRepository)(nil)
