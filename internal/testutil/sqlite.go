// Package testutil provides a migrated in-memory database and seed helpers for tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/erp-workflow/pkg/database"
)

// NewSQLiteDB opens a private in-memory database with the full schema applied
func NewSQLiteDB(t *testing.T) *sqldb.DB {
	t.Helper()

	logger := zap.NewNop()
	sqlDB, err := database.Open(database.Config{Driver: database.DriverSQLite, Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.NewMigrator(sqlDB, database.DriverSQLite, logger).Run(context.Background()))
	return sqldb.NewDB(sqlDB, sqldb.DialectSQLite, logger)
}

// InsertUser adds a user to the directory and returns its id
func InsertUser(t *testing.T, db *sqldb.DB, companyID int64, username string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(context.Background(),
		`INSERT INTO users (company_id, username, full_name) VALUES (?, ?, ?) RETURNING id`,
		companyID, username, username,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// InsertDocument adds a DRAFT business document of the given kind and returns its id
func InsertDocument(t *testing.T, db *sqldb.DB, kind entity.DocumentKind, companyID int64, number string, amount *float64) int64 {
	t.Helper()

	ctx := context.Background()
	var id int64
	var err error
	switch kind {
	case entity.KindPaymentVoucher, entity.KindReceiptVoucher, entity.KindJournalVoucher:
		code := map[entity.DocumentKind]string{
			entity.KindPaymentVoucher: "PV",
			entity.KindReceiptVoucher: "RV",
			entity.KindJournalVoucher: "JV",
		}[kind]
		err = db.QueryRow(ctx,
			`INSERT INTO vouchers (company_id, voucher_type, number, amount) VALUES (?, ?, ?, ?) RETURNING id`,
			companyID, code, number, amount,
		).Scan(&id)
	default:
		table := map[entity.DocumentKind]string{
			entity.KindPurchaseOrder:       "purchase_orders",
			entity.KindPurchaseRequisition: "requisitions",
			entity.KindSalesOrder:          "sales_orders",
		}[kind]
		require.NotEmpty(t, table, "unknown kind %s", kind)
		err = db.QueryRow(ctx,
			`INSERT INTO `+table+` (company_id, number, amount) VALUES (?, ?, ?) RETURNING id`,
			companyID, number, amount,
		).Scan(&id)
	}
	require.NoError(t, err)
	return id
}

// DocumentStatus reads a document's current status
func DocumentStatus(t *testing.T, db *sqldb.DB, kind entity.DocumentKind, id int64) string {
	t.Helper()
	table := "vouchers"
	switch kind {
	case entity.KindPurchaseOrder:
		table = "purchase_orders"
	case entity.KindPurchaseRequisition:
		table = "requisitions"
	case entity.KindSalesOrder:
		table = "sales_orders"
	}
	var status string
	require.NoError(t, db.QueryRow(context.Background(), `SELECT status FROM `+table+` WHERE id = ?`, id).Scan(&status))
	return status
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
