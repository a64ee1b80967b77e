package documents

import (
	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

var voucherTypeCodes = map[entity.DocumentKind]string{
	entity.KindPaymentVoucher: "PV",
	entity.KindReceiptVoucher: "RV",
	entity.KindJournalVoucher: "JV",
}

// NewVoucherStore serves payment, receipt and journal vouchers from the finance vouchers table
func NewVoucherStore(db *sqldb.DB, logger *zap.Logger) port.DocumentStatusSink {
	return &tableStore{
		db:     db,
		logger: logger.Named("vouchers"),
		table:  "vouchers",
		kinds:  []entity.DocumentKind{entity.KindPaymentVoucher, entity.KindReceiptVoucher, entity.KindJournalVoucher},
		filter: func(kind entity.DocumentKind) (string, interface{}) {
			return "voucher_type = ?", voucherTypeCodes[kind]
		},
	}
}

// NewPurchaseOrderStore serves the purchasing module's purchase orders
func NewPurchaseOrderStore(db *sqldb.DB, logger *zap.Logger) port.DocumentStatusSink {
	return &tableStore{
		db:     db,
		logger: logger.Named("purchase_orders"),
		table:  "purchase_orders",
		kinds:  []entity.DocumentKind{entity.KindPurchaseOrder},
	}
}

// NewRequisitionStore serves the purchasing module's requisitions
func NewRequisitionStore(db *sqldb.DB, logger *zap.Logger) port.DocumentStatusSink {
	return &tableStore{
		db:     db,
		logger: logger.Named("requisitions"),
		table:  "requisitions",
		kinds:  []entity.DocumentKind{entity.KindPurchaseRequisition},
	}
}

// NewSalesOrderStore serves the sales module's sales orders
func NewSalesOrderStore(db *sqldb.DB, logger *zap.Logger) port.DocumentStatusSink {
	return &tableStore{
		db:     db,
		logger: logger.Named("sales_orders"),
		table:  "sales_orders",
		kinds:  []entity.DocumentKind{entity.KindSalesOrder},
	}
}

// NewDefaultSinks returns one sink per business module
func NewDefaultSinks(db *sqldb.DB, logger *zap.Logger) []port.DocumentStatusSink {
	return []port.DocumentStatusSink{
		NewVoucherStore(db, logger),
		NewPurchaseOrderStore(db, logger),
		NewRequisitionStore(db, logger),
		NewSalesOrderStore(db, logger),
	}
}
