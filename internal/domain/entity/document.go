package entity

import (
	"fmt"
	"strings"
)

// DocumentKind is the canonical key of a document class that can be routed through a workflow
type DocumentKind string

const (
	KindPaymentVoucher      DocumentKind = "PAYMENT_VOUCHER"
	KindReceiptVoucher      DocumentKind = "RECEIPT_VOUCHER"
	KindJournalVoucher      DocumentKind = "JOURNAL_VOUCHER"
	KindPurchaseOrder       DocumentKind = "PURCHASE_ORDER"
	KindPurchaseRequisition DocumentKind = "PURCHASE_REQUISITION"
	KindSalesOrder          DocumentKind = "SALES_ORDER"
)

type kindInfo struct {
	route  string
	label  string
	labels []string
}

// kinds maps each canonical key to its API route and the legacy labels seen in stored configuration.
var kinds = map[DocumentKind]kindInfo{
	KindPaymentVoucher: {
		route:  "/finance/payment-vouchers",
		label:  "Payment Voucher",
		labels: []string{"PV", "PAYMENT_VOUCHER", "Payment Voucher"},
	},
	KindReceiptVoucher: {
		route:  "/finance/receipt-vouchers",
		label:  "Receipt Voucher",
		labels: []string{"RV", "RECEIPT_VOUCHER", "Receipt Voucher"},
	},
	KindJournalVoucher: {
		route:  "/finance/journal-vouchers",
		label:  "Journal Voucher",
		labels: []string{"JV", "JOURNAL_VOUCHER", "Journal Voucher"},
	},
	KindPurchaseOrder: {
		route:  "/purchasing/purchase-orders",
		label:  "Purchase Order",
		labels: []string{"PO", "PURCHASE_ORDER", "Purchase Order"},
	},
	KindPurchaseRequisition: {
		route:  "/purchasing/requisitions",
		label:  "Purchase Requisition",
		labels: []string{"PR", "REQUISITION", "PURCHASE_REQUISITION", "Purchase Requisition", "Requisition"},
	},
	KindSalesOrder: {
		route:  "/sales/sales-orders",
		label:  "Sales Order",
		labels: []string{"SO", "SALES_ORDER", "Sales Order"},
	},
}

// kindByLabel is built once from kinds; keys are normalised labels.
var kindByLabel = func() map[string]DocumentKind {
	m := make(map[string]DocumentKind)
	for k, info := range kinds {
		for _, l := range info.labels {
			m[normalizeLabel(l)] = k
		}
	}
	return m
}()

// ParseDocumentKind resolves any known legacy label ("PV", "Payment Voucher", ...) to its canonical kind.
func ParseDocumentKind(label string) (DocumentKind, error) {
	if k, ok := kindByLabel[normalizeLabel(label)]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown document type %q", label)
}

// KindForRoute returns the kind served under route, e.g. "/finance/payment-vouchers".
func KindForRoute(route string) (DocumentKind, bool) {
	route = "/" + strings.Trim(route, "/")
	for k, info := range kinds {
		if info.route == route {
			return k, true
		}
	}
	return "", false
}

// AllDocumentKinds returns every kind in a stable order.
func AllDocumentKinds() []DocumentKind {
	return []DocumentKind{
		KindPaymentVoucher,
		KindReceiptVoucher,
		KindJournalVoucher,
		KindPurchaseOrder,
		KindPurchaseRequisition,
		KindSalesOrder,
	}
}

// IsValid returns true if k is one of the defined kinds
func (k DocumentKind) IsValid() bool {
	_, ok := kinds[k]
	return ok
}

// Route returns the API route of the kind's business module
func (k DocumentKind) Route() string {
	return kinds[k].route
}

// Label returns a human readable name
func (k DocumentKind) Label() string {
	if info, ok := kinds[k]; ok {
		return info.label
	}
	return string(k)
}

// IsVoucher reports whether the kind is stored in the finance vouchers table
func (k DocumentKind) IsVoucher() bool {
	return k == KindPaymentVoucher || k == KindReceiptVoucher || k == KindJournalVoucher
}

// String returns the canonical key
func (k DocumentKind) String() string {
	return string(k)
}

func normalizeLabel(label string) string {
	s := strings.ToUpper(strings.TrimSpace(label))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// DocumentSnapshot is the engine's read-only view of a business document
type DocumentSnapshot struct {
	Kind        DocumentKind `json:"document_type"`
	ID          int64        `json:"id"`
	CompanyID   int64        `json:"company_id"`
	Number      string       `json:"number"`
	Amount      *float64     `json:"amount"`
	Status      string       `json:"status"`
	Description string       `json:"description,omitempty"`
}
