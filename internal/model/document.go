package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DocumentType enum constants
const (
	DocTypeQuote      = "QUOTE"
	DocTypeSalesOrder = "SALES_ORDER"
	DocTypeInvoice    = "INVOICE"
)

// Quote status constants
const (
	QuoteStatusDraft           = "draft"
	QuoteStatusSent            = "sent"
	QuoteStatusApproved        = "approved"
	QuoteStatusRejected        = "rejected"
	QuoteStatusInvoiced        = "invoiced"
	QuoteStatusClosedPaid      = "closed_paid"
	QuoteStatusClosedCancelled = "closed_cancelled"
)

// SalesOrder status constants
const (
	OrderStatusDraft     = "draft"
	OrderStatusConfirmed = "confirmed"
	OrderStatusFulfilled = "fulfilled"
	OrderStatusCancelled = "cancelled"
)

// Invoice status constants
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusConfirmed = "confirmed"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusPartial   = "partial"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Payment status is an orthogonal axis tracked separately from document status.
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
)

// LineItem belongs to exactly one parent document (quote, sales order or
// invoice). Items are copied by value during conversion: the successor
// document owns independent rows, source items are never re-parented.
type LineItem struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentType string          `gorm:"type:varchar(20);not null;index:idx_line_doc" json:"document_type"`
	DocumentID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_line_doc" json:"document_id"`
	ProductID    *uuid.UUID      `gorm:"type:uuid;index" json:"product_id"`
	Description  string          `gorm:"type:varchar(255);not null" json:"description"`
	Quantity     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"unit_price"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"subtotal"` // quantity * unit_price
	TaxCode      string          `gorm:"type:varchar(20)" json:"tax_code"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (li *LineItem) BeforeCreate(tx *gorm.DB) error {
	if li.ID == uuid.Nil {
		li.ID = uuid.New()
	}
	return nil
}

// Quote is the opening document of the sell-side lifecycle. A quote has at
// most one sales order derived from it, enforced by a unique index on
// sales_orders.quote_id.
type Quote struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	QuoteNo    string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"quote_no"`
	Status     string          `gorm:"type:varchar(30);not null;default:'draft';index" json:"status"`
	Version    int             `gorm:"not null;default:1" json:"version"`
	CustomerID *uuid.UUID      `gorm:"type:uuid;index" json:"customer_id"`
	Customer   *Customer       `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	OwnerID    *uuid.UUID      `gorm:"type:uuid;index" json:"owner_id"`
	Owner      *User           `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Subtotal   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"subtotal"`
	Discount   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"discount"`
	Shipping   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"shipping"`
	CGST       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"cgst"`
	SGST       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"sgst"`
	IGST       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"igst"`
	Total      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total"`
	Notes      string          `gorm:"type:text" json:"notes"`
	Items      []LineItem      `gorm:"polymorphic:Document;polymorphicValue:QUOTE" json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (q *Quote) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// QuoteVersion is an immutable snapshot of a quote taken by Revise. It stores
// the full monetary state plus a serialized copy of the line items, tagged
// with the version number the quote carried before the revision.
type QuoteVersion struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	QuoteID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_quote_version,unique" json:"quote_id"`
	Version   int             `gorm:"not null;index:idx_quote_version,unique" json:"version"`
	Status    string          `gorm:"type:varchar(30);not null" json:"status"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"subtotal"`
	Discount  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"discount"`
	Shipping  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"shipping"`
	CGST      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"cgst"`
	SGST      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"sgst"`
	IGST      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"igst"`
	Total     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total"`
	ItemsJSON string          `gorm:"type:text;not null" json:"items_json"`
	Reason    string          `gorm:"type:varchar(255)" json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

func (v *QuoteVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// SalesOrder is derived from an approved quote or created standalone.
// QuoteID carries a unique index: at most one order per quote, enforced by
// the database as the authoritative duplicate-conversion guard.
type SalesOrder struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNo       string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"order_no"`
	Status        string          `gorm:"type:varchar(30);not null;default:'draft';index" json:"status"`
	QuoteID       *uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"quote_id"`
	Quote         *Quote          `gorm:"foreignKey:QuoteID" json:"quote,omitempty"`
	CustomerID    *uuid.UUID      `gorm:"type:uuid;index" json:"customer_id"`
	Customer      *Customer       `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	OwnerID       *uuid.UUID      `gorm:"type:uuid;index" json:"owner_id"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"subtotal"`
	Discount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"discount"`
	Shipping      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"shipping"`
	CGST          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"cgst"`
	SGST          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"sgst"`
	IGST          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"igst"`
	Total         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total"`
	DeliveryNotes string          `gorm:"type:text" json:"delivery_notes"`
	Items         []LineItem      `gorm:"polymorphic:Document;polymorphicValue:SALES_ORDER" json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (o *SalesOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Invoice is derived from a sales order or created standalone. A sales order
// may have multiple invoices (partial invoicing), so OrderID is indexed but
// deliberately not unique.
type Invoice struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceNo     string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"invoice_no"`
	Status        string          `gorm:"type:varchar(30);not null;default:'draft';index" json:"status"`
	PaymentStatus string          `gorm:"type:varchar(20);not null;default:'unpaid';index" json:"payment_status"`
	OrderID       *uuid.UUID      `gorm:"type:uuid;index" json:"order_id"`
	Order         *SalesOrder     `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	CustomerID    *uuid.UUID      `gorm:"type:uuid;index" json:"customer_id"`
	Customer      *Customer       `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	OwnerID       *uuid.UUID      `gorm:"type:uuid;index" json:"owner_id"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"subtotal"`
	Discount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"discount"`
	Shipping      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"shipping"`
	CGST          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"cgst"`
	SGST          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"sgst"`
	IGST          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"igst"`
	Total         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"amount_paid"`
	Locked        bool            `gorm:"not null;default:false" json:"locked"`
	DueDate       *time.Time      `json:"due_date"`
	DeliveryNotes string          `gorm:"type:text" json:"delivery_notes"`
	Items         []LineItem      `gorm:"polymorphic:Document;polymorphicValue:INVOICE" json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
