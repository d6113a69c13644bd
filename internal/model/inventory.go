package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product carries the three inventory counters. AvailableQuantity is derived
// (available = stock - reserved) but stored for read efficiency; every
// mutating operation re-establishes the invariant in the same atomic
// statement that changes stock or reserved.
type Product struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SKU               string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"sku"`
	Name              string          `gorm:"type:varchar(255);not null" json:"name"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"unit_price"`
	StockQuantity     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"stock_quantity"`
	ReservedQuantity  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"reserved_quantity"`
	AvailableQuantity decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"available_quantity"`
	TaxCode           string          `gorm:"type:varchar(20)" json:"tax_code"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// StockMovement type constants
const (
	MovementReserve = "RESERVE"
	MovementRelease = "RELEASE"
	MovementConsume = "CONSUME"
	MovementAdjust  = "ADJUST"
)

// StockMovement records every ledger mutation strictly, with the counter
// values as they stood after the movement was applied.
type StockMovement struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	DocumentType   string          `gorm:"type:varchar(20);index" json:"document_type"`
	DocumentID     *uuid.UUID      `gorm:"type:uuid;index" json:"document_id"` // Nullable for manual adjustments
	MovementType   string          `gorm:"type:varchar(10);not null" json:"movement_type"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"quantity"`
	StockAfter     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"stock_after"`
	ReservedAfter  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"reserved_after"`
	AvailableAfter decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"available_after"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (m *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
