package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer represents the B2B counterparty a document is issued to.
type Customer struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyName    string         `gorm:"type:varchar(255);not null" json:"company_name"`
	TaxCode        string         `gorm:"type:varchar(50)" json:"tax_code"`
	ContactName    string         `gorm:"type:varchar(255)" json:"contact_name"`
	Email          string         `gorm:"type:varchar(255)" json:"email"`
	Phone          string         `gorm:"type:varchar(20)" json:"phone"`
	BillingAddress string         `gorm:"type:text" json:"billing_address"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
