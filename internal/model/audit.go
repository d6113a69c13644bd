package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateQuote        = "CREATE_QUOTE"
	ActionUpdateQuote        = "UPDATE_QUOTE"
	ActionSendQuote          = "SEND_QUOTE"
	ActionApproveQuote       = "APPROVE_QUOTE"
	ActionRejectQuote        = "REJECT_QUOTE"
	ActionReviseQuote        = "REVISE_QUOTE"
	ActionQuoteInvoiced      = "QUOTE_INVOICED"
	ActionCloseQuotePaid     = "CLOSE_QUOTE_PAID"
	ActionConvertQuote       = "CONVERT_QUOTE_TO_ORDER"
	ActionConfirmOrder       = "CONFIRM_ORDER"
	ActionCancelOrder        = "CANCEL_ORDER"
	ActionFulfillOrder       = "FULFILL_ORDER"
	ActionConvertOrder       = "CONVERT_ORDER_TO_INVOICE"
	ActionConfirmInvoice     = "CONFIRM_INVOICE"
	ActionRecordPayment      = "RECORD_PAYMENT"
	ActionLockMasterInvoice  = "LOCK_MASTER_INVOICE"
	ActionCancelInvoice      = "CANCEL_INVOICE"
	ActionCreateProduct      = "CREATE_PRODUCT"
	ActionUpdateProduct      = "UPDATE_PRODUCT"
	ActionDeleteProduct      = "DELETE_PRODUCT"
	ActionAdjustStock        = "ADJUST_STOCK"
	ActionCreateCustomer     = "CREATE_CUSTOMER"
	ActionUpdateCustomer     = "UPDATE_CUSTOMER"
	ActionAssignDelegation   = "ASSIGN_DELEGATION"
	ActionRevokeDelegation   = "REVOKE_DELEGATION"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated bot
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string     `gorm:"type:varchar(30);index" json:"entity_type"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:text" json:"details"`                       // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
