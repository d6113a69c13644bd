package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role name constants used by the governance matrix
const (
	RoleAdmin           = "admin"
	RoleSalesManager    = "sales_manager"
	RoleSalesExecutive  = "sales_executive"
	RoleFinanceAccounts = "finance_accounts"
)

// User represents the central user entity for logic and database structure
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email    string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone    string    `gorm:"type:varchar(20)" json:"phone"`
	Password string    `gorm:"type:varchar(255);not null" json:"-"` // Omit password from JSON requests/responses
	Role     string    `gorm:"type:varchar(50);not null" json:"role"`

	// Delegation: a non-manager holding an active delegation window gains
	// sales_manager-equivalent approval rights for that window only.
	DelegatedApprovalTo *uuid.UUID `gorm:"type:uuid" json:"delegated_approval_to"`
	DelegationStart     *time.Time `json:"delegation_start"`
	DelegationEnd       *time.Time `json:"delegation_end"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HasActiveDelegation reports whether the user holds a delegation window
// covering now. Window bounds are inclusive.
func (u *User) HasActiveDelegation(now time.Time) bool {
	if u.DelegatedApprovalTo == nil || u.DelegationStart == nil || u.DelegationEnd == nil {
		return false
	}
	return !now.Before(*u.DelegationStart) && !now.After(*u.DelegationEnd)
}

// RefreshToken stores long-lived tokens allowing users to request new access tokens
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
