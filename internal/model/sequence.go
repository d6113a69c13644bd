package model

import "time"

// DocumentSequence backs the numbering service: one row per document type,
// incremented with a single atomic UPDATE so concurrent conversions never
// draw the same number.
type DocumentSequence struct {
	DocType   string    `gorm:"type:varchar(20);primaryKey" json:"doc_type"`
	Prefix    string    `gorm:"type:varchar(10);not null" json:"prefix"`
	NextValue int64     `gorm:"not null;default:1" json:"next_value"`
	UpdatedAt time.Time `json:"updated_at"`
}
