package models

import (
	"time"

	"gorm.io/gorm"
)

// Timestamps adds GORM auto-times. Records embedding only Timestamps are
// never deleted.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// SoftDelete hides deleted rows from every default query.
type SoftDelete struct {
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
