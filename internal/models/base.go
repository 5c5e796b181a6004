package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel common columns
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SoftDelete marks a row hidden from default queries without removing it.
// Rows stay addressable through Unscoped lookups and can be restored.
type SoftDelete struct {
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// IsDeleted reports whether the soft-delete flag is set
func (s SoftDelete) IsDeleted() bool {
	return s.DeletedAt.Valid
}
