package models

import "time"

// Complaint categories
const (
	ComplaintCategoryMaintenance = "MAINTENANCE"
	ComplaintCategoryCleanliness = "CLEANLINESS"
	ComplaintCategoryFood        = "FOOD"
	ComplaintCategoryElectricity = "ELECTRICITY"
	ComplaintCategoryWater       = "WATER"
	ComplaintCategorySecurity    = "SECURITY"
	ComplaintCategoryOther       = "OTHER"
)

// Complaint status
const (
	ComplaintStatusOpen       = "OPEN"
	ComplaintStatusInProgress = "IN_PROGRESS"
	ComplaintStatusResolved   = "RESOLVED"
	ComplaintStatusClosed     = "CLOSED"
	ComplaintStatusRejected   = "REJECTED"
)

type Complaint struct {
	BaseModel
	TenantID        uint       `json:"tenant_id" gorm:"<-:create;not null;index"`
	HostelID        uint       `json:"hostel_id" gorm:"<-:create;not null;index"`
	Title           string     `json:"title" gorm:"not null;size:255"`
	Description     string     `json:"description" gorm:"type:text;not null"`
	Category        string     `json:"category" gorm:"not null;size:20"`
	Priority        string     `json:"priority" gorm:"not null;size:10;default:'MEDIUM'"`
	Status          string     `json:"status" gorm:"not null;size:20;default:'OPEN';index"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	ResolutionNotes *string    `json:"resolution_notes" gorm:"type:text"`
}

func (Complaint) TableName() string {
	return "complaints"
}
