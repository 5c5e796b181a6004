package models

import "time"

// Leave status
const (
	LeaveStatusPending   = "PENDING"
	LeaveStatusApproved  = "APPROVED"
	LeaveStatusRejected  = "REJECTED"
	LeaveStatusCancelled = "CANCELLED"
)

type LeaveApplication struct {
	BaseModel
	TenantID      uint       `json:"tenant_id" gorm:"<-:create;not null;index"`
	HostelID      uint       `json:"hostel_id" gorm:"<-:create;not null;index"`
	StartDate     time.Time  `json:"start_date" gorm:"not null"`
	EndDate       time.Time  `json:"end_date" gorm:"not null"`
	Reason        string     `json:"reason" gorm:"type:text;not null"`
	Status        string     `json:"status" gorm:"not null;size:20;default:'PENDING'"`
	ApproverID    *uint      `json:"approver_id"`
	ApprovedAt    *time.Time `json:"approved_at"`
	ApproverNotes *string    `json:"approver_notes" gorm:"type:text"`
}

func (LeaveApplication) TableName() string {
	return "leave_applications"
}
