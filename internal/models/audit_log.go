package models

import "gorm.io/datatypes"

// Audit actions
const (
	AuditActionCreate   = "CREATE"
	AuditActionUpdate   = "UPDATE"
	AuditActionDelete   = "DELETE"
	AuditActionRestore  = "RESTORE"
	AuditActionAssign   = "ASSIGN"
	AuditActionVacate   = "VACATE"
	AuditActionPayment  = "PAYMENT"
	AuditActionRefund   = "REFUND"
	AuditActionCancel   = "CANCEL"
	AuditActionActivate = "ACTIVATE"
)

// AuditLog is written in the same transaction as the change it records.
type AuditLog struct {
	BaseModel
	UserID     *uint          `json:"user_id" gorm:"index"`
	HostelID   *uint          `json:"hostel_id" gorm:"index"`
	EntityType string         `json:"entity_type" gorm:"not null;size:50;index:idx_audit_entity"`
	EntityID   uint           `json:"entity_id" gorm:"index:idx_audit_entity"`
	Action     string         `json:"action" gorm:"not null;size:20"`
	NewValues  datatypes.JSON `json:"new_values"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
