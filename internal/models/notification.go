package models

import "time"

// Notification severity
const (
	NotificationTypeInfo    = "INFO"
	NotificationTypeSuccess = "SUCCESS"
	NotificationTypeWarning = "WARNING"
	NotificationTypeError   = "ERROR"
)

// Notification is one entry of a user's in-app inbox. JobID ties the row
// to the queue job that produced it so redelivery does not duplicate it.
type Notification struct {
	BaseModel
	UserID   uint       `json:"user_id" gorm:"<-:create;not null;index"`
	HostelID *uint      `json:"hostel_id" gorm:"<-:create;index"`
	JobID    string     `json:"-" gorm:"<-:create;size:64;uniqueIndex"`
	Event    string     `json:"event" gorm:"size:50;not null"`
	EntityID uint       `json:"entity_id"`
	Type     string     `json:"type" gorm:"size:20;not null;default:INFO"`
	Title    string     `json:"title" gorm:"size:255;not null"`
	Message  string     `json:"message" gorm:"type:text;not null"`
	IsRead   bool       `json:"is_read" gorm:"not null;default:false;index"`
	ReadAt   *time.Time `json:"read_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
