package models

import "time"

// TenantProfile is the 1:1 residency record of a TENANT user.
// CurrentBedID is set exactly when the referenced bed is OCCUPIED by this profile.
type TenantProfile struct {
	BaseModel
	SoftDelete
	UserID        uint       `json:"user_id" gorm:"<-:create;uniqueIndex;not null"`
	HostelID      uint       `json:"hostel_id" gorm:"<-:create;not null;index"`
	FullName      string     `json:"full_name" gorm:"not null;size:100"`
	Phone         *string    `json:"phone" gorm:"size:20"`
	GuardianName  *string    `json:"guardian_name" gorm:"size:100"`
	GuardianPhone *string    `json:"guardian_phone" gorm:"size:20"`
	CurrentBedID  *uint      `json:"current_bed_id" gorm:"index"`
	CheckInDate   *time.Time `json:"check_in_date"`
	CheckOutDate  *time.Time `json:"check_out_date"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (TenantProfile) TableName() string {
	return "tenant_profiles"
}
