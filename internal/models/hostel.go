package models

// Hostel is the tenant-isolation root. Code is written once on create.
type Hostel struct {
	BaseModel
	SoftDelete
	Name     string  `json:"name" gorm:"not null;size:255"`
	Code     string  `json:"code" gorm:"<-:create;uniqueIndex;not null;size:50"`
	Address  *string `json:"address" gorm:"type:text"`
	City     *string `json:"city" gorm:"size:100"`
	Phone    *string `json:"phone" gorm:"size:20"`
	Email    *string `json:"email" gorm:"size:255"`
	Timezone string  `json:"timezone" gorm:"size:50;default:'Asia/Kolkata'"`
	IsActive bool    `json:"is_active" gorm:"not null;default:true;index"`
}

func (Hostel) TableName() string {
	return "hostels"
}
