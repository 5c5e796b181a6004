package models

import "time"

// Notice board entry. Public notices are visible to visitors.
type Notice struct {
	BaseModel
	HostelID    uint       `json:"hostel_id" gorm:"<-:create;not null;index"`
	Title       string     `json:"title" gorm:"not null;size:255"`
	Content     string     `json:"content" gorm:"type:text;not null"`
	IsPublic    bool       `json:"is_public" gorm:"not null;default:false"`
	PublishedAt time.Time  `json:"published_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (Notice) TableName() string {
	return "notices"
}

// MessMenu one meal slot of a hostel's weekly menu
type MessMenu struct {
	BaseModel
	HostelID  uint   `json:"hostel_id" gorm:"<-:create;not null;index"`
	DayOfWeek int    `json:"day_of_week" gorm:"not null"` // 0 = Sunday
	MealType  string `json:"meal_type" gorm:"not null;size:20"`
	Items     string `json:"items" gorm:"type:text;not null"`
	IsPublic  bool   `json:"is_public" gorm:"not null;default:true"`
}

func (MessMenu) TableName() string {
	return "mess_menus"
}
