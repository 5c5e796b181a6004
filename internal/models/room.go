package models

// Room types
const (
	RoomTypeSingle    = "SINGLE"
	RoomTypeDouble    = "DOUBLE"
	RoomTypeTriple    = "TRIPLE"
	RoomTypeDormitory = "DORMITORY"
)

// Room belongs to exactly one hostel; Number is unique within it.
type Room struct {
	BaseModel
	SoftDelete
	HostelID    uint    `json:"hostel_id" gorm:"<-:create;not null;uniqueIndex:idx_rooms_hostel_number"`
	Number      string  `json:"number" gorm:"not null;size:50;uniqueIndex:idx_rooms_hostel_number"`
	Floor       int     `json:"floor" gorm:"not null;default:0"`
	RoomType    string  `json:"room_type" gorm:"not null;size:20"`
	Capacity    int     `json:"capacity" gorm:"not null"`
	Description *string `json:"description" gorm:"size:500"`

	Beds []Bed `json:"beds,omitempty" gorm:"foreignKey:RoomID"`
}

func (Room) TableName() string {
	return "rooms"
}

// Bed occupancy states
const (
	BedStatusFree     = "FREE"
	BedStatusOccupied = "OCCUPIED"
)

// Bed HostelID is denormalized from its room and never changes.
type Bed struct {
	BaseModel
	SoftDelete
	RoomID          uint   `json:"room_id" gorm:"<-:create;not null;index"`
	HostelID        uint   `json:"hostel_id" gorm:"<-:create;not null;index"`
	Number          string `json:"number" gorm:"not null;size:10"`
	Status          string `json:"status" gorm:"not null;size:20;default:'FREE'"`
	CurrentTenantID *uint  `json:"current_tenant_id" gorm:"index"`
}

func (Bed) TableName() string {
	return "beds"
}

func (b *Bed) IsOccupied() bool {
	return b.Status == BedStatusOccupied
}

// Consistent reports whether Status and CurrentTenantID agree.
func (b *Bed) Consistent() bool {
	return b.IsOccupied() == (b.CurrentTenantID != nil)
}
