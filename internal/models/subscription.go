package models

import (
	"time"

	"gorm.io/datatypes"
)

// Plan tiers
const (
	PlanTierFree     = "FREE"
	PlanTierStandard = "STANDARD"
	PlanTierPremium  = "PREMIUM"
)

// Feature flag keys
const (
	FeaturePayments  = "payments"
	FeatureAnalytics = "analytics"
	FeatureMess      = "mess"
)

// Plan is the editable catalogue entry. Nil maxima mean unlimited.
type Plan struct {
	BaseModel
	Name        string            `json:"name" gorm:"not null;size:100"`
	Tier        string            `json:"tier" gorm:"uniqueIndex;not null;size:20"`
	Description *string           `json:"description" gorm:"type:text"`
	MaxTenants  *int              `json:"max_tenants"`
	MaxRooms    *int              `json:"max_rooms"`
	Features    datatypes.JSONMap `json:"features"`
	IsActive    bool              `json:"is_active" gorm:"not null;default:true"`
}

func (Plan) TableName() string {
	return "plans"
}

// Subscription status
const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusExpired   = "EXPIRED"
	SubscriptionStatusCancelled = "CANCELLED"
)

// Subscription holds the limits snapshot copied from its plan at
// activation. Later plan edits reach it only through renewal.
type Subscription struct {
	BaseModel
	HostelID      uint              `json:"hostel_id" gorm:"<-:create;not null;index"`
	PlanID        uint              `json:"plan_id" gorm:"not null;index"`
	Status        string            `json:"status" gorm:"not null;size:20;index"`
	StartDate     time.Time         `json:"start_date" gorm:"not null"`
	EndDate       *time.Time        `json:"end_date"`
	AutoRenew     bool              `json:"auto_renew" gorm:"not null;default:false"`
	MaxTenants    *int              `json:"max_tenants"`
	MaxRooms      *int              `json:"max_rooms"`
	Features      datatypes.JSONMap `json:"features"`
	CancelledAt   *time.Time        `json:"cancelled_at"`
	LastRenewedAt *time.Time        `json:"last_renewed_at"`

	Plan *Plan `json:"plan,omitempty" gorm:"foreignKey:PlanID"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Snapshot copies the plan's current limits onto the subscription.
func (s *Subscription) Snapshot(plan *Plan) {
	s.PlanID = plan.ID
	s.MaxTenants = copyIntPtr(plan.MaxTenants)
	s.MaxRooms = copyIntPtr(plan.MaxRooms)
	features := datatypes.JSONMap{}
	for k, v := range plan.Features {
		features[k] = v
	}
	s.Features = features
}

// Limits resolves the snapshot into a Limits value.
func (s *Subscription) Limits() Limits {
	l := Limits{
		Source:     "subscription",
		MaxTenants: copyIntPtr(s.MaxTenants),
		MaxRooms:   copyIntPtr(s.MaxRooms),
		Features:   map[string]bool{},
	}
	for k, v := range s.Features {
		if enabled, ok := v.(bool); ok && enabled {
			l.Features[k] = true
		}
	}
	return l
}

// Limits is the effective limit set of a hostel.
type Limits struct {
	Source     string          `json:"source"` // subscription | free_tier
	MaxTenants *int            `json:"max_tenants"`
	MaxRooms   *int            `json:"max_rooms"`
	Features   map[string]bool `json:"features"`
}

func (l Limits) FeatureEnabled(name string) bool {
	return l.Features[name]
}

func copyIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
