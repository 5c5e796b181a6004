// Package identity turns an authenticated principal into the request-scoped
// Identity consumed by the scope resolver and every service call.
package identity

import (
	"fmt"
	"time"

	"hostelops/internal/models"
)

// Role is the closed set of principal roles.
type Role string

const (
	SuperAdmin  Role = models.RoleSuperAdmin
	HostelAdmin Role = models.RoleHostelAdmin
	Tenant      Role = models.RoleTenant
	Visitor     Role = models.RoleVisitor
)

// Valid reports whether r is one of the four known roles
func (r Role) Valid() bool {
	switch r {
	case SuperAdmin, HostelAdmin, Tenant, Visitor:
		return true
	}
	return false
}

// Identity is passed explicitly through every call; nothing reads it from
// ambient state.
type Identity struct {
	UserID        uint       `json:"user_id"`
	Role          Role       `json:"role"`
	HostelID      *uint      `json:"hostel_id"`
	VisitorExpiry *time.Time `json:"visitor_expiry"`
}

// New validates the role/hostel pairing. Only SUPER_ADMIN has no home hostel.
func New(userID uint, role Role, hostelID *uint, visitorExpiry *time.Time) (*Identity, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if role == SuperAdmin && hostelID != nil {
		return nil, fmt.Errorf("super admin must not carry a home hostel")
	}
	if role != SuperAdmin && hostelID == nil {
		return nil, fmt.Errorf("role %s requires a home hostel", role)
	}
	if role == Visitor && visitorExpiry == nil {
		return nil, fmt.Errorf("visitor identity requires an expiry")
	}
	return &Identity{
		UserID:        userID,
		Role:          role,
		HostelID:      hostelID,
		VisitorExpiry: visitorExpiry,
	}, nil
}

// FromUser builds the identity of a loaded user row.
func FromUser(u *models.User) (*Identity, error) {
	return New(u.ID, Role(u.Role), u.HostelID, u.VisitorExpiresAt)
}

// HomeHostel returns the home hostel id, 0 for SUPER_ADMIN.
func (id *Identity) HomeHostel() uint {
	if id.HostelID == nil {
		return 0
	}
	return *id.HostelID
}

func (id *Identity) IsSuperAdmin() bool { return id.Role == SuperAdmin }
