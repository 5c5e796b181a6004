package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User roles
const (
	RoleSuperAdmin  = "SUPER_ADMIN"
	RoleHostelAdmin = "HOSTEL_ADMIN"
	RoleTenant      = "TENANT"
	RoleVisitor     = "VISITOR"
)

// User login account. Role and HostelID are fixed once created.
type User struct {
	BaseModel
	Username         string     `json:"username" gorm:"uniqueIndex;not null;size:50"`
	Email            *string    `json:"email" gorm:"uniqueIndex;size:100"`
	Phone            *string    `json:"phone" gorm:"size:20"`
	PasswordHash     string     `json:"-" gorm:"not null;size:255"`
	Name             string     `json:"name" gorm:"not null;size:100"`
	Role             string     `json:"role" gorm:"<-:create;not null;size:20;index"`
	HostelID         *uint      `json:"hostel_id" gorm:"<-:create;index"`
	IsActive         bool       `json:"is_active" gorm:"not null;default:true"`
	VisitorExpiresAt *time.Time `json:"visitor_expires_at"`
	LastLoginAt      *time.Time `json:"last_login_at"`
}

func (u *User) TableName() string {
	return "users"
}

// SetPassword stores the bcrypt hash of password
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

// CheckPassword compares password against the stored hash
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// IsVisitorExpired is true for visitor accounts whose expiry is not in the future.
func (u *User) IsVisitorExpired(now time.Time) bool {
	if u.Role != RoleVisitor {
		return false
	}
	return u.VisitorExpiresAt == nil || !u.VisitorExpiresAt.After(now)
}
