package models

import "time"

// User roles.
const (
	RoleAdmin     = "admin"
	RoleTeller    = "teller"
	RoleCollector = "collector"
)

// User is an operator of the teller application.
type User struct {
	BaseModel
	Username    string     `gorm:"uniqueIndex;size:50;not null" json:"username"`
	FullName    string     `gorm:"size:100" json:"full_name"`
	Email       string     `gorm:"size:100" json:"email"`
	Password    string     `gorm:"size:255;not null" json:"-"`
	Role        string     `gorm:"size:20;default:'teller';index" json:"role"` // admin, teller, collector
	Status      string     `gorm:"size:20;default:'active'" json:"status"`     // active, frozen
	DeviceCode  string     `gorm:"size:20;index" json:"device_code"`           // assigned deposit machine, empty for none
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `gorm:"size:50" json:"last_login_ip"`
}

// IsActive reports whether the user may sign in.
func (u *User) IsActive() bool {
	return u.Status == "active"
}

// CanOperateDevice reports whether the user has a machine assigned.
func (u *User) CanOperateDevice() bool {
	return u.DeviceCode != ""
}
