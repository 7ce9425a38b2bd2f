package employee

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// Employee is the principal record consumed by the policy evaluator: the
// bound device is the single trusted device for attendance actions, and
// allowed_ips is the per-employee network allowlist tier.
type Employee struct {
	ID              int64          `json:"id" gorm:"primaryKey"`
	Email           string         `json:"email" gorm:"column:email;uniqueIndex;not null"`
	Name            string         `json:"name" gorm:"column:name;not null"`
	Role            string         `json:"role" gorm:"column:role;not null;default:employee"`
	PasswordHash    string         `json:"-" gorm:"column:password_hash;not null"`
	IsActive        bool           `json:"is_active" gorm:"column:is_active;default:true"`
	BoundDeviceID   *string        `json:"bound_device_id,omitempty" gorm:"column:bound_device_id"`
	BoundDeviceInfo datatypes.JSON `json:"bound_device_info,omitempty" gorm:"column:bound_device_info"`
	BoundAt         *time.Time     `json:"bound_at,omitempty" gorm:"column:bound_at"`
	AllowedIPs      datatypes.JSON `json:"allowed_ips,omitempty" gorm:"column:allowed_ips"`
	CreatedAt       time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

func (Employee) TableName() string {
	return "employees"
}

func (e *Employee) IsAdmin() bool {
	return e.Role == RoleAdmin
}

func (e *Employee) HasBoundDevice() bool {
	return e.BoundDeviceID != nil && *e.BoundDeviceID != ""
}

// AllowedNetworks decodes the per-employee allowlist. A malformed column
// yields an empty list rather than an error; individual entries are
// validated at evaluation time.
func (e *Employee) AllowedNetworks() []string {
	if len(e.AllowedIPs) == 0 {
		return nil
	}
	var nets []string
	if err := json.Unmarshal(e.AllowedIPs, &nets); err != nil {
		return nil
	}
	return nets
}

var (
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrInvalidRole      = errors.New("role must be employee or admin")
)
