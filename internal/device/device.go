package device

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// Info captures where a claimed device identifier came from. It is stored
// alongside the change request and copied onto the employee row when the
// binding is approved.
type Info struct {
	UserAgent string `json:"user_agent"`
	IP        string `json:"ip"`
}

func unmarshalInfo(raw datatypes.JSON, info *Info) error {
	return json.Unmarshal(raw, info)
}

func (i Info) ToJSON() datatypes.JSON {
	b, err := json.Marshal(i)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// ValidStatus reports whether s is one of the four request statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// ChangeRequest is a device-rebinding request awaiting admin disposition.
// At most one pending request may exist per user at any time; the
// repository enforces this with a partial unique index.
type ChangeRequest struct {
	ID          int64          `json:"id" gorm:"primaryKey"`
	UserID      int64          `json:"user_id" gorm:"column:user_id;not null;index"`
	DeviceID    string         `json:"device_id" gorm:"column:device_id;not null"`
	DeviceInfo  datatypes.JSON `json:"device_info" gorm:"column:device_info"`
	Status      string         `json:"status" gorm:"column:status;not null;default:pending"`
	RequestedAt time.Time      `json:"requested_at" gorm:"column:requested_at"`
	ReviewedBy  *int64         `json:"reviewed_by,omitempty" gorm:"column:reviewed_by"`
	ReviewedAt  *time.Time     `json:"reviewed_at,omitempty" gorm:"column:reviewed_at"`
	Note        string         `json:"note,omitempty" gorm:"column:note"`
	CreatedAt   time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

func (ChangeRequest) TableName() string {
	return "device_change_requests"
}

func (r *ChangeRequest) IsPending() bool {
	return r.Status == StatusPending
}

// RequestWithEmployee is the admin list view joined with principal
// display info.
type RequestWithEmployee struct {
	ChangeRequest
	EmployeeName  string `json:"employee_name" gorm:"column:employee_name"`
	EmployeeEmail string `json:"employee_email" gorm:"column:employee_email"`
}

// UserRequestStats is the per-user diagnostics row used for support triage.
type UserRequestStats struct {
	UserID         int64      `json:"user_id" gorm:"column:user_id"`
	Total          int64      `json:"total" gorm:"column:total"`
	Pending        int64      `json:"pending" gorm:"column:pending"`
	Approved       int64      `json:"approved" gorm:"column:approved"`
	Rejected       int64      `json:"rejected" gorm:"column:rejected"`
	Cancelled      int64      `json:"cancelled" gorm:"column:cancelled"`
	FirstRequested *time.Time `json:"first_requested,omitempty" gorm:"column:first_requested"`
	LastRequested  *time.Time `json:"last_requested,omitempty" gorm:"column:last_requested"`
}

var (
	ErrRequestNotFound  = errors.New("device change request not found")
	ErrAlreadyReviewed  = errors.New("device change request already reviewed")
	ErrNotRequestOwner  = errors.New("not the owner of this device change request")
	ErrNotPending       = errors.New("device change request is not pending")
	ErrInvalidStatus    = errors.New("invalid device change request status")
	ErrDuplicatePending = errors.New("a pending device change request already exists")
)
