package attendance

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

const (
	TypeIn  = "in"
	TypeOut = "out"
)

const (
	StatusRecorded = "recorded"
	StatusBlocked  = "blocked"
	StatusPending  = "pending"
)

// BreakEntry is one break taken during an open check-in. End is nil while
// the break is still running.
type BreakEntry struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Record is one attendance event. For a given user the sequence of types
// across ascending timestamps strictly alternates: an in never follows an
// in without an intervening out.
type Record struct {
	ID        int64          `json:"id" gorm:"primaryKey"`
	UserID    int64          `json:"user_id" gorm:"column:user_id;not null;index"`
	Type      string         `json:"type" gorm:"column:type;not null"`
	Timestamp time.Time      `json:"timestamp" gorm:"column:timestamp;not null;index"`
	IP        string         `json:"ip" gorm:"column:ip"`
	DeviceID  string         `json:"device_id" gorm:"column:device_id"`
	Status    string         `json:"status" gorm:"column:status;not null;default:recorded"`
	Breaks    datatypes.JSON `json:"breaks" gorm:"column:breaks"`
	OnBreak   bool           `json:"on_break" gorm:"column:on_break;default:false"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

func (Record) TableName() string {
	return "attendance_records"
}

// BreakList decodes the break entries. A missing or malformed column
// yields an empty list.
func (r *Record) BreakList() []BreakEntry {
	if len(r.Breaks) == 0 {
		return nil
	}
	var breaks []BreakEntry
	if err := json.Unmarshal(r.Breaks, &breaks); err != nil {
		return nil
	}
	return breaks
}

func (r *Record) SetBreaks(breaks []BreakEntry) error {
	raw, err := json.Marshal(breaks)
	if err != nil {
		return err
	}
	r.Breaks = datatypes.JSON(raw)
	return nil
}

func ValidType(t string) bool {
	return t == TypeIn || t == TypeOut
}

var (
	ErrInvalidType       = errors.New("attendance type must be in or out")
	ErrSequenceViolation = errors.New("attendance marks must alternate between in and out")
	ErrNotCheckedIn      = errors.New("no open check-in to take a break from")
	ErrAlreadyOnBreak    = errors.New("a break is already running")
	ErrNotOnBreak        = errors.New("no break is running")
)
