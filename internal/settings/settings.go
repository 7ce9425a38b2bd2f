package settings

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// Setting is a keyed singleton row. The company-wide network allowlist
// and the sheet-sync cursor both live here.
type Setting struct {
	Key       string         `json:"key" gorm:"primaryKey;column:key"`
	Value     datatypes.JSON `json:"value" gorm:"column:value"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

const (
	KeyCompanyAllowedIPs = "company_allowed_ips"
	KeySheetSyncCursor   = "sheet_sync_cursor"
)

var ErrSettingNotFound = errors.New("setting not found")
