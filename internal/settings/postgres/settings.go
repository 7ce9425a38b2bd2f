package postgres

import (
	"errors"
	"time"

	"github.com/frahmantamala/attendance-management/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository implements the settings.Repository interface using GORM
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) settings.Repository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(key string) (*settings.Setting, error) {
	var setting settings.Setting
	err := r.db.Where("key = ?", key).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, settings.ErrSettingNotFound
		}
		return nil, err
	}
	return &setting, nil
}

func (r *SettingsRepository) Upsert(key string, value datatypes.JSON) error {
	setting := settings.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}
