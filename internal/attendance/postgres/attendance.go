package postgres

import (
	"errors"
	"time"

	"github.com/frahmantamala/attendance-management/internal/attendance"
	"gorm.io/gorm"
)

// AttendanceRepository implements the attendance.Repository interface using GORM
type AttendanceRepository struct {
	db *gorm.DB
}

func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) Create(rec *attendance.Record) error {
	return r.db.Create(rec).Error
}

// GetLastForUser returns the user's most recent record by timestamp, or
// nil when the user has no records yet.
func (r *AttendanceRepository) GetLastForUser(userID int64) (*attendance.Record, error) {
	var rec attendance.Record
	err := r.db.Where("user_id = ?", userID).
		Order("timestamp DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *AttendanceRepository) Update(rec *attendance.Record) error {
	rec.UpdatedAt = time.Now()
	return r.db.Save(rec).Error
}

func (r *AttendanceRepository) ListForUser(userID int64, from, to time.Time, limit, offset int) ([]*attendance.Record, int64, error) {
	q := r.db.Model(&attendance.Record{}).
		Where("user_id = ? AND timestamp <= ?", userID, to)
	if !from.IsZero() {
		q = q.Where("timestamp >= ?", from)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []*attendance.Record
	err := q.Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	return recs, total, err
}

// ListAfterID returns recorded entries past the export cursor, oldest
// first. Used by the sheet mirror.
func (r *AttendanceRepository) ListAfterID(id int64, limit int) ([]*attendance.Record, error) {
	var recs []*attendance.Record
	err := r.db.Where("id > ? AND status = ?", id, attendance.StatusRecorded).
		Order("id ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
