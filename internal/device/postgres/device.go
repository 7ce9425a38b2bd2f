package postgres

import (
	"errors"
	"time"

	"github.com/frahmantamala/attendance-management/internal/device"
	"gorm.io/gorm"
)

// ChangeRequestRepository implements the device.Repository interface using GORM
type ChangeRequestRepository struct {
	db *gorm.DB
}

func NewChangeRequestRepository(db *gorm.DB) device.Repository {
	return &ChangeRequestRepository{db: db}
}

func (r *ChangeRequestRepository) Create(req *device.ChangeRequest) error {
	return r.db.Create(req).Error
}

func (r *ChangeRequestRepository) GetByID(id int64) (*device.ChangeRequest, error) {
	var req device.ChangeRequest
	err := r.db.Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, device.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// GetPendingForUser returns the user's pending request, or nil when none
// exists. The partial unique index guarantees at most one row matches.
func (r *ChangeRequestRepository) GetPendingForUser(userID int64) (*device.ChangeRequest, error) {
	var req device.ChangeRequest
	err := r.db.Where("user_id = ? AND status = ?", userID, device.StatusPending).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *ChangeRequestRepository) ListByUser(userID int64) ([]*device.ChangeRequest, error) {
	var reqs []*device.ChangeRequest
	err := r.db.Where("user_id = ?", userID).
		Order("requested_at DESC").
		Find(&reqs).Error
	return reqs, err
}

func (r *ChangeRequestRepository) ListWithEmployee(status string, limit, offset int) ([]*device.RequestWithEmployee, error) {
	var rows []*device.RequestWithEmployee
	q := r.db.Table("device_change_requests").
		Select("device_change_requests.*, employees.name AS employee_name, employees.email AS employee_email").
		Joins("JOIN employees ON employees.id = device_change_requests.user_id").
		Order("device_change_requests.requested_at ASC").
		Limit(limit).
		Offset(offset)
	if status != "" {
		q = q.Where("device_change_requests.status = ?", status)
	}
	err := q.Scan(&rows).Error
	return rows, err
}

func (r *ChangeRequestRepository) Update(req *device.ChangeRequest) error {
	req.UpdatedAt = time.Now()
	return r.db.Save(req).Error
}

// SupersedePending rejects every pending request for the user except the
// one being approved, stamping the auto-generated note.
func (r *ChangeRequestRepository) SupersedePending(userID, exceptID, reviewerID int64, note string, reviewedAt time.Time) (int64, error) {
	res := r.db.Model(&device.ChangeRequest{}).
		Where("user_id = ? AND id <> ? AND status = ?", userID, exceptID, device.StatusPending).
		Updates(map[string]interface{}{
			"status":      device.StatusRejected,
			"reviewed_by": reviewerID,
			"reviewed_at": reviewedAt,
			"note":        note,
			"updated_at":  time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *ChangeRequestRepository) Delete(id int64) error {
	return r.db.Delete(&device.ChangeRequest{}, id).Error
}

func (r *ChangeRequestRepository) DeleteByStatus(status string) (int64, error) {
	res := r.db.Where("status = ?", status).Delete(&device.ChangeRequest{})
	return res.RowsAffected, res.Error
}

func (r *ChangeRequestRepository) StatsByUser() ([]*device.UserRequestStats, error) {
	var stats []*device.UserRequestStats
	err := r.db.Table("device_change_requests").
		Select(`user_id,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'approved') AS approved,
			COUNT(*) FILTER (WHERE status = 'rejected') AS rejected,
			COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled,
			MIN(requested_at) AS first_requested,
			MAX(requested_at) AS last_requested`).
		Group("user_id").
		Order("user_id").
		Scan(&stats).Error
	return stats, err
}
