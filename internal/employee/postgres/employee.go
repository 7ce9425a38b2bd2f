package postgres

import (
	"errors"
	"time"

	"github.com/frahmantamala/attendance-management/internal/employee"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EmployeeRepository implements the employee.Repository interface using GORM
type EmployeeRepository struct {
	db *gorm.DB
}

func NewEmployeeRepository(db *gorm.DB) employee.Repository {
	return &EmployeeRepository{db: db}
}

func (r *EmployeeRepository) Create(emp *employee.Employee) error {
	return r.db.Create(emp).Error
}

func (r *EmployeeRepository) GetByID(id int64) (*employee.Employee, error) {
	var emp employee.Employee
	err := r.db.Where("id = ?", id).First(&emp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, employee.ErrEmployeeNotFound
		}
		return nil, err
	}
	return &emp, nil
}

func (r *EmployeeRepository) GetByEmail(email string) (*employee.Employee, error) {
	var emp employee.Employee
	err := r.db.Where("email = ?", email).First(&emp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, employee.ErrEmployeeNotFound
		}
		return nil, err
	}
	return &emp, nil
}

func (r *EmployeeRepository) List(limit, offset int) ([]*employee.Employee, error) {
	var emps []*employee.Employee
	err := r.db.Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&emps).Error
	return emps, err
}

func (r *EmployeeRepository) Update(emp *employee.Employee) error {
	emp.UpdatedAt = time.Now()
	return r.db.Save(emp).Error
}

func (r *EmployeeRepository) UpdateAllowedIPs(id int64, allowedIPs datatypes.JSON) error {
	return r.db.Model(&employee.Employee{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"allowed_ips": allowedIPs,
			"updated_at":  time.Now(),
		}).Error
}

// BindDevice replaces the device binding in a single update so readers
// never observe a half-written binding.
func (r *EmployeeRepository) BindDevice(id int64, deviceID string, info datatypes.JSON, boundAt time.Time) error {
	res := r.db.Model(&employee.Employee{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"bound_device_id":   deviceID,
			"bound_device_info": info,
			"bound_at":          boundAt,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return employee.ErrEmployeeNotFound
	}
	return nil
}

func (r *EmployeeRepository) Delete(id int64) error {
	return r.db.Delete(&employee.Employee{}, id).Error
}
