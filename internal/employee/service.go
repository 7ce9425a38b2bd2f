package employee

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/frahmantamala/attendance-management/internal/device"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

// Repository defines the data access methods for employee records.
type Repository interface {
	Create(emp *Employee) error
	GetByID(id int64) (*Employee, error)
	GetByEmail(email string) (*Employee, error)
	List(limit, offset int) ([]*Employee, error)
	Update(emp *Employee) error
	UpdateAllowedIPs(id int64, allowedIPs datatypes.JSON) error
	BindDevice(id int64, deviceID string, info datatypes.JSON, boundAt time.Time) error
	Delete(id int64) error
}

// Service handles employee management and exposes the device-binding
// mutation consumed by the policy evaluator and the review workflow.
type Service struct {
	repo       Repository
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo Repository, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func (s *Service) Create(dto CreateEmployeeDTO) (*Employee, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByEmail(dto.Email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	role := dto.Role
	if role == "" {
		role = RoleEmployee
	}

	emp := &Employee{
		Email:        dto.Email,
		Name:         dto.Name,
		Role:         role,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if len(dto.AllowedIPs) > 0 {
		raw, err := json.Marshal(dto.AllowedIPs)
		if err != nil {
			return nil, err
		}
		emp.AllowedIPs = datatypes.JSON(raw)
	}

	if err := s.repo.Create(emp); err != nil {
		s.logger.Error("failed to create employee", "error", err, "email", dto.Email)
		return nil, err
	}

	s.logger.Info("employee created", "employee_id", emp.ID, "email", emp.Email, "role", emp.Role)
	return emp, nil
}

func (s *Service) GetByID(id int64) (*Employee, error) {
	return s.repo.GetByID(id)
}

func (s *Service) List(limit, offset int) ([]*Employee, error) {
	return s.repo.List(limit, offset)
}

func (s *Service) Update(id int64, dto UpdateEmployeeDTO) (*Employee, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	emp, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil {
		emp.Name = *dto.Name
	}
	if dto.Role != nil {
		emp.Role = *dto.Role
	}
	if dto.IsActive != nil {
		emp.IsActive = *dto.IsActive
	}

	if err := s.repo.Update(emp); err != nil {
		s.logger.Error("failed to update employee", "error", err, "employee_id", id)
		return nil, err
	}
	return emp, nil
}

// UpdateAllowedIPs replaces the per-employee network allowlist.
func (s *Service) UpdateAllowedIPs(id int64, dto AllowedIPsDTO) (*Employee, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByID(id); err != nil {
		return nil, err
	}

	ips := dto.AllowedIPs
	if ips == nil {
		ips = []string{}
	}
	raw, err := json.Marshal(ips)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateAllowedIPs(id, datatypes.JSON(raw)); err != nil {
		s.logger.Error("failed to update allowed ips", "error", err, "employee_id", id)
		return nil, err
	}

	s.logger.Info("employee allowed networks updated", "employee_id", id, "entries", len(ips))
	return s.repo.GetByID(id)
}

// BindDevice replaces the employee's trusted device binding in full.
// Called from admin approval and from admin auto-bind during evaluation.
func (s *Service) BindDevice(userID int64, deviceID string, info device.Info) error {
	if err := s.repo.BindDevice(userID, deviceID, info.ToJSON(), time.Now()); err != nil {
		return err
	}
	s.logger.Info("device bound", "employee_id", userID, "device_id", deviceID)
	return nil
}

func (s *Service) Delete(id int64) error {
	if _, err := s.repo.GetByID(id); err != nil {
		return err
	}
	return s.repo.Delete(id)
}
