package settings

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/frahmantamala/attendance-management/internal/employee"
	"gorm.io/datatypes"
)

// Repository defines the data access methods for settings.
type Repository interface {
	Get(key string) (*Setting, error)
	Upsert(key string, value datatypes.JSON) error
}

// Service reads and writes shared settings. The company allowlist is
// read on every policy evaluation; writes are atomic row replaces, so
// evaluators may observe a slightly stale list without harm.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CompanyAllowedIPs returns the shared network allowlist. A missing
// setting means no company tier is configured and yields an empty list.
func (s *Service) CompanyAllowedIPs() ([]string, error) {
	setting, err := s.repo.Get(KeyCompanyAllowedIPs)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var ips []string
	if err := json.Unmarshal(setting.Value, &ips); err != nil {
		s.logger.Warn("company allowlist setting is malformed, treating as empty", "error", err)
		return nil, nil
	}
	return ips, nil
}

// UpdateCompanyAllowedIPs replaces the shared allowlist. Entries are
// validated up front the same way per-employee lists are.
func (s *Service) UpdateCompanyAllowedIPs(ips []string) ([]string, error) {
	if err := employee.ValidateNetworkList(ips); err != nil {
		return nil, err
	}
	if ips == nil {
		ips = []string{}
	}

	raw, err := json.Marshal(ips)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(KeyCompanyAllowedIPs, datatypes.JSON(raw)); err != nil {
		s.logger.Error("failed to update company allowlist", "error", err)
		return nil, err
	}

	s.logger.Info("company allowlist updated", "entries", len(ips))
	return ips, nil
}

// SheetSyncCursor returns the id of the last exported attendance record.
func (s *Service) SheetSyncCursor() (int64, error) {
	setting, err := s.repo.Get(KeySheetSyncCursor)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var cursor int64
	if err := json.Unmarshal(setting.Value, &cursor); err != nil {
		return 0, err
	}
	return cursor, nil
}

func (s *Service) SetSheetSyncCursor(id int64) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.repo.Upsert(KeySheetSyncCursor, datatypes.JSON(raw))
}
