package employee

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// CreateEmployeeDTO is the admin payload for creating an employee record.
type CreateEmployeeDTO struct {
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	Role       string   `json:"role,omitempty"`
	Password   string   `json:"password"`
	AllowedIPs []string `json:"allowed_ips,omitempty"`
}

func (d CreateEmployeeDTO) Validate() error {
	if d.Email == "" || !strings.Contains(d.Email, "@") {
		return errors.New("a valid email is required")
	}
	if d.Name == "" {
		return errors.New("name is required")
	}
	if len(d.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if d.Role != "" && d.Role != RoleEmployee && d.Role != RoleAdmin {
		return ErrInvalidRole
	}
	return ValidateNetworkList(d.AllowedIPs)
}

// UpdateEmployeeDTO carries partial updates; nil fields are left untouched.
type UpdateEmployeeDTO struct {
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (d UpdateEmployeeDTO) Validate() error {
	if d.Name != nil && *d.Name == "" {
		return errors.New("name cannot be empty")
	}
	if d.Role != nil && *d.Role != RoleEmployee && *d.Role != RoleAdmin {
		return ErrInvalidRole
	}
	return nil
}

// AllowedIPsDTO is the payload for PATCH /admin/employees/{id}/allowed-ips.
type AllowedIPsDTO struct {
	AllowedIPs []string `json:"allowed_ips"`
}

func (d AllowedIPsDTO) Validate() error {
	return ValidateNetworkList(d.AllowedIPs)
}

// ValidateNetworkList rejects entries that are neither an IP, a CIDR
// range, nor the allow-all wildcard. Evaluation is lenient about
// malformed stored entries, but admin writes are checked up front so
// typos surface immediately.
func ValidateNetworkList(entries []string) error {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" || entry == "*" {
			continue
		}
		if _, err := netip.ParseAddr(entry); err == nil {
			continue
		}
		if _, err := netip.ParsePrefix(entry); err == nil {
			continue
		}
		return fmt.Errorf("invalid network entry %q: expected IP, CIDR, or *", entry)
	}
	return nil
}
