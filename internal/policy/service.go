package policy

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/frahmantamala/attendance-management/internal/device"
	"github.com/frahmantamala/attendance-management/internal/employee"
)

// Wildcard tokens that disable network checking when present in any tier.
const (
	wildcardStar = "*"
	wildcardAny  = "0.0.0.0/0"
)

// EmployeeStore reads principals and rebinds devices. Satisfied by the
// employee service.
type EmployeeStore interface {
	GetByID(id int64) (*employee.Employee, error)
	BindDevice(userID int64, deviceID string, info device.Info) error
}

// Ledger creates or reuses pending device change requests. Satisfied by
// the device service.
type Ledger interface {
	CreateOrGetPending(userID int64, deviceID string, info device.Info) (*device.ChangeRequest, bool, error)
}

// SettingsReader exposes the company-wide allowlist tier. Satisfied by
// the settings service.
type SettingsReader interface {
	CompanyAllowedIPs() ([]string, error)
}

// Evaluator decides, for every attempted check-in/check-out, whether the
// request is trustworthy: bound to a known device and originating from
// an approved network. Mismatches become auditable change requests, never
// silent bypasses.
//
// Evaluation mutates state (admin auto-bind, pending request creation),
// so callers must hold the per-user lock across the call.
type Evaluator struct {
	employees EmployeeStore
	ledger    Ledger
	settings  SettingsReader
	envAllow  []string
	logger    *slog.Logger
}

func NewEvaluator(employees EmployeeStore, ledger Ledger, settings SettingsReader, envAllowlist []string, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		employees: employees,
		ledger:    ledger,
		settings:  settings,
		envAllow:  envAllowlist,
		logger:    logger,
	}
}

// Evaluate runs the device/IP gate for one attendance attempt.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Decision, error) {
	emp, err := e.employees.GetByID(req.UserID)
	if err != nil {
		return nil, err
	}

	// An unparseable source address is a hard deny, never a silent allow.
	addr, ok := parseAddr(req.SourceAddr)
	if !ok {
		e.logger.Warn("source address did not parse, denying",
			"user_id", req.UserID, "source_addr", req.SourceAddr)
		return &Decision{Verdict: VerdictDenyNetwork, ResolvedIP: req.SourceAddr}, nil
	}
	resolved := addr.String()

	companyIPs, err := e.settings.CompanyAllowedIPs()
	if err != nil {
		return nil, err
	}
	allowlist := make([]string, 0, len(companyIPs)+len(e.envAllow)+4)
	allowlist = append(allowlist, emp.AllowedNetworks()...)
	allowlist = append(allowlist, companyIPs...)
	allowlist = append(allowlist, e.envAllow...)

	// An empty union means no network restriction is configured anywhere;
	// checking is skipped. Documented operational default for initial
	// deployments.
	if len(allowlist) > 0 && !networkAllowed(addr, allowlist) {
		e.logger.Info("attendance blocked by network policy",
			"user_id", req.UserID, "resolved_ip", resolved)
		return &Decision{Verdict: VerdictDenyNetwork, ResolvedIP: resolved}, nil
	}

	if req.DeviceID == "" {
		return &Decision{Verdict: VerdictDenyMissingDevice, ResolvedIP: resolved}, nil
	}

	info := device.Info{UserAgent: req.UserAgent, IP: resolved}

	if emp.IsAdmin() {
		// Admins self-approve: auto-bind on first use or mismatch, no
		// review trail. Intentional trust asymmetry.
		if !emp.HasBoundDevice() || *emp.BoundDeviceID != req.DeviceID {
			if err := e.employees.BindDevice(emp.ID, req.DeviceID, info); err != nil {
				return nil, err
			}
			e.logger.Info("admin device auto-bound",
				"user_id", emp.ID, "device_id", req.DeviceID)
		}
		return &Decision{Verdict: VerdictAllow, DeviceID: req.DeviceID, ResolvedIP: resolved}, nil
	}

	if !emp.HasBoundDevice() || *emp.BoundDeviceID != req.DeviceID {
		pending, created, err := e.ledger.CreateOrGetPending(emp.ID, req.DeviceID, info)
		if err != nil {
			return nil, err
		}
		e.logger.Info("attendance requires device review",
			"user_id", emp.ID,
			"claimed_device_id", req.DeviceID,
			"request_id", pending.ID,
			"request_created", created)
		return &Decision{Verdict: VerdictReviewRequired, ResolvedIP: resolved, RequestID: pending.ID}, nil
	}

	return &Decision{Verdict: VerdictAllow, DeviceID: *emp.BoundDeviceID, ResolvedIP: resolved}, nil
}

func parseAddr(raw string) (netip.Addr, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Addr{}, false
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return addr.Unmap(), true
	}
	// RemoteAddr style host:port
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap(), true
	}
	return netip.Addr{}, false
}

// networkAllowed reports whether addr matches any allowlist entry: the
// allow-all wildcard, an exact IP, or CIDR containment. Malformed entries
// are skipped individually rather than failing the whole evaluation.
func networkAllowed(addr netip.Addr, entries []string) bool {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == wildcardStar || entry == wildcardAny {
			return true
		}
		if ip, err := netip.ParseAddr(entry); err == nil {
			if ip.Unmap() == addr {
				return true
			}
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		// skip malformed entry
	}
	return false
}
