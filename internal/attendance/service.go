package attendance

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/attendance-management/internal/core/events"
	"github.com/frahmantamala/attendance-management/internal/core/locking"
	"github.com/frahmantamala/attendance-management/internal/policy"
)

// Repository defines the data access methods for attendance records.
type Repository interface {
	Create(rec *Record) error
	GetLastForUser(userID int64) (*Record, error)
	Update(rec *Record) error
	ListForUser(userID int64, from, to time.Time, limit, offset int) ([]*Record, int64, error)
}

// Gate is the device/IP policy evaluation run before every mark.
// Satisfied by the policy evaluator.
type Gate interface {
	Evaluate(ctx context.Context, req policy.Request) (*policy.Decision, error)
}

// Service enforces the attendance state machine: strict in/out
// alternation and break sub-states per user. Every mutating operation
// serializes per user so check-then-act sequences are atomic under
// concurrent double-submission.
type Service struct {
	repo   Repository
	gate   Gate
	locks  *locking.KeyedMutex
	events *events.EventBus
	logger *slog.Logger
}

func NewService(repo Repository, gate Gate, locks *locking.KeyedMutex, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		gate:   gate,
		locks:  locks,
		events: bus,
		logger: logger,
	}
}

// Mark runs the policy gate and, on allow, appends an attendance record.
// A non-allow decision is returned with a nil record; the handler maps it
// to the right status code. The policy evaluation and the alternation
// check share one critical section per user.
func (s *Service) Mark(ctx context.Context, userID int64, markType string, deviceID, sourceAddr, userAgent string) (*Record, *policy.Decision, error) {
	if !ValidType(markType) {
		return nil, nil, ErrInvalidType
	}

	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	decision, err := s.gate.Evaluate(ctx, policy.Request{
		UserID:     userID,
		DeviceID:   deviceID,
		SourceAddr: sourceAddr,
		UserAgent:  userAgent,
	})
	if err != nil {
		s.logger.Error("policy evaluation failed", "error", err, "user_id", userID)
		return nil, nil, err
	}
	if !decision.Allowed() {
		return nil, decision, nil
	}

	last, err := s.repo.GetLastForUser(userID)
	if err != nil {
		return nil, nil, err
	}
	if last != nil && last.Type == markType {
		s.logger.Warn("sequence violation",
			"user_id", userID, "type", markType, "last_record_id", last.ID)
		return nil, decision, ErrSequenceViolation
	}

	rec := &Record{
		UserID:    userID,
		Type:      markType,
		Timestamp: time.Now(),
		IP:        decision.ResolvedIP,
		DeviceID:  decision.DeviceID,
		Status:    StatusRecorded,
	}
	if err := rec.SetBreaks([]BreakEntry{}); err != nil {
		return nil, nil, err
	}
	if err := s.repo.Create(rec); err != nil {
		s.logger.Error("failed to create attendance record", "error", err, "user_id", userID)
		return nil, nil, err
	}

	s.logger.Info("attendance marked",
		"record_id", rec.ID,
		"user_id", userID,
		"type", markType,
		"ip", rec.IP,
		"device_id", rec.DeviceID)

	s.events.Publish(ctx, events.NewEvent(events.TypeAttendanceMarked, map[string]interface{}{
		"record_id": rec.ID,
		"user_id":   userID,
		"type":      markType,
	}))

	return rec, decision, nil
}

// StartBreak opens a break on the user's current check-in.
func (s *Service) StartBreak(userID int64) (*Record, error) {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	last, err := s.repo.GetLastForUser(userID)
	if err != nil {
		return nil, err
	}
	if last == nil || last.Type != TypeIn {
		return nil, ErrNotCheckedIn
	}
	if last.OnBreak {
		return nil, ErrAlreadyOnBreak
	}

	breaks := last.BreakList()
	breaks = append(breaks, BreakEntry{Start: time.Now()})
	if err := last.SetBreaks(breaks); err != nil {
		return nil, err
	}
	last.OnBreak = true

	if err := s.repo.Update(last); err != nil {
		s.logger.Error("failed to start break", "error", err, "user_id", userID)
		return nil, err
	}

	s.logger.Info("break started", "record_id", last.ID, "user_id", userID)
	return last, nil
}

// EndBreak closes the running break on the user's current check-in.
func (s *Service) EndBreak(userID int64) (*Record, error) {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	last, err := s.repo.GetLastForUser(userID)
	if err != nil {
		return nil, err
	}
	if last == nil || last.Type != TypeIn || !last.OnBreak {
		return nil, ErrNotOnBreak
	}

	breaks := last.BreakList()
	if len(breaks) == 0 || breaks[len(breaks)-1].End != nil {
		return nil, ErrNotOnBreak
	}

	now := time.Now()
	breaks[len(breaks)-1].End = &now
	if err := last.SetBreaks(breaks); err != nil {
		return nil, err
	}
	last.OnBreak = false

	if err := s.repo.Update(last); err != nil {
		s.logger.Error("failed to end break", "error", err, "user_id", userID)
		return nil, err
	}

	s.logger.Info("break ended", "record_id", last.ID, "user_id", userID)
	return last, nil
}

// History returns the user's records inside the inclusive [from, to]
// window, newest first, with the total count for pagination.
func (s *Service) History(userID int64, from, to time.Time, page, limit int) ([]*Record, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	return s.repo.ListForUser(userID, from, to, limit, offset)
}
