package device

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/attendance-management/internal/core/events"
	"github.com/frahmantamala/attendance-management/internal/core/locking"
)

// Repository defines the data access methods for device change requests.
type Repository interface {
	Create(req *ChangeRequest) error
	GetByID(id int64) (*ChangeRequest, error)
	GetPendingForUser(userID int64) (*ChangeRequest, error)
	ListByUser(userID int64) ([]*ChangeRequest, error)
	ListWithEmployee(status string, limit, offset int) ([]*RequestWithEmployee, error)
	Update(req *ChangeRequest) error
	SupersedePending(userID, exceptID, reviewerID int64, note string, reviewedAt time.Time) (int64, error)
	Delete(id int64) error
	DeleteByStatus(status string) (int64, error)
	StatsByUser() ([]*UserRequestStats, error)
}

// Binder rebinds an employee's trusted device. Satisfied by the employee
// service.
type Binder interface {
	BindDevice(userID int64, deviceID string, info Info) error
}

// Service handles the device change request ledger and the admin review
// workflow on top of it.
type Service struct {
	repo   Repository
	binder Binder
	locks  *locking.KeyedMutex
	events *events.EventBus
	logger *slog.Logger
}

func NewService(repo Repository, binder Binder, locks *locking.KeyedMutex, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		binder: binder,
		locks:  locks,
		events: bus,
		logger: logger,
	}
}

// CreateOrGetPending returns the user's existing pending request, or
// atomically creates one for the claimed device. The caller is expected
// to hold the per-user lock; the repository's partial unique index on
// pending rows is the transactional backstop either way.
func (s *Service) CreateOrGetPending(userID int64, deviceID string, info Info) (*ChangeRequest, bool, error) {
	existing, err := s.repo.GetPendingForUser(userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	req := &ChangeRequest{
		UserID:      userID,
		DeviceID:    deviceID,
		DeviceInfo:  info.ToJSON(),
		Status:      StatusPending,
		RequestedAt: time.Now(),
	}
	if err := s.repo.Create(req); err != nil {
		// Lost a create race: the unique index rejected the second
		// pending row. Return whichever request won.
		existing, getErr := s.repo.GetPendingForUser(userID)
		if getErr == nil && existing != nil {
			return existing, false, nil
		}
		s.logger.Error("failed to create device change request", "error", err, "user_id", userID)
		return nil, false, err
	}

	s.logger.Info("device change request created",
		"request_id", req.ID,
		"user_id", userID,
		"device_id", deviceID)

	s.events.Publish(context.Background(), events.NewEvent(events.TypeDeviceRequestCreated, map[string]interface{}{
		"request_id": req.ID,
		"user_id":    userID,
		"device_id":  deviceID,
	}))

	return req, true, nil
}

// RequestChange is the explicit request-change entry point used by the
// HTTP handler. It serializes per user before delegating.
func (s *Service) RequestChange(userID int64, deviceID string, info Info) (*ChangeRequest, bool, error) {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	return s.CreateOrGetPending(userID, deviceID, info)
}

// AdminBind immediately rebinds a device with no ledger entry. Admins
// self-approve; the router restricts callers to their own binding.
func (s *Service) AdminBind(userID int64, deviceID string, info Info) error {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	if err := s.binder.BindDevice(userID, deviceID, info); err != nil {
		return err
	}
	s.logger.Info("admin device bound directly", "user_id", userID, "device_id", deviceID)
	return nil
}

// Approve marks the request approved, rebinds the user's device, and
// supersedes every other pending request for the same user.
func (s *Service) Approve(requestID, reviewerID int64) (*ChangeRequest, error) {
	req, err := s.repo.GetByID(requestID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(req.UserID)
	defer s.locks.Unlock(req.UserID)

	// Re-read under the lock: a concurrent review may have landed first.
	req, err = s.repo.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, ErrAlreadyReviewed
	}

	var info Info
	if len(req.DeviceInfo) > 0 {
		_ = unmarshalInfo(req.DeviceInfo, &info)
	}
	if err := s.binder.BindDevice(req.UserID, req.DeviceID, info); err != nil {
		s.logger.Error("failed to bind device on approval", "error", err, "request_id", requestID, "user_id", req.UserID)
		return nil, err
	}

	now := time.Now()
	req.Status = StatusApproved
	req.ReviewedBy = &reviewerID
	req.ReviewedAt = &now
	if err := s.repo.Update(req); err != nil {
		return nil, err
	}

	note := fmt.Sprintf("superseded by approval of request %d", req.ID)
	superseded, err := s.repo.SupersedePending(req.UserID, req.ID, reviewerID, note, now)
	if err != nil {
		s.logger.Error("failed to supersede pending requests", "error", err, "user_id", req.UserID)
		return nil, err
	}

	s.logger.Info("device change request approved",
		"request_id", req.ID,
		"user_id", req.UserID,
		"device_id", req.DeviceID,
		"reviewer_id", reviewerID,
		"superseded", superseded)

	s.events.Publish(context.Background(), events.NewEvent(events.TypeDeviceRequestApproved, map[string]interface{}{
		"request_id":  req.ID,
		"user_id":     req.UserID,
		"device_id":   req.DeviceID,
		"reviewer_id": reviewerID,
	}))

	return req, nil
}

// Reject marks the request rejected with an optional note.
func (s *Service) Reject(requestID, reviewerID int64, note string) (*ChangeRequest, error) {
	req, err := s.repo.GetByID(requestID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(req.UserID)
	defer s.locks.Unlock(req.UserID)

	req, err = s.repo.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, ErrAlreadyReviewed
	}

	now := time.Now()
	req.Status = StatusRejected
	req.ReviewedBy = &reviewerID
	req.ReviewedAt = &now
	req.Note = note
	if err := s.repo.Update(req); err != nil {
		return nil, err
	}

	s.logger.Info("device change request rejected",
		"request_id", req.ID,
		"user_id", req.UserID,
		"reviewer_id", reviewerID)

	s.events.Publish(context.Background(), events.NewEvent(events.TypeDeviceRequestRejected, map[string]interface{}{
		"request_id":  req.ID,
		"user_id":     req.UserID,
		"reviewer_id": reviewerID,
	}))

	return req, nil
}

// Cancel withdraws a pending request. Only the request's owner may cancel.
func (s *Service) Cancel(requestID, callerID int64) (*ChangeRequest, error) {
	req, err := s.repo.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID != callerID {
		return nil, ErrNotRequestOwner
	}

	s.locks.Lock(req.UserID)
	defer s.locks.Unlock(req.UserID)

	req, err = s.repo.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, ErrNotPending
	}

	now := time.Now()
	req.Status = StatusCancelled
	req.ReviewedAt = &now
	if err := s.repo.Update(req); err != nil {
		return nil, err
	}

	s.logger.Info("device change request cancelled", "request_id", req.ID, "user_id", req.UserID)
	return req, nil
}

// Delete removes a request. Owners may delete their own; admins any.
func (s *Service) Delete(requestID, callerID int64, isAdmin bool) error {
	req, err := s.repo.GetByID(requestID)
	if err != nil {
		return err
	}
	if !isAdmin && req.UserID != callerID {
		return ErrNotRequestOwner
	}
	return s.repo.Delete(requestID)
}

// BulkDeleteByStatus removes all requests with the given status. Admin only;
// authorization is enforced at the router.
func (s *Service) BulkDeleteByStatus(status string) (int64, error) {
	if !ValidStatus(status) {
		return 0, ErrInvalidStatus
	}
	count, err := s.repo.DeleteByStatus(status)
	if err != nil {
		return 0, err
	}
	s.logger.Info("device change requests bulk deleted", "status", status, "count", count)
	return count, nil
}

// MyRequests lists the caller's own requests, newest first.
func (s *Service) MyRequests(userID int64) ([]*ChangeRequest, error) {
	return s.repo.ListByUser(userID)
}

// ListRequests is the admin view joined with employee display info.
// An empty status lists all; otherwise it must be a valid status.
func (s *Service) ListRequests(status string, limit, offset int) ([]*RequestWithEmployee, error) {
	if status != "" && !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	return s.repo.ListWithEmployee(status, limit, offset)
}

// Diagnostics exposes per-user aggregate counts and request timestamps
// for support triage.
func (s *Service) Diagnostics() ([]*UserRequestStats, error) {
	return s.repo.StatsByUser()
}
