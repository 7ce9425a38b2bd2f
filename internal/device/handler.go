package device

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/transport"
	"github.com/frahmantamala/attendance-management/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	RequestChange(userID int64, deviceID string, info Info) (*ChangeRequest, bool, error)
	AdminBind(userID int64, deviceID string, info Info) error
	Approve(requestID, reviewerID int64) (*ChangeRequest, error)
	Reject(requestID, reviewerID int64, note string) (*ChangeRequest, error)
	Cancel(requestID, callerID int64) (*ChangeRequest, error)
	Delete(requestID, callerID int64, isAdmin bool) error
	BulkDeleteByStatus(status string) (int64, error)
	MyRequests(userID int64) ([]*ChangeRequest, error)
	ListRequests(status string, limit, offset int) ([]*RequestWithEmployee, error)
	Diagnostics() ([]*UserRequestStats, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// RequestChange opens a rebinding request. Admins bypass the ledger and
// bind immediately; everyone else gets a pending request, or a conflict
// when one already exists.
func (h *Handler) RequestChange(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto RequestChangeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	info := Info{UserAgent: r.UserAgent(), IP: transport.ClientAddr(r)}

	if user.IsAdmin() {
		if err := h.Service.AdminBind(user.ID, dto.DeviceID, info); err != nil {
			h.Logger.Error("RequestChange: admin bind failed", "error", err, "user_id", user.ID)
			h.WriteError(w, http.StatusInternalServerError, "failed to bind device")
			return
		}
		h.WriteJSON(w, http.StatusOK, map[string]string{
			"status":    "bound",
			"device_id": dto.DeviceID,
		})
		return
	}

	req, created, err := h.Service.RequestChange(user.ID, dto.DeviceID, info)
	if err != nil {
		h.Logger.Error("RequestChange: service error", "error", err, "user_id", user.ID)
		h.WriteError(w, http.StatusInternalServerError, "failed to create device change request")
		return
	}

	if !created {
		h.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"code":       internal.ErrCodeDuplicatePending,
			"message":    "a pending device change request already exists",
			"request_id": req.ID,
		})
		return
	}

	h.WriteJSON(w, http.StatusCreated, req)
}

func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requests, err := h.Service.MyRequests(user.ID)
	if err != nil {
		h.Logger.Error("MyRequests: service error", "error", err, "user_id", user.ID)
		h.WriteError(w, http.StatusInternalServerError, "failed to list device change requests")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}

	req, err := h.Service.Cancel(requestID, user.ID)
	if err != nil {
		switch err {
		case ErrRequestNotFound:
			h.WriteError(w, http.StatusNotFound, "request not found")
		case ErrNotRequestOwner:
			h.WriteError(w, http.StatusForbidden, "only the request owner can cancel")
		case ErrNotPending:
			h.WriteError(w, http.StatusConflict, "request is no longer pending")
		default:
			h.Logger.Error("Cancel: service error", "error", err, "request_id", requestID)
			h.WriteError(w, http.StatusInternalServerError, "failed to cancel request")
		}
		return
	}

	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(requestID, user.ID, user.IsAdmin()); err != nil {
		switch err {
		case ErrRequestNotFound:
			h.WriteError(w, http.StatusNotFound, "request not found")
		case ErrNotRequestOwner:
			h.WriteError(w, http.StatusForbidden, "only the request owner or an admin can delete")
		default:
			h.Logger.Error("Delete: service error", "error", err, "request_id", requestID)
			h.WriteError(w, http.StatusInternalServerError, "failed to delete request")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	requests, err := h.Service.ListRequests(status, limit, offset)
	if err != nil {
		switch err {
		case ErrInvalidStatus:
			h.WriteError(w, http.StatusBadRequest, "invalid status filter")
		default:
			h.Logger.Error("ListRequests: service error", "error", err, "status", status)
			h.WriteError(w, http.StatusInternalServerError, "failed to list device change requests")
		}
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := auth.UserFromContext(r.Context())
	if !ok || reviewer == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}

	req, err := h.Service.Approve(requestID, reviewer.ID)
	if err != nil {
		switch err {
		case ErrRequestNotFound:
			h.WriteError(w, http.StatusNotFound, "request not found")
		case ErrAlreadyReviewed:
			h.WriteError(w, http.StatusConflict, "request has already been reviewed")
		default:
			h.Logger.Error("Approve: service error", "error", err, "request_id", requestID, "reviewer_id", reviewer.ID)
			h.WriteError(w, http.StatusInternalServerError, "failed to approve request")
		}
		return
	}

	h.Logger.Info("Approve: request approved", "request_id", req.ID, "reviewer_id", reviewer.ID)
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := auth.UserFromContext(r.Context())
	if !ok || reviewer == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}

	var dto ReviewDTO
	if r.Body != nil {
		// A body is optional on reject; a missing note is fine.
		_ = json.NewDecoder(r.Body).Decode(&dto)
	}

	req, err := h.Service.Reject(requestID, reviewer.ID, dto.Note)
	if err != nil {
		switch err {
		case ErrRequestNotFound:
			h.WriteError(w, http.StatusNotFound, "request not found")
		case ErrAlreadyReviewed:
			h.WriteError(w, http.StatusConflict, "request has already been reviewed")
		default:
			h.Logger.Error("Reject: service error", "error", err, "request_id", requestID, "reviewer_id", reviewer.ID)
			h.WriteError(w, http.StatusInternalServerError, "failed to reject request")
		}
		return
	}

	h.Logger.Info("Reject: request rejected", "request_id", req.ID, "reviewer_id", reviewer.ID)
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		h.WriteError(w, http.StatusBadRequest, "status query parameter is required")
		return
	}

	count, err := h.Service.BulkDeleteByStatus(status)
	if err != nil {
		switch err {
		case ErrInvalidStatus:
			h.WriteError(w, http.StatusBadRequest, "invalid status")
		default:
			h.Logger.Error("BulkDelete: service error", "error", err, "status", status)
			h.WriteError(w, http.StatusInternalServerError, "failed to delete requests")
		}
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"deleted": count,
	})
}

func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Diagnostics()
	if err != nil {
		h.Logger.Error("Diagnostics: service error", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to compute diagnostics")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": stats})
}

func (h *Handler) requestIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request ID")
		return 0, false
	}
	return id, true
}
