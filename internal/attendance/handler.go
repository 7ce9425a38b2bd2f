package attendance

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/policy"
	"github.com/frahmantamala/attendance-management/internal/transport"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

type ServiceAPI interface {
	Mark(ctx context.Context, userID int64, markType, deviceID, sourceAddr, userAgent string) (*Record, *policy.Decision, error)
	StartBreak(userID int64) (*Record, error)
	EndBreak(userID int64) (*Record, error)
	History(userID int64, from, to time.Time, page, limit int) ([]*Record, int64, error)
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

func (h *Handler) Mark(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto MarkDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, "type must be in or out")
		return
	}

	deviceID := dto.DeviceID
	if deviceID == "" {
		deviceID = r.Header.Get("X-Device-ID")
	}

	rec, decision, err := h.Service.Mark(r.Context(), user.ID, dto.Type, deviceID, transport.ClientAddr(r), r.UserAgent())
	if err != nil {
		switch err {
		case ErrInvalidType:
			h.WriteError(w, http.StatusBadRequest, "type must be in or out")
		case ErrSequenceViolation:
			h.Logger.Warn("Mark: sequence violation", "user_id", user.ID, "type", dto.Type)
			h.WriteError(w, http.StatusUnprocessableEntity, "attendance marks must alternate between in and out")
		default:
			h.Logger.Error("Mark: service error", "error", err, "user_id", user.ID)
			h.WriteError(w, http.StatusInternalServerError, "failed to mark attendance")
		}
		return
	}

	if !decision.Allowed() {
		h.writeDecision(w, user.ID, decision)
		return
	}

	h.Logger.Info("Mark: attendance recorded",
		"record_id", rec.ID,
		"user_id", user.ID,
		"type", rec.Type)

	h.WriteJSON(w, http.StatusOK, rec)
}

// writeDecision maps a non-allow policy verdict onto the HTTP surface.
// A review_required response carries the pending request id so the
// client can show "waiting for review" instead of a dead end.
func (h *Handler) writeDecision(w http.ResponseWriter, userID int64, decision *policy.Decision) {
	switch decision.Verdict {
	case policy.VerdictDenyNetwork:
		h.Logger.Warn("Mark: network blocked", "user_id", userID, "resolved_ip", decision.ResolvedIP)
		h.WriteJSON(w, http.StatusForbidden, map[string]interface{}{
			"code":    internal.ErrCodeNetworkBlocked,
			"message": "attendance is not allowed from this network",
		})
	case policy.VerdictDenyMissingDevice:
		h.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code":    internal.ErrCodeDeviceMissing,
			"message": "a device identifier is required",
		})
	case policy.VerdictReviewRequired:
		h.Logger.Info("Mark: device review required", "user_id", userID, "request_id", decision.RequestID)
		h.WriteJSON(w, http.StatusForbidden, map[string]interface{}{
			"code":       internal.ErrCodeReviewRequired,
			"message":    "this device is awaiting admin review",
			"request_id": decision.RequestID,
		})
	default:
		h.WriteError(w, http.StatusInternalServerError, "unexpected policy verdict")
	}
}

func (h *Handler) StartBreak(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rec, err := h.Service.StartBreak(user.ID)
	if err != nil {
		switch err {
		case ErrNotCheckedIn:
			h.WriteError(w, http.StatusUnprocessableEntity, "no open check-in to take a break from")
		case ErrAlreadyOnBreak:
			h.WriteError(w, http.StatusUnprocessableEntity, "a break is already running")
		default:
			h.Logger.Error("StartBreak: service error", "error", err, "user_id", user.ID)
			h.WriteError(w, http.StatusInternalServerError, "failed to start break")
		}
		return
	}

	h.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) EndBreak(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rec, err := h.Service.EndBreak(user.ID)
	if err != nil {
		switch err {
		case ErrNotOnBreak:
			h.WriteError(w, http.StatusUnprocessableEntity, "no break is running")
		default:
			h.Logger.Error("EndBreak: service error", "error", err, "user_id", user.ID)
			h.WriteError(w, http.StatusInternalServerError, "failed to end break")
		}
		return
	}

	h.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	from, to := ParseHistoryRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))

	page := 1
	limit := 20
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	records, total, err := h.Service.History(user.ID, from, to, page, limit)
	if err != nil {
		h.Logger.Error("History: service error", "error", err, "user_id", user.ID)
		h.WriteError(w, http.StatusInternalServerError, "failed to get attendance history")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}
