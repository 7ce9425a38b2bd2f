package employee

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/transport"
	"github.com/frahmantamala/attendance-management/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Create(dto CreateEmployeeDTO) (*Employee, error)
	GetByID(id int64) (*Employee, error)
	List(limit, offset int) ([]*Employee, error)
	Update(id int64, dto UpdateEmployeeDTO) (*Employee, error)
	UpdateAllowedIPs(id int64, dto AllowedIPsDTO) (*Employee, error)
	Delete(id int64) error
}

// Handler serves the admin employee CRUD surface. Authorization is
// enforced at the router; every route here is admin-only. Errors go out
// in the shared taxonomy shape so admin tooling can switch on codes.
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

// mapServiceError translates employee sentinels into the shared taxonomy.
func mapServiceError(err error) error {
	switch err {
	case ErrEmployeeNotFound:
		return internal.NewNotFoundError("employee not found", internal.ErrCodeEmployeeNotFound)
	case ErrEmailTaken:
		return internal.NewConflictError("email already registered", internal.ErrCodeEmailTaken)
	case ErrInvalidRole:
		return internal.NewValidationError("role must be employee or admin", internal.ErrCodeValidationFailed)
	default:
		return internal.NewInternalError("unexpected error", err)
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var dto CreateEmployeeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed))
		return
	}

	emp, err := h.Service.Create(dto)
	if err != nil {
		if err != ErrEmailTaken {
			h.Logger.Error("Create: service error", "error", err, "email", dto.Email)
		}
		h.HandleServiceError(w, mapServiceError(err))
		return
	}

	h.Logger.Info("Create: employee created", "employee_id", emp.ID, "email", emp.Email)
	h.WriteJSON(w, http.StatusCreated, emp)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	emp, err := h.Service.GetByID(id)
	if err != nil {
		h.HandleServiceError(w, mapServiceError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, emp)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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

	employees, err := h.Service.List(limit, offset)
	if err != nil {
		h.Logger.Error("List: service error", "error", err)
		h.HandleServiceError(w, mapServiceError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"employees": employees,
		"limit":     limit,
		"offset":    offset,
	})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	var dto UpdateEmployeeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed))
		return
	}

	emp, err := h.Service.Update(id, dto)
	if err != nil {
		h.HandleServiceError(w, mapServiceError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, emp)
}

func (h *Handler) UpdateAllowedIPs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	var dto AllowedIPsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed))
		return
	}

	emp, err := h.Service.UpdateAllowedIPs(id, dto)
	if err != nil {
		h.HandleServiceError(w, mapServiceError(err))
		return
	}

	h.Logger.Info("UpdateAllowedIPs: allowlist replaced", "employee_id", id)
	h.WriteJSON(w, http.StatusOK, emp)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(id); err != nil {
		if err != ErrEmployeeNotFound {
			h.Logger.Error("Delete: service error", "error", err, "employee_id", id)
		}
		h.HandleServiceError(w, mapServiceError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid employee ID")
		return 0, false
	}
	return id, true
}
