package settings

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/attendance-management/internal/transport"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

type ServiceAPI interface {
	CompanyAllowedIPs() ([]string, error)
	UpdateCompanyAllowedIPs(ips []string) ([]string, error)
}

// Handler serves the admin settings surface.
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

type companyIPsDTO struct {
	AllowedIPs []string `json:"allowed_ips"`
}

func (h *Handler) GetCompanyIPs(w http.ResponseWriter, r *http.Request) {
	ips, err := h.Service.CompanyAllowedIPs()
	if err != nil {
		h.Logger.Error("GetCompanyIPs: service error", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to read company allowlist")
		return
	}
	if ips == nil {
		ips = []string{}
	}

	h.WriteJSON(w, http.StatusOK, companyIPsDTO{AllowedIPs: ips})
}

func (h *Handler) UpdateCompanyIPs(w http.ResponseWriter, r *http.Request) {
	var dto companyIPsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ips, err := h.Service.UpdateCompanyAllowedIPs(dto.AllowedIPs)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.Logger.Info("UpdateCompanyIPs: company allowlist replaced", "entries", len(ips))
	h.WriteJSON(w, http.StatusOK, companyIPsDTO{AllowedIPs: ips})
}
