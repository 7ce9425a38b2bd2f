package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes an error response
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.Logger.Error("http error", "status", status, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errorResp := map[string]interface{}{
		"code":    status,
		"message": message,
	}

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		h.Logger.Error("failed to encode error response", "error", err)
	}
}

// HandleServiceError maps a service error onto an HTTP response. Typed
// application errors carry their own status and payload; anything else
// is a 500.
func (h *BaseHandler) HandleServiceError(w http.ResponseWriter, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		h.Logger.Error("service error", "type", appErr.Type, "code", appErr.Code, "message", appErr.Message)
		status, payload := appErr.ToHTTPResponse()
		h.WriteJSON(w, status, payload)
		return
	}

	h.Logger.Error("unhandled service error", "error", err)
	h.WriteError(w, http.StatusInternalServerError, "internal server error")
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ""
	}

	return authHeader[7:]
}

// ClientAddr resolves the request's source address. The first hop in
// X-Forwarded-For wins when the service sits behind a proxy; otherwise
// RemoteAddr is used as-is.
func ClientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}
