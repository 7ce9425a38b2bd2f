package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/attendance-management/internal/attendance"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/device"
	"github.com/frahmantamala/attendance-management/internal/employee"
	"github.com/frahmantamala/attendance-management/internal/settings"
	"github.com/frahmantamala/attendance-management/internal/transport/middleware"
	"github.com/frahmantamala/attendance-management/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	authHandler *auth.Handler,
	attendanceHandler *attendance.Handler,
	deviceHandler *device.Handler,
	employeeHandler *employee.Handler,
	settingsHandler *settings.Handler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)
	rbac := auth.NewRBAC(logger)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if authHandler != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/login", authHandler.Login)
				sr.Post("/refresh", authHandler.RefreshToken)
				sr.Post("/logout", authHandler.Logout)
			})
		}

		if authHandler != nil {
			// Protected routes that require authentication
			r.Group(func(pr chi.Router) {
				pr.Use(authHandler.AuthMiddleware)

				if attendanceHandler != nil {
					pr.Route("/attendance", func(ar chi.Router) {
						ar.Post("/mark", attendanceHandler.Mark)
						ar.Get("/history", attendanceHandler.History)
						ar.Post("/break/start", attendanceHandler.StartBreak)
						ar.Post("/break/end", attendanceHandler.EndBreak)
					})
				}

				if deviceHandler != nil {
					pr.Route("/devices", func(dr chi.Router) {
						dr.Post("/request-change", deviceHandler.RequestChange)
						dr.Get("/my-requests", deviceHandler.MyRequests)
						dr.Post("/requests/{id}/cancel", deviceHandler.Cancel)
						dr.Delete("/requests/{id}", deviceHandler.Delete)

						// Admin review workflow
						dr.Group(func(ar chi.Router) {
							ar.Use(rbac.RequireAdmin())
							ar.Get("/requests", deviceHandler.ListRequests)
							ar.Post("/requests/{id}/approve", deviceHandler.Approve)
							ar.Post("/requests/{id}/reject", deviceHandler.Reject)
							ar.Delete("/requests", deviceHandler.BulkDelete)
							ar.Get("/diagnostics", deviceHandler.Diagnostics)
						})
					})
				}

				pr.Group(func(ar chi.Router) {
					ar.Use(rbac.RequireAdmin())

					if employeeHandler != nil {
						ar.Route("/admin/employees", func(er chi.Router) {
							er.Get("/", employeeHandler.List)
							er.Post("/", employeeHandler.Create)
							er.Get("/{id}", employeeHandler.Get)
							er.Patch("/{id}", employeeHandler.Update)
							er.Delete("/{id}", employeeHandler.Delete)
							er.Patch("/{id}/allowed-ips", employeeHandler.UpdateAllowedIPs)
						})
					}

					if settingsHandler != nil {
						ar.Get("/admin/settings/company-ips", settingsHandler.GetCompanyIPs)
						ar.Put("/admin/settings/company-ips", settingsHandler.UpdateCompanyIPs)
					}
				})
			})
		}
	})
}
