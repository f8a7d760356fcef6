package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-lighting/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket authenticates with a ticket, validated in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.With(s.requirePermission(auth.PermDeviceRead)).Group(func(r chi.Router) {
				r.Get("/devices", s.handleListDevices)
				r.Get("/devices/{id}", s.handleGetDevice)
				r.Get("/rooms", s.handleListRooms)
				r.Get("/adapters", s.handleListAdapters)
				r.Get("/events", s.handleEvents)
			})

			r.With(s.requirePermission(auth.PermDeviceOperate)).
				Put("/devices/{id}/state", s.handleSetDeviceState)

			r.With(s.requirePermission(auth.PermDeviceConfigure)).Group(func(r chi.Router) {
				r.Post("/devices/sync", s.handleSyncDevices)
				r.Delete("/devices/{id}", s.handleDeleteDevice)
			})

			r.With(s.requirePermission(auth.PermCommissionManage)).
				Post("/commissioning/{protocol}", s.handleCommission)

			if s.scenes != nil {
				r.Route("/scenes", s.sceneRoutes)
			}

			r.With(s.requirePermission(auth.PermSystemAdmin)).
				Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
