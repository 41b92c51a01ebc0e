package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/lab-access/internal/web/handlers"
	"github.com/kozaktomas/lab-access/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.checks)
	scanHandler := handlers.NewScanHandler(s.svc)
	labsHandler := handlers.NewLabsHandler(s.store)
	membersHandler := handlers.NewMembersHandler(s.svc, s.store)
	eventsHandler := handlers.NewEventsHandler(s.store)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Door terminals authenticate by network placement, not by passcode
		r.Get("/health", healthHandler.Get)
		r.Post("/labs/{labID}/scan", scanHandler.Scan)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.config.Access.AdminPasscode))

			// Labs
			r.Get("/labs", labsHandler.List)
			r.Post("/labs", labsHandler.Create)
			r.Get("/labs/{labID}/members", labsHandler.Members)

			// Roster
			r.Get("/members", membersHandler.List)
			r.Post("/members", membersHandler.Enroll)
			r.Get("/members/{memberID}", membersHandler.Get)
			r.Put("/members/{memberID}", membersHandler.Update)
			r.Delete("/members/{memberID}", membersHandler.Remove)
			r.Get("/members/{memberID}/face", membersHandler.Face)

			// Audit trail
			r.Get("/events", eventsHandler.List)
		})
	})
}
