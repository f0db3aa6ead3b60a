package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Devices
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.HandleListDevices)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetDevice)
				r.Get("/snapshot", s.HandleGetSnapshot)
				r.Get("/capabilities", s.HandleGetCapabilities)
				r.Post("/refresh", s.HandleRefreshDevice)
				r.Post("/wps", s.HandleSetWPS)
			})
		})

		// Commands
		r.Route("/commands", func(r chi.Router) {
			r.Post("/reboot", s.HandleReboot)
			r.Post("/exec", s.HandleExec)
			r.Post("/service", s.HandleServiceInit)
			r.Post("/call", s.HandleCall)
		})
	})
}
