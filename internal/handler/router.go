package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/scheme-eligibility/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/schemes", func(r chi.Router) {
		r.Get("/", h.ListSchemes)
		r.Get("/{schemeID}", h.GetScheme)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/recommend/{userID}", h.Recommend)
			r.Post("/{schemeID}/check", h.CheckScheme)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/agent/run", h.RunAgent)
		r.Post("/agent/apply/{schemeID}", h.AgentApply)

		r.Post("/apply", h.Apply)
		r.Post("/apply/{applicationID}/upload", h.UploadDocument)
		r.Get("/applications", h.ListApplications)

		r.Get("/users/me", h.GetProfile)
		r.Patch("/users/me/profile", h.UpdateProfile)

		r.With(custommiddleware.RequireRole(custommiddleware.RoleReviewer)).
			Patch("/admin/applications/{applicationID}/status", h.SetStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
