package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/inspections", app.SubmitInspectionHandler)
		r.Get("/inspections", app.ListInspectionsHandler)
		r.Get("/inspections/{id}", app.GetInspectionHandler)
	})

	return r
}
