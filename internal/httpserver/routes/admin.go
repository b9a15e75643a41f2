package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-pkgz/rest"

	"github.com/MrSnakeDoc/showcase/internal/httpserver/deps"
	"github.com/MrSnakeDoc/showcase/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/showcase/internal/httpserver/mw"
)

func init() { Register("admin", registerAdmin, rest.NoCache) }

func registerAdmin(r chi.Router, d deps.Deps) {
	r.Get("/", handlers.Index(d))
	r.Get("/api/session", handlers.Session(d))
	r.Delete("/api/session", handlers.EndSession(d))
	r.Get("/api/storage", handlers.Storage(d))
	r.Get("/api/export/schema", handlers.ExportSchema(d))

	admin := r.With(mw.RequireAdmin(d.Sessions))
	admin.Get("/api/export", handlers.Export(d))
	admin.Get("/api/notices", handlers.Notices(d))
	admin.With(writeLimit(d)).Post("/api/reset", handlers.Reset(d))
}
