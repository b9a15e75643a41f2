package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-pkgz/rest"

	"github.com/MrSnakeDoc/showcase/internal/httpserver/deps"
	"github.com/MrSnakeDoc/showcase/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/showcase/internal/httpserver/mw"
)

func init() { Register("items", registerItems, rest.NoCache) }

func registerItems(r chi.Router, d deps.Deps) {
	r.Get("/api/items", handlers.ListItems(d))
	r.Get("/api/items/{id}", handlers.GetItem(d))
	r.Post("/api/items/{id}/image/hit", handlers.ImageHit(d))

	admin := r.With(mw.RequireAdmin(d.Sessions), writeLimit(d))
	admin.Post("/api/items", handlers.CreateItem(d))
	admin.Patch("/api/items/{id}", handlers.UpdateItem(d))
	admin.Delete("/api/items/{id}", handlers.DeleteItem(d))
	admin.Put("/api/order", handlers.Reorder(d))

	uploads := admin.With(rest.SizeLimit(d.UploadLimit))
	uploads.Post("/api/items/paste", handlers.PasteItem(d))
	uploads.Put("/api/items/{id}/image", handlers.ReplaceImage(d))
}

// writeLimit throttles admin writes per client.
func writeLimit(d deps.Deps) Middleware {
	return mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.WriteLimit.Burst,
		RefillPerIPPerMin: d.WriteLimit.RefillPerMin,
		MaxEntries:        1024,
		TrustProxy:        d.TrustProxy,
	})
}
