package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/showcase/internal/domain"
	"github.com/MrSnakeDoc/showcase/internal/httpserver/deps"
)

// Export returns the pretty-printed items document.
func Export(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := d.Gallery.Export()
		if err != nil {
			writeError(w, r, d.Logger, http.StatusInternalServerError, err, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(data)
	}
}

func ExportSchema(d deps.Deps) http.HandlerFunc {
	schema := domain.ExportSchema()
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, schema)
	}
}
