package mw

import (
	"net/http"

	"github.com/go-pkgz/rest"
)

// reject answers with the same {"error": msg} body the API handlers use.
func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	rest.RenderJSON(w, rest.JSON{"error": msg})
}
