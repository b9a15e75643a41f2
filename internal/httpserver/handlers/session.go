package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/showcase/internal/httpserver/deps"
)

type sessionResponse struct {
	Admin bool `json:"admin"`
}

type resetResponse struct {
	Items int `json:"items"`
}

type indexResponse struct {
	Name   string `json:"name"`
	Admin  bool   `json:"admin"`
	Items  string `json:"items"`
	Schema string `json:"schema"`
}

// Index is the landing document. It is also where ?admin=<token> usually redirects to.
func Index(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, indexResponse{
			Name:   "showcase",
			Admin:  d.Sessions.IsAdmin(r),
			Items:  "/api/items",
			Schema: "/api/export/schema",
		})
	}
}

// Session reports whether the caller is in admin mode.
func Session(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionResponse{Admin: d.Sessions.IsAdmin(r)})
	}
}

// EndSession leaves admin mode.
func EndSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, d.Sessions.ClearCookie())
		w.WriteHeader(http.StatusNoContent)
	}
}

// Reset wipes the persisted showcase and answers once the wipe ran.
func Reset(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Gallery.Reset(r.Context()); err != nil {
			writeError(w, r, d.Logger, http.StatusInternalServerError, err, "reset failed")
			return
		}
		writeJSON(w, http.StatusOK, resetResponse{Items: len(d.Gallery.Items())})
	}
}
