package handlers

import (
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/showcase/internal/gallery"
	"github.com/MrSnakeDoc/showcase/internal/httpserver/deps"
)

type noticesResponse struct {
	Notices []gallery.Notice `json:"notices"`
	Last    uint64           `json:"last"`
}

// Storage returns the advisory usage of the durable store.
func Storage(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Quota.Estimate(r.Context()))
	}
}

// Notices returns the notices with a sequence number above ?after=N.
func Notices(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var after uint64
		if v := r.URL.Query().Get("after"); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				writeError(w, r, d.Logger, http.StatusBadRequest, err, "after must be a non-negative integer")
				return
			}
			after = n
		}
		notices := d.Gallery.Notices()
		list := notices.Since(after)
		if list == nil {
			list = []gallery.Notice{}
		}
		writeJSON(w, http.StatusOK, noticesResponse{Notices: list, Last: notices.Last()})
	}
}
