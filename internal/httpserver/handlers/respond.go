package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-pkgz/rest"

	"github.com/MrSnakeDoc/showcase/internal/gallery"
	"github.com/MrSnakeDoc/showcase/internal/imaging"
	"github.com/MrSnakeDoc/showcase/internal/logger"
)

var errBadID = errors.New("item id must be a positive integer")

// writeJSON renders v with status. rest.RenderJSON writes 200 unless a status was set first.
func writeJSON(w http.ResponseWriter, status int, v any) {
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
	}
	rest.RenderJSON(w, v)
}

// writeError renders {"error": msg} and logs the cause.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, status int, err error, msg string) {
	fields := []logger.Field{
		logger.String("path", r.URL.Path),
		logger.Int("status", status),
		logger.String("request_id", middleware.GetReqID(r.Context())),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error(msg, fields...)
	} else {
		log.Debug(msg, fields...)
	}
	writeJSON(w, status, rest.JSON{"error": msg})
}

// statusOf maps domain errors to HTTP statuses.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, gallery.ErrNotFound):
		return http.StatusNotFound, "item not found"
	case errors.Is(err, gallery.ErrInvalidOrder):
		return http.StatusBadRequest, "order must list every item exactly once"
	case errors.Is(err, imaging.ErrDecode):
		return http.StatusUnprocessableEntity, "image could not be decoded"
	case errors.Is(err, errBadID):
		return http.StatusBadRequest, errBadID.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func itemID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}
