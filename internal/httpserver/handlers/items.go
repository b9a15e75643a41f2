package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/showcase/internal/domain"
	"github.com/MrSnakeDoc/showcase/internal/httpserver/deps"
	"github.com/MrSnakeDoc/showcase/internal/quota"
)

// jsonBodyLimit caps the JSON bodies of item and order edits.
const jsonBodyLimit = 256 << 10

type listResponse struct {
	Items   []domain.Item `json:"items"`
	Storage quota.Status  `json:"storage"`
}

type orderRequest struct {
	Order domain.Order `json:"order"`
}

type orderResponse struct {
	Order domain.Order `json:"order"`
}

// ListItems returns the items in display order with the storage status.
func ListItems(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listResponse{
			Items:   d.Gallery.Items(),
			Storage: d.Quota.Estimate(r.Context()),
		})
	}
}

func GetItem(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemID(r)
		if err != nil {
			status, msg := statusOf(err)
			writeError(w, r, d.Logger, status, err, msg)
			return
		}
		it, ok := d.Gallery.Get(id)
		if !ok {
			writeError(w, r, d.Logger, http.StatusNotFound, fmt.Errorf("item %d", id), "item not found")
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

// CreateItem appends an item with the placeholder fields. The optional body overrides them.
func CreateItem(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch domain.Patch
		if err := decodeJSON(r, &patch, true); err != nil {
			writeError(w, r, d.Logger, http.StatusBadRequest, err, "invalid item body")
			return
		}
		writeJSON(w, http.StatusCreated, d.Gallery.Add(patch))
	}
}

func UpdateItem(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemID(r)
		if err != nil {
			status, msg := statusOf(err)
			writeError(w, r, d.Logger, status, err, msg)
			return
		}
		var patch domain.Patch
		if err := decodeJSON(r, &patch, false); err != nil {
			writeError(w, r, d.Logger, http.StatusBadRequest, err, "invalid item body")
			return
		}
		it, err := d.Gallery.Update(id, patch)
		if err != nil {
			status, msg := statusOf(err)
			writeError(w, r, d.Logger, status, err, msg)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

// DeleteItem answers 204 whether or not the item existed.
func DeleteItem(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemID(r)
		if err != nil {
			status, msg := statusOf(err)
			writeError(w, r, d.Logger, status, err, msg)
			return
		}
		d.Gallery.Delete(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func Reorder(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, r, d.Logger, http.StatusBadRequest, err, "invalid order body")
			return
		}
		if err := d.Gallery.Reorder(req.Order); err != nil {
			status, msg := statusOf(err)
			writeError(w, r, d.Logger, status, err, msg)
			return
		}
		writeJSON(w, http.StatusOK, orderResponse{Order: d.Gallery.Order()})
	}
}

// decodeJSON reads one JSON value into v. Unknown fields are rejected.
// An empty body is accepted only when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, jsonBodyLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("failed to decode body: %w", err)
	}
	return nil
}
