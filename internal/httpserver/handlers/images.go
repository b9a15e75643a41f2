package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/MrSnakeDoc/showcase/internal/httpserver/deps"
	"github.com/MrSnakeDoc/showcase/internal/imaging"
	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/utils"
)

// uploadField is the multipart field holding the image.
const uploadField = "image"

type hitRequest struct {
	imaging.Box
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PasteItem creates an item from the uploaded image. Nothing changes when it cannot be decoded.
func PasteItem(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := uploadBody(r)
		if err != nil {
			writeError(w, r, d.Logger, http.StatusBadRequest, err, "missing image")
			return
		}
		defer utils.Close(body)

		it, err := d.Gallery.Paste(r.Context(), body)
		if err != nil {
			status, msg := statusOf(err)
			writeError(w, r, d.Logger, status, err, msg)
			return
		}
		d.Logger.Info("item pasted", logger.Int64("id", it.ID), logger.Int("image_bytes", len(it.Image)))
		writeJSON(w, http.StatusCreated, it)
	}
}

// ReplaceImage stores the uploaded image on an existing item.
func ReplaceImage(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemID(r)
		if err != nil {
			status, msg := statusOf(err)
			writeError(w, r, d.Logger, status, err, msg)
			return
		}
		body, err := uploadBody(r)
		if err != nil {
			writeError(w, r, d.Logger, http.StatusBadRequest, err, "missing image")
			return
		}
		defer utils.Close(body)

		it, err := d.Gallery.ReplaceImage(r.Context(), id, body)
		if err != nil {
			status, msg := statusOf(err)
			writeError(w, r, d.Logger, status, err, msg)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

// ImageHit tells whether a click on the displayed image landed on a visible pixel.
// Images that are not embedded cannot be read back, so clicks on them always hit.
func ImageHit(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemID(r)
		if err != nil {
			status, msg := statusOf(err)
			writeError(w, r, d.Logger, status, err, msg)
			return
		}
		var req hitRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, r, d.Logger, http.StatusBadRequest, err, "invalid hit body")
			return
		}
		it, ok := d.Gallery.Get(id)
		if !ok {
			writeError(w, r, d.Logger, http.StatusNotFound, fmt.Errorf("item %d", id), "item not found")
			return
		}
		if !imaging.IsDataURI(it.Image) {
			writeJSON(w, http.StatusOK, imaging.Hit{OnImage: true})
			return
		}
		img, err := d.HitImages.Image(it.Image)
		if err != nil {
			d.Logger.Debug("stored image unreadable, assuming hit", logger.Int64("id", id), logger.Error(err))
			writeJSON(w, http.StatusOK, imaging.Hit{OnImage: true})
			return
		}
		writeJSON(w, http.StatusOK, imaging.HitTest(req.Box, img, req.X, req.Y))
	}
}

// uploadBody returns the multipart "image" part, or the raw body for any other content type.
func uploadBody(r *http.Request) (io.ReadCloser, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.Body == nil || r.Body == http.NoBody {
			return nil, fmt.Errorf("empty body")
		}
		return r.Body, nil
	}
	f, _, err := r.FormFile(uploadField)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q part: %w", uploadField, err)
	}
	return f, nil
}
