package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"imagedash/internal/storage"
)

// Blob serves a materialized result image. Revoked images are gone.
func (a *App) Blob(w http.ResponseWriter, r *http.Request) {
	path, err := a.Blobs.Path(chi.URLParam(r, "key"))
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "image not found")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid image key")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to read image")
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
