package handlers

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".mp4":  "video/mp4",
}

// publicPrefixes are the derived-asset directories that are served without
// a signature. Everything else (user uploads, raw results) needs a signed
// URL.
var publicPrefixes = []string{"previews/", "posters/", "clips/"}

func isPublicKey(key string) bool {
	// keys are {user_id}/{category}/{file}
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 {
		return false
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(parts[1], prefix) {
			return true
		}
	}
	return false
}

// FileServe streams a stored asset. Derived artifacts are public; any other
// key requires a valid expires/sig pair issued by the store.
func (a *App) FileServe(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "file key required")
		return
	}

	if !isPublicKey(key) {
		if err := a.Store.VerifySignedQuery(key, r.URL.Query()); err != nil {
			a.error(w, http.StatusForbidden, "forbidden", "valid signature required")
			return
		}
	}

	data, err := a.Store.Read(r.Context(), key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	if ct, ok := contentTypes[strings.ToLower(path.Ext(key))]; ok {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(data)
}
