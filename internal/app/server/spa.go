package server

import (
	"net/http"
	"os"
	"path/filepath"

	"personnel/internal/transport/http/api"
	"personnel/internal/transport/http/middleware"
)

// spaHandler serves the built frontend and falls back to index.html for
// client side routes. Without a frontend build the root answers with a
// status message.
type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	index := filepath.Join(h.staticPath, h.indexPath)
	if _, err := os.Stat(index); err != nil {
		if r.URL.Path == "/" {
			api.Success(w, map[string]string{"message": "API is running..."}, middleware.GetRequestID(r.Context()))
			return
		}
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))
	_, err := os.Stat(path)
	if err == nil {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if os.IsNotExist(err) {
		http.ServeFile(w, r, index)
		return
	}

	http.NotFound(w, r)
}
