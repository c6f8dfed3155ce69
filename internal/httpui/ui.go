// Package httpui serves a built single-page marketplace UI next to the API.
package httpui

import (
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// apiPrefixes never fall back to index.html; a miss there is an API 404.
var apiPrefixes = []string{
	"/healthz",
	"/session",
	"/views",
	"/nfts",
	"/marketplace",
	"/auctions",
	"/collections",
	"/events",
}

// Dir serves the UI build output in dir (for example a Vite dist folder).
func Dir(dir string) (http.Handler, error) {
	dir = strings.TrimSpace(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "ui dir")
	}
	if !info.IsDir() {
		return nil, errors.Newf("ui dir %s is not a directory", dir)
	}
	return Handler(os.DirFS(dir))
}

// Handler serves real files from fsys and falls back to index.html for
// client-side routes.
func Handler(fsys fs.FS) (http.Handler, error) {
	if !exists(fsys, "index.html") {
		return nil, errors.New("ui build has no index.html")
	}

	// Some systems miss these.
	_ = mime.AddExtensionType(".js", "application/javascript; charset=utf-8")
	_ = mime.AddExtensionType(".mjs", "application/javascript; charset=utf-8")
	_ = mime.AddExtensionType(".css", "text/css; charset=utf-8")
	_ = mime.AddExtensionType(".svg", "image/svg+xml")

	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		p := path.Clean("/" + r.URL.Path)
		if IsAPIPath(p) {
			http.NotFound(w, r)
			return
		}

		name := strings.TrimPrefix(p, "/")
		if name != "" && exists(fsys, name) {
			setCacheHeaders(w, name)
			fileServer.ServeHTTP(w, r)
			return
		}

		// "/" and client routes get index.html. FileServer redirects
		// "/index.html" to "/", so hand it the root.
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		setCacheHeaders(w, "index.html")
		fileServer.ServeHTTP(w, r2)
	}), nil
}

// IsAPIPath reports whether p belongs to the local API.
func IsAPIPath(p string) bool {
	for _, prefix := range apiPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

func exists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}

func setCacheHeaders(w http.ResponseWriter, name string) {
	// Build assets are fingerprinted; index.html is not.
	switch strings.ToLower(filepath.Ext(name)) {
	case ".js", ".mjs", ".css", ".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico", ".woff", ".woff2", ".ttf", ".map":
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	default:
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
