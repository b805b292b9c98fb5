package http

import (
	"io/fs"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

func init() {
	// some systems miss these
	_ = mime.AddExtensionType(".js", "application/javascript; charset=utf-8")
	_ = mime.AddExtensionType(".mjs", "application/javascript; charset=utf-8")
	_ = mime.AddExtensionType(".css", "text/css; charset=utf-8")
	_ = mime.AddExtensionType(".svg", "image/svg+xml")
}

// uiHandler serves a built single-page dashboard from fsys.
// Real files are served as-is; unknown paths fall back to index.html so
// client-side routes work. API paths are never captured.
func uiHandler(fsys fs.FS) gin.HandlerFunc {
	fileServer := http.FileServer(http.FS(fsys))

	return func(c *gin.Context) {
		r := c.Request
		p := path.Clean("/" + r.URL.Path)

		if strings.HasPrefix(p, "/api/") || p == "/api" || p == "/metrics" || p == "/healthz" {
			c.JSON(http.StatusNotFound, errorRes{Error: "not found"})
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			c.JSON(http.StatusMethodNotAllowed, errorRes{Error: "method not allowed"})
			return
		}

		name := strings.TrimPrefix(p, "/")
		if name == "" {
			name = "index.html"
		}
		if !exists(fsys, name) {
			name = "index.html"
			r = r.Clone(r.Context())
			r.URL.Path = "/"
		}

		setCacheHeaders(c.Writer, name)
		fileServer.ServeHTTP(c.Writer, r)
	}
}

func exists(fsys fs.FS, name string) bool {
	st, err := fs.Stat(fsys, name)
	return err == nil && !st.IsDir()
}

// Bundled assets are fingerprinted, so everything but index.html can be
// cached long.
func setCacheHeaders(w http.ResponseWriter, name string) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".js", ".mjs", ".css", ".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico", ".woff", ".woff2", ".ttf", ".map":
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	default:
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
