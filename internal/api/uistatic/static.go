// Package uistatic serves the embedded single-page frontend.
package uistatic

import (
	"embed"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:app
var assetFS embed.FS

// Handler serves the bundled frontend. Unknown paths fall back to
// index.html so client-side routing keeps working after a reload.
func Handler() http.Handler {
	sub, err := fs.Sub(assetFS, "app")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if name != "." && name != "" {
			if _, err := fs.Stat(sub, name); err == nil {
				files.ServeHTTP(w, r)
				return
			}
		}

		index, err := sub.Open("index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer func() { _ = index.Close() }()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.Copy(w, index)
	})
}
