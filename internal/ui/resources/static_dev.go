//go:build dev

package resources

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

var logOnce sync.Once

// getStaticDir derives the absolute path to the static directory from the
// location of this source file.
func getStaticDir() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return StaticDirectoryPath
	}
	return filepath.Join(filepath.Dir(filename), "static")
}

func files() fs.FS {
	return os.DirFS(getStaticDir())
}

// Handler returns an HTTP handler for serving static files.
// In dev mode, files are read from disk on every request.
func Handler() http.Handler {
	logOnce.Do(func() {
		slog.Info("static assets served from filesystem", "path", getStaticDir())
	})
	return http.StripPrefix("/static/", http.FileServer(http.FS(files())))
}
