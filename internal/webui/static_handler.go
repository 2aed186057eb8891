package webui

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pietrosul/MyBusApp/internal/logging"
)

const indexFile = "index.html"

var allowedExtensions = map[string]bool{
	".html": true, ".css": true, ".js": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".svg": true,
	".ico": true, ".webmanifest": true,
}

// staticHandler serves a single file of the map client from StaticDir.
// Only top level files with a known extension are served.
func (webUI *WebUI) staticHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if name == "" {
		name = indexFile
	}
	fileName := filepath.Base(name)

	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if strings.Contains(fileName, "..") || strings.ContainsAny(fileName, `/\`) {
		http.Error(w, "Invalid file name", http.StatusBadRequest)
		return
	}

	staticDir, err := filepath.Abs(webUI.Config.StaticDir)
	if err != nil {
		http.Error(w, "Internal configuration error", http.StatusInternalServerError)
		return
	}
	absPath, err := filepath.Abs(filepath.Join(staticDir, fileName))
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	rel, err := filepath.Rel(staticDir, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		webUI.logger().Warn("potential path traversal attempt blocked", slog.String("path", absPath))
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	stat, err := os.Stat(absPath)
	if err != nil || stat.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	f, err := os.Open(absPath)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer logging.SafeCloseWithLogging(f, webUI.logger(), absPath)

	http.ServeContent(w, r, fileName, stat.ModTime(), f)
}
