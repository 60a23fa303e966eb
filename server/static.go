package server

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/avpd/avpd/filesystem"
)

// serveStatic serves one file from root, refusing anything that could
// escape it: absolute paths, empty names, path separators in the name
// and ".." segments.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request, root, prefix, cacheControl string) {
	name := strings.TrimPrefix(r.URL.Path, prefix)
	if !safeName(name) {
		httpError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	full := filepath.Join(root, name)
	info, err := filesystem.API().Stat(full)
	if err != nil || info.IsDir() {
		httpError(w, http.StatusNotFound, "file not found")
		return
	}

	file, err := filesystem.API().Open(full)
	if err != nil {
		httpError(w, http.StatusNotFound, "file not found")
		return
	}
	defer file.Close()

	w.Header().Set("Cache-Control", cacheControl)
	switch filepath.Ext(name) {
	case ".m3u8":
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	case ".ts":
		w.Header().Set("Content-Type", "video/mp2t")
	}
	http.ServeContent(w, r, name, info.ModTime(), file)
}

// safeName accepts only bare file names, with no traversal potential.
func safeName(name string) bool {
	if name == "" || filepath.IsAbs(name) {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	if name == ".." || strings.Contains(name, "..") {
		return false
	}
	return true
}
