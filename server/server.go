// Package server exposes the appliance's HTTP control surface: playback
// transport, catalog queries, preview toggling, cloud sync management
// and static serving of thumbnails and live-stream segments.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/avpd/avpd/boot"
	"github.com/avpd/avpd/playback"
	"github.com/avpd/avpd/syncer"
	"github.com/avpd/avpd/thumbnail"
	"github.com/avpd/avpd/where"
)

// Server wires the domain components into HTTP handlers.
type Server struct {
	controller *playback.Controller
	sync       *syncer.Syncer
	thumbs     *thumbnail.Generator
	boot       *boot.Sequencer
}

// New creates a Server over the given components. boot may be nil when
// the caller runs the startup sequence itself.
func New(controller *playback.Controller, sync *syncer.Syncer, thumbs *thumbnail.Generator, seq *boot.Sequencer) *Server {
	return &Server{
		controller: controller,
		sync:       sync,
		thumbs:     thumbs,
		boot:       seq,
	}
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /status_min", s.handleStatusMin)

	mux.HandleFunc("GET /videos", s.handleVideos)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("POST /play-video", s.handlePlayVideo)
	mux.HandleFunc("POST /select-index", s.handleSelectIndex)

	mux.HandleFunc("POST /play", s.handlePlay)
	mux.HandleFunc("POST /pause", s.handlePause)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /next", s.handleNext)
	mux.HandleFunc("POST /prev", s.handlePrev)
	mux.HandleFunc("POST /vol_up", s.handleVolumeUp)
	mux.HandleFunc("POST /vol_down", s.handleVolumeDown)
	mux.HandleFunc("POST /mute", s.handleMute)

	mux.HandleFunc("GET /api/preview/status", s.handlePreviewStatus)
	mux.HandleFunc("POST /api/preview/enable", s.handlePreviewEnable)
	mux.HandleFunc("POST /api/preview/disable", s.handlePreviewDisable)

	mux.HandleFunc("POST /api/rclone/sync", s.handleSync)
	mux.HandleFunc("GET /api/rclone/sync_status", s.handleSyncStatus)
	mux.HandleFunc("GET /api/rclone/log", s.handleSyncLog)
	mux.HandleFunc("GET /api/rclone/version", s.handleRcloneVersion)
	mux.HandleFunc("GET /api/rclone/remotes", s.handleRemotes)
	mux.HandleFunc("POST /api/rclone/config/create", s.handleRemoteCreate)
	mux.HandleFunc("POST /api/rclone/config/update", s.handleRemoteUpdate)
	mux.HandleFunc("POST /api/rclone/config/delete", s.handleRemoteDelete)
	mux.HandleFunc("GET /api/rclone/remote_folder", s.handleRemoteFolderGet)
	mux.HandleFunc("POST /api/rclone/remote_folder", s.handleRemoteFolderSet)

	mux.HandleFunc("GET /thumbnails/", func(w http.ResponseWriter, r *http.Request) {
		s.serveStatic(w, r, where.Thumbnails(), "/thumbnails/", "public, max-age=3600")
	})
	mux.HandleFunc("GET /hls/", func(w http.ResponseWriter, r *http.Request) {
		s.serveStatic(w, r, where.HLS(), "/hls/", "no-cache")
	})

	return mux
}

// ensureBooted lets the first poll kick the boot sequence even when the
// explicit startup hook has not fired yet.
func (s *Server) ensureBooted() {
	if s.boot != nil {
		s.boot.Start()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decodeBody parses a JSON request body into v. An empty body is not an
// error; handlers validate required fields themselves.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
