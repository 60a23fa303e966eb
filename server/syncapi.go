package server

import (
	"net/http"
	"strconv"

	"github.com/avpd/avpd/config"
	"github.com/avpd/avpd/key"
	"github.com/avpd/avpd/syncer"
	"github.com/spf13/viper"
)

const defaultLogLines = 50

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var target syncer.Target
	if err := decodeBody(r, &target); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if started := s.sync.SyncAsync(target); !started {
		writeJSON(w, http.StatusOK, map[string]any{"started": false, "status": "running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true, "status": "started"})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.sync.Current()
	body := map[string]any{
		"running":   status.Running,
		"available": s.sync.Available(),
		"remote":    s.sync.RemoteSpec(),
	}
	if last, ok := status.Last.Get(); ok {
		body["last_ok"] = last.OK
		body["last_message"] = last.Message
		body["last_finished_at"] = last.FinishedAt
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSyncLog(w http.ResponseWriter, r *http.Request) {
	lines := defaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": s.sync.LogTail(lines)})
}

func (s *Server) handleRcloneVersion(w http.ResponseWriter, _ *http.Request) {
	if !s.sync.Available() {
		httpError(w, http.StatusServiceUnavailable, "rclone not installed")
		return
	}
	version, err := s.sync.Version()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) handleRemotes(w http.ResponseWriter, _ *http.Request) {
	if !s.sync.Available() {
		httpError(w, http.StatusServiceUnavailable, "rclone not installed")
		return
	}
	remotes, err := s.sync.Remotes()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"remotes": remotes})
}

// remoteRequest covers rclone remote create/update/delete.
type remoteRequest struct {
	Name   string            `json:"name"`
	Type   string            `json:"type,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

func (s *Server) handleRemoteCreate(w http.ResponseWriter, r *http.Request) {
	var req remoteRequest
	if err := decodeBody(r, &req); err != nil || req.Name == "" || req.Type == "" {
		httpError(w, http.StatusBadRequest, "name and type required")
		return
	}
	if err := s.sync.CreateRemote(req.Name, req.Type, req.Params); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRemoteUpdate(w http.ResponseWriter, r *http.Request) {
	var req remoteRequest
	if err := decodeBody(r, &req); err != nil || req.Name == "" || len(req.Params) == 0 {
		httpError(w, http.StatusBadRequest, "name and params required")
		return
	}
	if err := s.sync.UpdateRemote(req.Name, req.Params); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRemoteDelete(w http.ResponseWriter, r *http.Request) {
	var req remoteRequest
	if err := decodeBody(r, &req); err != nil || req.Name == "" {
		httpError(w, http.StatusBadRequest, "name required")
		return
	}
	if err := s.sync.DeleteRemote(req.Name); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRemoteFolderGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"remote_folder": viper.GetString(key.LibraryRemoteFolder),
	})
}

type remoteFolderRequest struct {
	RemoteFolder string `json:"remote_folder"`
}

func (s *Server) handleRemoteFolderSet(w http.ResponseWriter, r *http.Request) {
	var req remoteFolderRequest
	if err := decodeBody(r, &req); err != nil || req.RemoteFolder == "" {
		httpError(w, http.StatusBadRequest, "remote_folder required")
		return
	}
	if err := config.Put(key.LibraryRemoteFolder, req.RemoteFolder); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"remote_folder": req.RemoteFolder})
}
