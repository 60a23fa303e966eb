package server

import (
	"net/http"
	"sort"

	"github.com/avpd/avpd/catalog"
	"github.com/avpd/avpd/key"
	"github.com/avpd/avpd/playback"
	"github.com/avpd/avpd/preview"
	"github.com/avpd/avpd/util"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// playRequest selects a video either by explicit index or by exact name.
type playRequest struct {
	Index *int   `json:"index,omitempty"`
	Name  string `json:"name,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.ensureBooted()
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleStatusMin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.StatusMin())
}

type videoItem struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Thumb string `json:"thumb"`
}

func (s *Server) handleVideos(w http.ResponseWriter, _ *http.Request) {
	s.controller.RefreshOpportunistic()

	entries := s.controller.Catalog().List()
	items := make([]videoItem, 0, len(entries))
	for i, entry := range entries {
		items = append(items, videoItem{
			Index: i,
			Name:  entry.Name,
			Thumb: "/thumbnails/" + thumbName(entry.Name),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(items),
		"index":  s.controller.Catalog().Index(),
		"videos": items,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	res := s.controller.Catalog().Refresh(true)
	if res.Count > 0 && viper.GetBool(key.PlaybackAutoplay) {
		// keep a media loaded after the rescan so play needs no extra step
		s.controller.SetMediaCurrent()
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePlayVideo(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeBody(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch {
	case req.Index != nil:
		result := s.controller.SetMediaByIndex(*req.Index)
		if !result.OK {
			httpError(w, http.StatusNotFound, result.Error)
			return
		}
		writeJSON(w, http.StatusOK, s.controller.PlayCurrent())
	case req.Name != "":
		result := s.controller.SetMediaByName(req.Name)
		if !result.OK {
			s.notFoundWithSuggestion(w, req.Name, result.Error)
			return
		}
		writeJSON(w, http.StatusOK, s.controller.PlayCurrent())
	default:
		httpError(w, http.StatusBadRequest, "index or name required")
	}
}

// notFoundWithSuggestion enriches a name miss with the closest catalog
// entry so typos on the remote are one tap from recovery.
func (s *Server) notFoundWithSuggestion(w http.ResponseWriter, name, msg string) {
	names := lo.Map(s.controller.Catalog().List(), func(e catalog.Entry, _ int) string {
		return e.Name
	})

	body := map[string]string{"error": msg}
	if ranks := fuzzy.RankFindNormalizedFold(name, names); len(ranks) > 0 {
		sort.Sort(ranks)
		body["did_you_mean"] = ranks[0].Target
	}
	writeJSON(w, http.StatusNotFound, body)
}

func (s *Server) handleSelectIndex(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeBody(r, &req); err != nil || req.Index == nil {
		httpError(w, http.StatusBadRequest, "index required")
		return
	}

	result := s.controller.SetMediaByIndex(*req.Index)
	if !result.OK {
		httpError(w, http.StatusNotFound, result.Error)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePlay(w http.ResponseWriter, _ *http.Request) {
	s.writeLoadResult(w, s.controller.PlayCurrent())
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.Pause(); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.Stop(); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	s.writeLoadResult(w, s.controller.Next())
}

func (s *Server) handlePrev(w http.ResponseWriter, _ *http.Request) {
	s.writeLoadResult(w, s.controller.Prev())
}

func (s *Server) writeLoadResult(w http.ResponseWriter, result playback.LoadResult) {
	if !result.OK {
		httpError(w, http.StatusConflict, result.Error)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVolumeUp(w http.ResponseWriter, _ *http.Request) {
	s.writeVolume(w)(s.controller.VolumeUp())
}

func (s *Server) handleVolumeDown(w http.ResponseWriter, _ *http.Request) {
	s.writeVolume(w)(s.controller.VolumeDown())
}

func (s *Server) writeVolume(w http.ResponseWriter) func(int, error) {
	return func(volume int, err error) {
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"volume": volume})
	}
}

func (s *Server) handleMute(w http.ResponseWriter, _ *http.Request) {
	muted, err := s.controller.ToggleMute()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"muted": muted})
}

func (s *Server) handlePreviewStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, preview.Current())
}

func (s *Server) handlePreviewEnable(w http.ResponseWriter, _ *http.Request) {
	if err := preview.Enable(); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.controller.ReloadCurrent()
	writeJSON(w, http.StatusOK, preview.Current())
}

func (s *Server) handlePreviewDisable(w http.ResponseWriter, _ *http.Request) {
	if err := preview.Disable(); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.controller.ReloadCurrent()
	writeJSON(w, http.StatusOK, preview.Current())
}

// thumbName maps a video filename to its thumbnail filename.
func thumbName(videoName string) string {
	return util.FileStem(videoName) + ".jpg"
}
