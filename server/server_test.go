package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avpd/avpd/boot"
	"github.com/avpd/avpd/catalog"
	"github.com/avpd/avpd/config"
	"github.com/avpd/avpd/engine"
	"github.com/avpd/avpd/filesystem"
	"github.com/avpd/avpd/key"
	"github.com/avpd/avpd/playback"
	"github.com/avpd/avpd/syncer"
	"github.com/avpd/avpd/thumbnail"
	"github.com/avpd/avpd/where"
	"github.com/samber/lo"
	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

// stubEngine satisfies engine.Engine for handler tests.
type stubEngine struct {
	state  engine.State
	loaded bool
}

func (e *stubEngine) Start() error                 { return nil }
func (e *stubEngine) Ready() bool                  { return true }
func (e *stubEngine) LastError() mo.Option[string] { return mo.None[string]() }
func (e *stubEngine) Load(string, engine.LoadOptions) error {
	e.loaded = true
	e.state = engine.StatePaused
	return nil
}
func (e *stubEngine) Play() error {
	e.state = engine.StatePlaying
	return nil
}
func (e *stubEngine) Pause() error {
	e.state = engine.StatePaused
	return nil
}
func (e *stubEngine) Stop() error {
	e.loaded = false
	e.state = engine.StateStopped
	return nil
}
func (e *stubEngine) HasMedia() bool             { return e.loaded }
func (e *stubEngine) SetVolume(int) error        { return nil }
func (e *stubEngine) SetMute(bool) error         { return nil }
func (e *stubEngine) Muted() (bool, error)       { return false, nil }
func (e *stubEngine) Position() (float64, error) { return 0, nil }
func (e *stubEngine) Duration() (float64, error) { return 0, nil }
func (e *stubEngine) State() engine.State {
	if e.state == "" {
		return engine.StateIdle
	}
	return e.state
}
func (e *stubEngine) OnEndReached(func()) {}
func (e *stubEngine) Close() error        { return nil }

func newTestServer(names ...string) http.Handler {
	sync := syncer.NewWithRunner(
		func(string, ...string) ([]byte, error) { return []byte("ok\n"), nil },
		func(string) (string, error) { return "/usr/bin/rclone", nil },
	)
	return newTestServerWithSync(sync, names...)
}

func newTestServerWithSync(sync *syncer.Syncer, names ...string) http.Handler {
	filesystem.SetMemMapFs()
	lo.Must0(config.Setup())
	viper.Set(key.PlaybackLoopAll, true)
	viper.Set(key.PlaybackAutoplay, true)
	viper.Set(key.PlaybackVolumeStep, 10)
	viper.Set(key.PlaybackStartAt, 5)
	viper.Set(key.PreviewEnabled, false)
	viper.Set(key.SyncRemote, "gdrive")
	viper.Set(key.LibraryRemoteFolder, "VideosRPi")

	_ = filesystem.API().MkdirAll("/videos", 0o755)
	for _, name := range names {
		_ = filesystem.API().WriteFile(filepath.Join("/videos", name), []byte("x"), 0o644)
	}

	cat := catalog.New("/videos")
	cat.Refresh(true)

	controller := playback.New(&stubEngine{}, cat)
	thumbs := thumbnail.NewWithExtractor(func(_, thumbPath string, _ int) error {
		return filesystem.API().WriteFile(thumbPath, []byte("jpg"), 0o644)
	})

	var seq *boot.Sequencer
	return New(controller, sync, thumbs, seq).Handler()
}

func do(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	lo.Must0(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthAndStatus(t *testing.T) {
	Convey("Liveness and status", t, func() {
		handler := newTestServer("a.mp4", "b.mp4")

		Convey("GET /health should report ok", func() {
			rec := do(handler, http.MethodGet, "/health", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["status"], ShouldEqual, "ok")
		})

		Convey("GET /status should merge engine and catalog state", func() {
			rec := do(handler, http.MethodGet, "/status", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			body := decode(rec)
			So(body["count"], ShouldEqual, 2)
			So(body["engine_state"], ShouldEqual, "idle")
			So(body["engine_ready"], ShouldBeTrue)
		})

		Convey("GET /status_min should return the catalog subset", func() {
			rec := do(handler, http.MethodGet, "/status_min", "")
			body := decode(rec)
			So(body["count"], ShouldEqual, 2)
			So(body["current_name"], ShouldEqual, "a.mp4")
		})

		Convey("Transport endpoints should reject GET", func() {
			rec := do(handler, http.MethodGet, "/next", "")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestPlaybackEndpoints(t *testing.T) {
	Convey("Playback endpoints", t, func() {
		handler := newTestServer("a.mp4", "b.mp4")

		Convey("POST /play-video by index should load and play", func() {
			rec := do(handler, http.MethodPost, "/play-video", `{"index":1}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["name"], ShouldEqual, "b.mp4")
		})

		Convey("POST /play-video with an unknown name should suggest the closest match", func() {
			rec := do(handler, http.MethodPost, "/play-video", `{"name":"a.mp"}`)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(decode(rec)["did_you_mean"], ShouldEqual, "a.mp4")
		})

		Convey("POST /play-video without index or name should be a client error", func() {
			rec := do(handler, http.MethodPost, "/play-video", `{}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /select-index out of range should be not found", func() {
			rec := do(handler, http.MethodPost, "/select-index", `{"index":9}`)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("POST /next should advance with looping", func() {
			rec := do(handler, http.MethodPost, "/next", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["name"], ShouldEqual, "b.mp4")
		})

		Convey("POST /vol_down should step the volume", func() {
			rec := do(handler, http.MethodPost, "/vol_down", "")
			So(decode(rec)["volume"], ShouldEqual, 90)
		})

		Convey("POST /mute should toggle", func() {
			rec := do(handler, http.MethodPost, "/mute", "")
			So(decode(rec)["muted"], ShouldBeTrue)
		})

		Convey("POST /refresh should leave a media loaded when autoplay is on", func() {
			rec := do(handler, http.MethodPost, "/refresh", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["count"], ShouldEqual, 2)

			rec = do(handler, http.MethodGet, "/status", "")
			So(decode(rec)["loaded_name"], ShouldEqual, "a.mp4")
		})

		Convey("GET /videos should list entries with thumbnail links", func() {
			rec := do(handler, http.MethodGet, "/videos", "")
			body := decode(rec)
			So(body["count"], ShouldEqual, 2)

			videos := body["videos"].([]any)
			first := videos[0].(map[string]any)
			So(first["name"], ShouldEqual, "a.mp4")
			So(first["thumb"], ShouldEqual, "/thumbnails/a.jpg")
		})
	})
}

func TestSyncEndpoints(t *testing.T) {
	Convey("Sync endpoints", t, func() {
		handler := newTestServer("a.mp4")

		Convey("GET /api/rclone/sync_status should report availability", func() {
			rec := do(handler, http.MethodGet, "/api/rclone/sync_status", "")
			body := decode(rec)
			So(body["available"], ShouldBeTrue)
			So(body["remote"], ShouldEqual, "gdrive:VideosRPi")
		})

		Convey("GET /api/rclone/log with bad lines should be a client error", func() {
			rec := do(handler, http.MethodGet, "/api/rclone/log?lines=zero", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /api/rclone/config/create without a type should be rejected", func() {
			rec := do(handler, http.MethodPost, "/api/rclone/config/create", `{"name":"gdrive"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /api/rclone/sync should honor body overrides", func() {
			argsCh := make(chan []string, 1)
			capture := syncer.NewWithRunner(
				func(_ string, args ...string) ([]byte, error) {
					argsCh <- append([]string(nil), args...)
					return nil, nil
				},
				func(string) (string, error) { return "/usr/bin/rclone", nil },
			)
			h := newTestServerWithSync(capture, "a.mp4")

			rec := do(h, http.MethodPost, "/api/rclone/sync",
				`{"remote":"dropbox","folder":"Movies","dest_dir":"/mnt/alt"}`)
			So(rec.Code, ShouldEqual, http.StatusAccepted)

			var got []string
			select {
			case got = <-argsCh:
			case <-time.After(time.Second):
			}
			So(got, ShouldResemble, []string{"sync", "dropbox:Movies", "/mnt/alt", "--delete-during"})
		})

		Convey("POST /api/rclone/sync with invalid JSON should be rejected", func() {
			rec := do(handler, http.MethodPost, "/api/rclone/sync", `{"remote":`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Remote folder should round-trip", func() {
			rec := do(handler, http.MethodPost, "/api/rclone/remote_folder", `{"remote_folder":"Other"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)

			rec = do(handler, http.MethodGet, "/api/rclone/remote_folder", "")
			So(decode(rec)["remote_folder"], ShouldEqual, "Other")
		})
	})
}

func TestStaticServing(t *testing.T) {
	Convey("Static file serving", t, func() {
		handler := newTestServer()

		Convey("Should serve thumbnails with a long-lived cache header", func() {
			path := filepath.Join(where.Thumbnails(), "clip.jpg")
			lo.Must0(filesystem.API().WriteFile(path, []byte("jpg-bytes"), 0o644))

			rec := do(handler, http.MethodGet, "/thumbnails/clip.jpg", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Cache-Control"), ShouldEqual, "public, max-age=3600")
			So(rec.Body.String(), ShouldEqual, "jpg-bytes")
		})

		Convey("Should serve stream segments uncached", func() {
			path := filepath.Join(where.HLS(), "index.m3u8")
			lo.Must0(filesystem.API().WriteFile(path, []byte("#EXTM3U"), 0o644))

			rec := do(handler, http.MethodGet, "/hls/index.m3u8", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Cache-Control"), ShouldEqual, "no-cache")
			So(rec.Header().Get("Content-Type"), ShouldEqual, "application/vnd.apple.mpegurl")
		})

		Convey("Should reject traversal attempts", func() {
			So(safeName("../secrets"), ShouldBeFalse)
			So(safeName("/etc/passwd"), ShouldBeFalse)
			So(safeName("a/b.jpg"), ShouldBeFalse)
			So(safeName(""), ShouldBeFalse)
			So(safeName("clip.jpg"), ShouldBeTrue)
		})

		Convey("Missing files should be not found", func() {
			rec := do(handler, http.MethodGet, "/thumbnails/nope.jpg", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
