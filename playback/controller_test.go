package playback

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/avpd/avpd/catalog"
	"github.com/avpd/avpd/engine"
	"github.com/avpd/avpd/filesystem"
	"github.com/avpd/avpd/key"
	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

// fakeEngine records transport calls without spawning anything.
type fakeEngine struct {
	mu       sync.Mutex
	loaded   string
	state    engine.State
	volume   int
	muted    bool
	calls    []string
	callback func()
	loadErr  error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{state: engine.StateIdle}
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEngine) Start() error { return nil }
func (f *fakeEngine) Ready() bool  { return true }

var _ engine.Engine = (*fakeEngine)(nil)

func (f *fakeEngine) LastError() mo.Option[string] { return mo.None[string]() }

func (f *fakeEngine) Load(path string, opts engine.LoadOptions) error {
	f.record("load " + filepath.Base(path))
	if f.loadErr != nil {
		return f.loadErr
	}
	f.mu.Lock()
	f.loaded = path
	f.state = engine.StatePaused
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Play() error {
	f.record("play")
	f.mu.Lock()
	f.state = engine.StatePlaying
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Pause() error {
	f.record("pause")
	f.mu.Lock()
	f.state = engine.StatePaused
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Stop() error {
	f.record("stop")
	f.mu.Lock()
	f.loaded = ""
	f.state = engine.StateStopped
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) HasMedia() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded != ""
}

func (f *fakeEngine) SetVolume(percent int) error {
	f.mu.Lock()
	f.volume = percent
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) SetMute(muted bool) error {
	f.mu.Lock()
	f.muted = muted
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Muted() (bool, error)       { return f.muted, nil }
func (f *fakeEngine) Position() (float64, error) { return 0, nil }
func (f *fakeEngine) Duration() (float64, error) { return 0, nil }

func (f *fakeEngine) State() engine.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEngine) OnEndReached(callback func()) { f.callback = callback }
func (f *fakeEngine) Close() error                 { return nil }

func setup(names ...string) (*Controller, *fakeEngine) {
	filesystem.SetMemMapFs()
	viper.Set(key.PlaybackLoopAll, true)
	viper.Set(key.PlaybackAutoplay, true)
	viper.Set(key.PlaybackVolumeStep, 10)
	viper.Set(key.PlaybackStartAt, 5)
	viper.Set(key.PreviewEnabled, false)

	_ = filesystem.API().MkdirAll("/videos", 0o755)
	for _, name := range names {
		_ = filesystem.API().WriteFile(filepath.Join("/videos", name), []byte("x"), 0o644)
	}

	cat := catalog.New("/videos")
	cat.Refresh(true)

	eng := newFakeEngine()
	return New(eng, cat), eng
}

func TestAutoplayLoop(t *testing.T) {
	Convey("Looped autoplay", t, func() {
		c, eng := setup("a.mp4", "b.mp4")

		Convey("Next should advance, load and play", func() {
			result := c.Next()
			So(result.OK, ShouldBeTrue)
			So(result.Name, ShouldEqual, "b.mp4")
			So(eng.State(), ShouldEqual, engine.StatePlaying)
		})

		Convey("Next from the last entry should wrap to the first", func() {
			c.Next()
			result := c.Next()
			So(result.OK, ShouldBeTrue)
			So(result.Name, ShouldEqual, "a.mp4")
			So(eng.State(), ShouldEqual, engine.StatePlaying)
		})

		Convey("Next without autoplay should load but not play", func() {
			viper.Set(key.PlaybackAutoplay, false)
			result := c.Next()
			So(result.OK, ShouldBeTrue)
			So(eng.State(), ShouldEqual, engine.StatePaused)
		})

		Convey("End of media should advance when looping", func() {
			c.PlayCurrent()
			c.handleEndReached()
			So(c.Status().CurrentName, ShouldEqual, "b.mp4")
			So(eng.State(), ShouldEqual, engine.StatePlaying)
		})

		Convey("End of media should stay put when loop is off", func() {
			viper.Set(key.PlaybackLoopAll, false)
			c.PlayCurrent()
			before := eng.callCount()

			c.handleEndReached()
			So(eng.callCount(), ShouldEqual, before)
		})
	})
}

func TestEmptyCatalog(t *testing.T) {
	Convey("Empty catalog", t, func() {
		c, eng := setup()

		Convey("PlayCurrent should fail without touching the engine", func() {
			result := c.PlayCurrent()
			So(result.OK, ShouldBeFalse)
			So(result.Error, ShouldEqual, "catalog is empty")
			So(eng.callCount(), ShouldEqual, 0)
		})

		Convey("Status should report an empty library", func() {
			status := c.Status()
			So(status.Count, ShouldEqual, 0)
			So(status.Index, ShouldEqual, -1)
			So(status.CurrentName, ShouldBeEmpty)
		})
	})
}

func TestSelection(t *testing.T) {
	Convey("Media selection", t, func() {
		c, eng := setup("a.mp4", "b.mp4")

		Convey("SetMediaByIndex should reject an out-of-range index", func() {
			result := c.SetMediaByIndex(5)
			So(result.OK, ShouldBeFalse)
			So(result.Error, ShouldContainSubstring, "out of range")
			So(eng.callCount(), ShouldEqual, 0)
		})

		Convey("SetMediaByIndex should load without playing", func() {
			result := c.SetMediaByIndex(1)
			So(result.OK, ShouldBeTrue)
			So(result.Name, ShouldEqual, "b.mp4")
			So(eng.State(), ShouldEqual, engine.StatePaused)
			So(c.Status().LoadedName, ShouldEqual, "b.mp4")
		})

		Convey("SetMediaByName should fail for unknown names and leave state alone", func() {
			before := c.Status()
			result := c.SetMediaByName("missing.mp4")
			So(result.OK, ShouldBeFalse)
			So(result.Error, ShouldContainSubstring, "not found")
			So(c.Status(), ShouldResemble, before)
		})

		Convey("Pause and Stop should be no-ops with nothing loaded", func() {
			So(c.Pause(), ShouldBeNil)
			So(c.Stop(), ShouldBeNil)
			So(eng.callCount(), ShouldEqual, 0)
		})

		Convey("ReloadCurrent should resume a playing video", func() {
			c.SetMediaByIndex(0)
			c.PlayCurrent()

			result := c.ReloadCurrent()
			So(result.OK, ShouldBeTrue)
			So(eng.State(), ShouldEqual, engine.StatePlaying)
		})
	})
}

func TestVolume(t *testing.T) {
	Convey("Volume", t, func() {
		c, eng := setup("a.mp4")

		Convey("Should step down and back up by the configured step", func() {
			vol, err := c.VolumeDown()
			So(err, ShouldBeNil)
			So(vol, ShouldEqual, 90)

			vol, _ = c.VolumeUp()
			So(vol, ShouldEqual, 100)
		})

		Convey("Should clamp at the user ceiling", func() {
			vol, _ := c.VolumeUp()
			So(vol, ShouldEqual, 100)
		})

		Convey("Should clamp at zero", func() {
			for i := 0; i < 15; i++ {
				c.VolumeDown()
			}
			So(c.Status().Volume, ShouldEqual, 0)
			So(eng.volume, ShouldEqual, 0)
		})

		Convey("ToggleMute should flip and report the new state", func() {
			muted, err := c.ToggleMute()
			So(err, ShouldBeNil)
			So(muted, ShouldBeTrue)

			muted, _ = c.ToggleMute()
			So(muted, ShouldBeFalse)
		})
	})
}

func TestStatusNeverBlocks(t *testing.T) {
	Convey("Status under contention", t, func() {
		c, _ := setup("a.mp4", "b.mp4")
		c.PlayCurrent()

		Convey("Should answer while a mutating operation holds the lock", func() {
			c.mu.Lock()
			done := make(chan Status, 1)
			go func() { done <- c.Status() }()

			select {
			case status := <-done:
				So(status.Count, ShouldEqual, 2)
			case <-time.After(50 * time.Millisecond):
				c.mu.Unlock()
				t.Fatal("Status blocked on the controller lock")
			}
			c.mu.Unlock()
		})

		Convey("RefreshOpportunistic should skip on contention", func() {
			c.mu.Lock()
			finished := make(chan struct{})
			go func() {
				c.RefreshOpportunistic()
				close(finished)
			}()

			select {
			case <-finished:
			case <-time.After(50 * time.Millisecond):
				c.mu.Unlock()
				t.Fatal("RefreshOpportunistic blocked on the controller lock")
			}
			c.mu.Unlock()
		})
	})
}
