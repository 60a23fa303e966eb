// Package playback implements the appliance's core state machine. The
// Controller composes the catalog, settings, preview manager and engine
// adapter into looped autoplay with safe concurrent status reporting.
// All mutating operations are serialized; the status path reads only
// separately-guarded snapshots and never waits on a media load.
package playback

import (
	"fmt"
	"sync"

	"github.com/avpd/avpd/catalog"
	"github.com/avpd/avpd/constant"
	"github.com/avpd/avpd/engine"
	"github.com/avpd/avpd/history"
	"github.com/avpd/avpd/key"
	"github.com/avpd/avpd/log"
	"github.com/avpd/avpd/preview"
	"github.com/avpd/avpd/util"
	"github.com/samber/mo"
	"github.com/spf13/viper"
)

// LoadResult is the structured outcome of a media selection.
type LoadResult struct {
	OK    bool   `json:"ok"`
	Index int    `json:"index,omitempty"`
	Name  string `json:"name,omitempty"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Status merges the engine state with the catalog snapshot.
type Status struct {
	EngineState engine.State `json:"engine_state"`
	EngineReady bool         `json:"engine_ready"`
	EngineError string       `json:"engine_error,omitempty"`
	Volume      int          `json:"volume"`
	Muted       bool         `json:"muted"`
	LoadedName  string       `json:"loaded_name,omitempty"`
	Count       int          `json:"count"`
	Index       int          `json:"index"`
	CurrentName string       `json:"current_name,omitempty"`
}

// StatusMin is the bounded-latency subset polled by the UI.
type StatusMin struct {
	Count       int    `json:"count"`
	Index       int    `json:"index"`
	CurrentName string `json:"current_name,omitempty"`
}

// Controller owns the playback engine and is the only component allowed
// to issue transport commands.
type Controller struct {
	mu  sync.Mutex // serializes every mutating operation
	eng engine.Engine
	cat *catalog.Catalog

	stateMu    sync.RWMutex // guards the fields below for the status path
	loadedName mo.Option[string]
	volume     int
	muted      bool
}

// New creates a Controller and wires the end-of-media callback back into
// its serialized entry point.
func New(eng engine.Engine, cat *catalog.Catalog) *Controller {
	c := &Controller{
		eng:    eng,
		cat:    cat,
		volume: constant.VolumeUserMax,
	}
	eng.OnEndReached(c.handleEndReached)
	return c
}

// Catalog exposes the underlying catalog for listing and refresh calls.
func (c *Controller) Catalog() *catalog.Catalog {
	return c.cat
}

// SetMediaByIndex loads the entry at the explicit index. An out-of-range
// index is a client error, never a silent clamp.
func (c *Controller) SetMediaByIndex(i int) LoadResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadIndexLocked(i)
}

// SetMediaByName resolves a catalog entry by exact name and loads it.
func (c *Controller) SetMediaByName(name string) LoadResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.cat.SetIndexByName(name)
	if idx < 0 {
		return LoadResult{OK: false, Error: fmt.Sprintf("video %q not found", name)}
	}
	return c.loadIndexLocked(idx)
}

// SetMediaCurrent loads whatever the catalog currently points at.
func (c *Controller) SetMediaCurrent() LoadResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadIndexLocked(c.cat.Index())
}

// PlayCurrent starts playback, loading the current entry first when
// nothing is loaded yet. Idempotent if already playing.
func (c *Controller) PlayCurrent() LoadResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded().IsAbsent() {
		if result := c.loadIndexLocked(c.cat.Index()); !result.OK {
			return result
		}
	}
	return c.playLocked()
}

// Pause suspends playback. A no-op when nothing is loaded.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded().IsAbsent() {
		return nil
	}
	return c.eng.Pause()
}

// Stop unloads the current media. A no-op when nothing is loaded.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded().IsAbsent() {
		return nil
	}
	if err := c.eng.Stop(); err != nil {
		return err
	}
	c.setLoaded(mo.None[string]())
	return nil
}

// Next steps to the following catalog entry, honoring the loop setting,
// and starts playback when autoplay is enabled.
func (c *Controller) Next() LoadResult {
	return c.step(func(loop bool) int { return c.cat.NextIndex(loop) })
}

// Prev steps to the preceding catalog entry with the same rules as Next.
func (c *Controller) Prev() LoadResult {
	return c.step(func(loop bool) int { return c.cat.PrevIndex(loop) })
}

func (c *Controller) step(advance func(loop bool) int) LoadResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := advance(viper.GetBool(key.PlaybackLoopAll))
	if idx < 0 {
		return LoadResult{OK: false, Error: "catalog is empty"}
	}

	result := c.loadIndexLocked(idx)
	if !result.OK {
		return result
	}
	if viper.GetBool(key.PlaybackAutoplay) {
		return c.playLocked()
	}
	return result
}

// ReloadCurrent re-loads the current entry with fresh options, resuming
// playback if it was running. Used when the preview flag flips so the
// output routing never goes stale.
func (c *Controller) ReloadCurrent() LoadResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded().IsAbsent() {
		return LoadResult{OK: true}
	}

	wasPlaying := c.eng.State() == engine.StatePlaying
	result := c.loadIndexLocked(c.cat.Index())
	if !result.OK {
		return result
	}
	if wasPlaying {
		return c.playLocked()
	}
	return result
}

// VolumeUp raises the volume by the configured step.
func (c *Controller) VolumeUp() (int, error) {
	return c.adjustVolume(volumeStep())
}

// VolumeDown lowers the volume by the configured step.
func (c *Controller) VolumeDown() (int, error) {
	return c.adjustVolume(-volumeStep())
}

func (c *Controller) adjustVolume(delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.RLock()
	current := c.volume
	c.stateMu.RUnlock()

	target := util.Clamp(current+delta, 0, constant.VolumeUserMax)
	if err := c.eng.SetVolume(target); err != nil {
		return current, err
	}

	c.stateMu.Lock()
	c.volume = target
	c.stateMu.Unlock()
	return target, nil
}

// ToggleMute flips the mute state and returns the new value.
func (c *Controller) ToggleMute() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.RLock()
	target := !c.muted
	c.stateMu.RUnlock()

	if err := c.eng.SetMute(target); err != nil {
		return !target, err
	}

	c.stateMu.Lock()
	c.muted = target
	c.stateMu.Unlock()
	return target, nil
}

// Status returns the merged playback and catalog state. It reads only
// snapshot structures and cached engine state, so it completes in
// bounded time regardless of in-flight loads or refreshes.
func (c *Controller) Status() Status {
	snap := c.cat.Snapshot()

	c.stateMu.RLock()
	loadedName := c.loadedName.OrEmpty()
	volume := c.volume
	muted := c.muted
	c.stateMu.RUnlock()

	return Status{
		EngineState: c.eng.State(),
		EngineReady: c.eng.Ready(),
		EngineError: c.eng.LastError().OrEmpty(),
		Volume:      volume,
		Muted:       muted,
		LoadedName:  loadedName,
		Count:       snap.Count,
		Index:       snap.Index,
		CurrentName: snap.CurrentName.OrEmpty(),
	}
}

// StatusMin returns the minimal status subset from the catalog snapshot.
func (c *Controller) StatusMin() StatusMin {
	snap := c.cat.Snapshot()
	return StatusMin{
		Count:       snap.Count,
		Index:       snap.Index,
		CurrentName: snap.CurrentName.OrEmpty(),
	}
}

// RefreshOpportunistic refreshes the catalog only when the controller is
// otherwise idle. Contention means a mutating operation is in flight, so
// the stale catalog is served instead of stalling the caller.
func (c *Controller) RefreshOpportunistic() {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()
	c.cat.Refresh(false)
}

// loadIndexLocked resolves and loads the entry at idx. Callers hold mu.
func (c *Controller) loadIndexLocked(idx int) LoadResult {
	entry, ok := c.cat.EntryAt(idx).Get()
	if !ok {
		if c.cat.Count() == 0 {
			return LoadResult{OK: false, Error: "catalog is empty"}
		}
		return LoadResult{OK: false, Error: fmt.Sprintf("index %d out of range", idx)}
	}

	opts := engine.LoadOptions{
		StartAt: viper.GetInt(key.PlaybackStartAt),
		Preview: preview.Sink(),
	}
	if err := c.eng.Load(entry.Path, opts); err != nil {
		log.Errorf("playback: load %s: %v", entry.Name, err)
		return LoadResult{OK: false, Error: err.Error()}
	}

	c.cat.SetIndex(idx)
	c.setLoaded(mo.Some(entry.Name))
	return LoadResult{OK: true, Index: idx, Name: entry.Name, Path: entry.Path}
}

// playLocked issues play and records the playback in history.
func (c *Controller) playLocked() LoadResult {
	name := c.loaded().OrEmpty()
	if err := c.eng.Play(); err != nil {
		log.Errorf("playback: play %s: %v", name, err)
		return LoadResult{OK: false, Error: err.Error()}
	}

	if err := history.Save(name); err != nil {
		log.Warnf("playback: record history for %s: %v", name, err)
	}
	return LoadResult{OK: true, Index: c.cat.Index(), Name: name}
}

// handleEndReached runs on the engine's event goroutine. It re-enters
// the controller through the same serialized path as HTTP calls and
// swallows anything that goes wrong there.
func (c *Controller) handleEndReached() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("playback: end-of-media handler panicked: %v", r)
		}
	}()

	if !viper.GetBool(key.PlaybackLoopAll) {
		log.Infof("playback: reached end of %s, loop disabled", c.loaded().OrEmpty())
		return
	}
	if result := c.Next(); !result.OK {
		log.Warnf("playback: advance after end-of-media: %s", result.Error)
	}
}

func (c *Controller) loaded() mo.Option[string] {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.loadedName
}

func (c *Controller) setLoaded(name mo.Option[string]) {
	c.stateMu.Lock()
	c.loadedName = name
	c.stateMu.Unlock()
}

func volumeStep() int {
	step := viper.GetInt(key.PlaybackVolumeStep)
	if step < 1 {
		step = 10
	}
	return step
}
