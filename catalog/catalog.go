// Package catalog maintains the ordered, deduplicated list of playable videos and the current selection.
package catalog

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avpd/avpd/filesystem"
	"github.com/samber/mo"
	"golang.org/x/exp/slices"
)

// extensions is the allow-list of playable file suffixes (lowercase).
var extensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
	".m4v":  {},
	".webm": {},
}

// Entry is a single playable file. Identity is the display name, unique within a catalog.
type Entry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	ModifiedAt time.Time `json:"-"`
}

// Snapshot is a cheap, separately-guarded view of the catalog used by the
// non-blocking status path. Index is -1 while the catalog is empty.
type Snapshot struct {
	Count       int               `json:"count"`
	Index       int               `json:"index"`
	CurrentName mo.Option[string] `json:"current_name"`
	Dir         string            `json:"dir"`
}

// RefreshResult reports the outcome of a directory scan.
type RefreshResult struct {
	Count int `json:"count"`
	Index int `json:"index"`
}

// signature is a cheap content fingerprint of the video directory,
// used to skip full rescans when nothing changed.
type signature struct {
	count    int
	mtimeSum int64
}

// Catalog scans a directory and tracks the ordered video list plus the current index.
// All mutating operations are serialized by a single mutex; the snapshot lives
// under its own lock and is refreshed as the final step of every mutation, so
// readers of Snapshot never contend with a rescan.
type Catalog struct {
	dir string

	mu      sync.Mutex
	entries []Entry
	current int
	lastSig mo.Option[signature]

	snapMu sync.RWMutex
	snap   Snapshot
}

// New creates an empty catalog rooted at dir. The directory may not exist yet.
func New(dir string) *Catalog {
	c := &Catalog{dir: dir, current: -1}
	c.snap = Snapshot{Count: 0, Index: -1, CurrentName: mo.None[string](), Dir: dir}
	return c
}

// Dir returns the directory the catalog scans.
func (c *Catalog) Dir() string {
	return c.dir
}

// scanSignature fingerprints the directory without building entries.
// A missing directory yields the empty signature.
func (c *Catalog) scanSignature() signature {
	var sig signature

	infos, err := filesystem.API().ReadDir(c.dir)
	if err != nil {
		return sig
	}

	for _, info := range infos {
		if !playable(info.Name(), info.IsDir()) {
			continue
		}
		sig.count++
		sig.mtimeSum += info.ModTime().Unix()
	}
	return sig
}

// collect builds the sorted entry list. A missing directory yields an empty list.
func (c *Catalog) collect() []Entry {
	infos, err := filesystem.API().ReadDir(c.dir)
	if err != nil {
		return nil
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if !playable(info.Name(), info.IsDir()) {
			continue
		}
		entries = append(entries, Entry{
			Name:       info.Name(),
			Path:       filepath.Join(c.dir, info.Name()),
			ModifiedAt: info.ModTime(),
		})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return entries
}

func playable(name string, isDir bool) bool {
	if isDir || strings.HasPrefix(name, ".") {
		return false
	}
	_, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Refresh rescans the video directory. Unless force is set, a matching
// content signature skips the rescan entirely. The current selection is
// preserved by name when still present; otherwise it resets to the first
// entry, or -1 for an empty catalog.
func (c *Catalog) Refresh(force bool) RefreshResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	sig := c.scanSignature()
	if !force && len(c.entries) > 0 {
		if prev, ok := c.lastSig.Get(); ok && prev == sig {
			return RefreshResult{Count: len(c.entries), Index: c.current}
		}
	}

	var oldName string
	if c.current >= 0 && c.current < len(c.entries) {
		oldName = c.entries[c.current].Name
	}

	c.entries = c.collect()
	c.lastSig = mo.Some(sig)

	switch {
	case len(c.entries) == 0:
		c.current = -1
	case oldName != "":
		if idx := c.indexOfLocked(oldName); idx >= 0 {
			c.current = idx
		} else {
			c.current = 0
		}
	default:
		c.current = 0
	}

	c.updateSnapshotLocked()
	return RefreshResult{Count: len(c.entries), Index: c.current}
}

// List returns a copy of the ordered entries.
func (c *Catalog) List() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Count returns the number of entries.
func (c *Catalog) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Index returns the current index, -1 for an empty catalog.
func (c *Catalog) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SetIndex clamps i into the valid range, applies it and returns the
// effective index. An empty catalog yields -1.
func (c *Catalog) SetIndex(i int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setIndexLocked(i)
}

func (c *Catalog) setIndexLocked(i int) int {
	if len(c.entries) == 0 {
		c.current = -1
		c.updateSnapshotLocked()
		return -1
	}

	if i < 0 {
		i = 0
	}
	if i > len(c.entries)-1 {
		i = len(c.entries) - 1
	}
	c.current = i
	c.updateSnapshotLocked()
	return c.current
}

// SetIndexByName selects the entry with the given display name.
// Returns the new index, or -1 when the name is absent.
func (c *Catalog) SetIndexByName(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOfLocked(name)
	if idx < 0 {
		return -1
	}
	return c.setIndexLocked(idx)
}

func (c *Catalog) indexOfLocked(name string) int {
	return slices.IndexFunc(c.entries, func(e Entry) bool {
		return e.Name == name
	})
}

// NextIndex computes the index following the current one. With loop it wraps
// to 0 after the last entry; without it the last index is returned unchanged.
func (c *Catalog) NextIndex(loop bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextLocked(loop)
}

func (c *Catalog) nextLocked(loop bool) int {
	if len(c.entries) == 0 {
		return -1
	}
	if c.current < len(c.entries)-1 {
		return c.current + 1
	}
	if loop {
		return 0
	}
	return c.current
}

// PrevIndex computes the index preceding the current one, with the same
// wrapping rule as NextIndex.
func (c *Catalog) PrevIndex(loop bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prevLocked(loop)
}

func (c *Catalog) prevLocked(loop bool) int {
	if len(c.entries) == 0 {
		return -1
	}
	if c.current > 0 {
		return c.current - 1
	}
	if loop {
		return len(c.entries) - 1
	}
	return c.current
}

// SelectNext advances the current index and returns it.
func (c *Catalog) SelectNext(loop bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.nextLocked(loop)
	if next < 0 {
		return -1
	}
	return c.setIndexLocked(next)
}

// SelectPrev steps the current index back and returns it.
func (c *Catalog) SelectPrev(loop bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.prevLocked(loop)
	if prev < 0 {
		return -1
	}
	return c.setIndexLocked(prev)
}

// EntryAt returns the entry at index i without changing the selection.
func (c *Catalog) EntryAt(i int) mo.Option[Entry] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.entries) {
		return mo.None[Entry]()
	}
	return mo.Some(c.entries[i])
}

// Current returns the currently selected entry.
func (c *Catalog) Current() mo.Option[Entry] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current < 0 || c.current >= len(c.entries) {
		return mo.None[Entry]()
	}
	return mo.Some(c.entries[c.current])
}

// Snapshot returns the latest published view. It only touches the snapshot
// lock and therefore stays fast even while a rescan holds the primary mutex.
func (c *Catalog) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// updateSnapshotLocked publishes the current state. Must be called with the
// primary mutex held, as the last step of every mutating operation.
func (c *Catalog) updateSnapshotLocked() {
	snap := Snapshot{
		Count:       len(c.entries),
		Index:       c.current,
		CurrentName: mo.None[string](),
		Dir:         c.dir,
	}
	if c.current >= 0 && c.current < len(c.entries) {
		snap.CurrentName = mo.Some(c.entries[c.current].Name)
	}

	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()
}
