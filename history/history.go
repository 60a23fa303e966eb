// Package history tracks which videos have been played so playback can
// resume on the last video after a reboot.
package history

import (
	"time"

	"github.com/avpd/avpd/filesystem"
	"github.com/avpd/avpd/where"
	"github.com/metafates/gache"
	"github.com/samber/mo"
)

// Record is one remembered playback event.
type Record struct {
	Name     string    `json:"name"`
	PlayedAt time.Time `json:"played_at"`
}

// cacher is the disk-backed registry of playback records, keyed by video name.
var cacher = gache.New[map[string]*Record](
	&gache.Options{
		Path:       where.History(),
		FileSystem: &filesystem.GacheFs{},
	},
)

// Get returns all remembered playback records.
func Get() (map[string]*Record, error) {
	cached, expired, err := cacher.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return make(map[string]*Record), nil
	}
	return cached, nil
}

// Save records that the named video was played just now.
func Save(name string) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	saved[name] = &Record{Name: name, PlayedAt: time.Now()}
	return cacher.Set(saved)
}

// Remove deletes the record for the named video.
func Remove(name string) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	delete(saved, name)
	return cacher.Set(saved)
}

// LastPlayed returns the most recently played video name, if any.
func LastPlayed() mo.Option[string] {
	saved, err := Get()
	if err != nil || len(saved) == 0 {
		return mo.None[string]()
	}

	var latest *Record
	for _, record := range saved {
		if latest == nil || record.PlayedAt.After(latest.PlayedAt) {
			latest = record
		}
	}
	return mo.Some(latest.Name)
}
