// Package preview manages the browser-facing HLS preview of whatever the
// appliance is currently playing. It owns the enabled flag and the sink
// directory; segment files themselves are written by the engine.
package preview

import (
	"path/filepath"

	"github.com/avpd/avpd/config"
	"github.com/avpd/avpd/constant"
	"github.com/avpd/avpd/engine"
	"github.com/avpd/avpd/filesystem"
	"github.com/avpd/avpd/key"
	"github.com/avpd/avpd/log"
	"github.com/avpd/avpd/where"
	"github.com/samber/mo"
	"github.com/spf13/viper"
)

// Status is the preview state reported to API clients.
type Status struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// Enabled reports whether the preview stream is turned on.
func Enabled() bool {
	return viper.GetBool(key.PreviewEnabled)
}

// Enable turns the preview on, persists the flag and starts from an
// empty sink so stale segments from an earlier run are never served.
// Already-enabled is a no-op so repeated requests do not rewrite the
// config file.
func Enable() error {
	if Enabled() {
		return nil
	}
	if err := put(true); err != nil {
		return err
	}
	return ClearDir()
}

// Disable turns the preview off, persists the flag and clears any
// leftover playlist and segment files.
func Disable() error {
	if !Enabled() {
		return nil
	}
	if err := put(false); err != nil {
		return err
	}
	return ClearDir()
}

// ClearDir removes all files from the HLS sink directory.
func ClearDir() error {
	dir := where.HLS()
	if err := filesystem.API().RemoveAll(dir); err != nil {
		return err
	}
	if err := filesystem.API().MkdirAll(dir, 0o755); err != nil {
		return err
	}
	log.Debugf("preview: cleared %s", dir)
	return nil
}

// Sink returns the engine sink when the preview is enabled.
func Sink() mo.Option[engine.PreviewSink] {
	if !Enabled() {
		return mo.None[engine.PreviewSink]()
	}
	dir := where.HLS()
	return mo.Some(engine.PreviewSink{
		Dir:       dir,
		IndexPath: filepath.Join(dir, constant.HLSIndexFile),
	})
}

// Current returns the preview status for API clients.
func Current() Status {
	return Status{
		Enabled: Enabled(),
		URL:     constant.HLSIndexURL,
	}
}

func put(enabled bool) error {
	return config.Put(key.PreviewEnabled, enabled)
}
