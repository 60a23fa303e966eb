// Package where implements a cross-platform resolver for application-specific filesystem paths.
package where

import (
	"os"
	"path/filepath"

	"github.com/avpd/avpd/constant"
	"github.com/avpd/avpd/filesystem"
	"github.com/avpd/avpd/key"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// EnvConfigPath is the environment variable identifier used to override the default configuration directory.
const EnvConfigPath = "AVPD_CONFIG_PATH"

// ensureDir guarantees the existence of a directory at the specified path, creating it if necessary.
func ensureDir(path string) string {
	lo.Must0(filesystem.API().MkdirAll(path, os.ModePerm))
	return path
}

// Config resolves the absolute path to the primary application configuration directory.
// Direct override: the path can be explicitly specified via the AVPD_CONFIG_PATH environment variable.
func Config() string {
	if custom, ok := os.LookupEnv(EnvConfigPath); ok {
		return ensureDir(custom)
	}

	base := lo.Must(os.UserConfigDir())
	return ensureDir(filepath.Join(base, constant.Avpd))
}

// Cache resolves the absolute path to the application's persistent cache directory.
func Cache() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = filepath.Join(".", "cache")
	}
	return ensureDir(filepath.Join(base, constant.Avpd))
}

// Videos resolves the absolute path to the locally mirrored video library.
// The library.dir setting overrides the default location under the user's home.
func Videos() string {
	if custom := viper.GetString(key.LibraryDir); custom != "" {
		return ensureDir(custom)
	}

	home := lo.Must(os.UserHomeDir())
	return ensureDir(filepath.Join(home, "Videos", constant.Avpd))
}

// Thumbnails resolves the directory holding one preview image per video.
// Kept outside the video library so cloud sync never treats them as extraneous files.
func Thumbnails() string {
	return ensureDir(filepath.Join(Cache(), "thumbnails"))
}

// HLS resolves the directory holding the transient live-stream index and segments.
func HLS() string {
	return ensureDir(filepath.Join(Cache(), "hls"))
}

// Logs resolves the absolute path to the directory used for application diagnostic and audit logs.
func Logs() string {
	return ensureDir(filepath.Join(Config(), "logs"))
}

// SyncLog resolves the absolute path to the append-only cloud synchronization log file.
func SyncLog() string {
	return filepath.Join(Logs(), "rclone_sync.log")
}

// History resolves the absolute path to the localized playback history persistence file.
func History() string {
	return filepath.Join(Config(), "history.json")
}

// Temp resolves a unique, volatile filesystem path for transient application artifacts.
func Temp() string {
	return ensureDir(filepath.Join(os.TempDir(), constant.Avpd))
}
