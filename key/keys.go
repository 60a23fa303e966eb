// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Library - these keys locate the mirrored video library.
const (
	LibraryDir          = "library.dir"
	LibraryRemoteFolder = "library.remote_folder"
)

// Playback - these keys govern the continuous playback loop.
const (
	PlaybackAutoplay   = "playback.autoplay"
	PlaybackLoopAll    = "playback.loop_all"
	PlaybackVolumeStep = "playback.volume_step"
	PlaybackStartAt    = "playback.start_at"
	PlaybackResumeLast = "playback.resume_last"
)

// Preview - these keys control the HLS side-channel of the active output.
const (
	PreviewEnabled = "preview.enabled"
)

// Cloud synchronization - these keys configure the rclone mirror.
const (
	SyncOnBoot = "sync.on_boot"
	SyncRemote = "sync.remote"
)

// Thumbnails - these keys bound the background thumbnail workers.
const (
	ThumbnailsWorkers = "thumbnails.workers"
)

// HTTP server - these keys configure the control surface listener.
const (
	ServerHost = "server.host"
	ServerPort = "server.port"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment.
const (
	CliColored = "cli.colored"
)
