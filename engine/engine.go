// Package engine defines the abstraction layer over the media playback
// backend. The primary implementation drives mpv through its JSON-IPC
// interface; a single long-lived process is reused across media loads so
// switching files never tears down the video output.
package engine

import "github.com/samber/mo"

// State describes the playback engine's current condition.
type State string

const (
	StateIdle      State = "idle"
	StateOpening   State = "opening"
	StateBuffering State = "buffering"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	StateEnded     State = "ended"
	StateError     State = "error"
)

// PreviewSink describes where the HLS preview stream should be written.
// The engine adapter is the only writer of the index and segment files.
type PreviewSink struct {
	// Dir is the directory holding the index and segment files.
	Dir string

	// IndexPath is the absolute path of the playlist file inside Dir.
	IndexPath string
}

// LoadOptions control how a media file is loaded into the engine.
type LoadOptions struct {
	// StartAt is the offset in seconds playback begins from.
	StartAt int

	// Preview, when present, makes the engine mirror the loaded media
	// into an HLS stream at the given sink.
	Preview mo.Option[PreviewSink]
}

// Engine encapsulates the required capabilities of a playback backend.
type Engine interface {
	// Start brings up the engine process. It is safe to call more than
	// once; subsequent calls are no-ops while the engine is ready.
	Start() error

	// Ready reports whether the engine accepts commands.
	Ready() bool

	// LastError returns the most recent startup or playback failure.
	LastError() mo.Option[string]

	// Load replaces the current media with the given file. The media is
	// loaded paused; call Play to begin playback.
	Load(path string, opts LoadOptions) error

	// Play resumes playback of the loaded media.
	Play() error

	// Pause suspends playback, keeping the media loaded.
	Pause() error

	// Stop unloads the current media and returns the engine to idle.
	Stop() error

	// HasMedia reports whether a media file is currently loaded.
	HasMedia() bool

	// SetVolume sets the output volume as a percentage.
	SetVolume(percent int) error

	// SetMute sets the audio mute state.
	SetMute(muted bool) error

	// Muted retrieves the current mute state.
	Muted() (bool, error)

	// Position retrieves the current playback position in seconds.
	Position() (float64, error)

	// Duration retrieves the length of the loaded media in seconds.
	Duration() (float64, error)

	// State returns the engine's current condition. It never blocks on
	// the backend process and may serve a cached value.
	State() State

	// OnEndReached registers a callback fired once per loaded media when
	// playback reaches the end of the file.
	OnEndReached(callback func())

	// Close terminates the engine process and releases all resources.
	Close() error
}
