// Package constant defines immutable application-level identifiers and playback defaults.
package constant

const (
	// Avpd is the canonical application identifier used for filesystem paths and CLI branding.
	Avpd = "avpd"

	// Version is the current application semantic version string.
	Version = "0.1.0"
)

// Volume ceilings shared by the playback controller and the engine adapter.
const (
	// VolumeUserMax is the user-facing ceiling enforced by the transport endpoints.
	VolumeUserMax = 100

	// VolumeEngineMax is the hard engine ceiling. Headroom above VolumeUserMax
	// is reachable only through direct adapter calls, never through vol_up.
	VolumeEngineMax = 200
)

// HLS preview sink parameters (fixed operational values).
const (
	HLSIndexFile      = "index.m3u8"
	HLSSegmentPattern = "segment-%08d.ts"
	HLSSegmentLength  = 2
	HLSSegmentCount   = 6
	HLSIndexURL       = "/hls/" + HLSIndexFile
)
