package engine

import (
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avpd/avpd/log"
	"github.com/samber/mo"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
)

// Config is a named candidate set of video output arguments. Configs are
// tried in order until one produces a responsive mpv process, so the same
// binary works across GPU, bare-DRM and software rendering hosts.
type Config struct {
	Name string
	Args []string
}

// CandidateConfigs returns the video output configurations in trial order.
func CandidateConfigs() []Config {
	return []Config{
		{Name: "gpu", Args: []string{"--vo=gpu"}},
		{Name: "drm", Args: []string{"--vo=drm"}},
		{Name: "sdl", Args: []string{"--vo=sdl"}},
		{Name: "default", Args: nil},
	}
}

// MPV implements the Engine interface using mpv's JSON-IPC protocol.
// One idle mpv process is started up front and media files are swapped
// into it with loadfile, so the video output is never re-initialized.
type MPV struct {
	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{} // closed when the mpv process exits
	listener   *eventListener
	seg        *segmenter

	mu sync.Mutex // protects socket writes

	stateMu  sync.RWMutex
	state    State
	ready    bool
	hasMedia bool
	lastErr  mo.Option[string]
	config   mo.Option[string]

	endMu       sync.Mutex
	endCallback func()
	endFired    bool
}

// NewMPV creates a new mpv engine (does not start the process).
func NewMPV() *MPV {
	return &MPV{
		state:  StateIdle,
		exited: make(chan struct{}),
	}
}

// Start launches mpv, trying each candidate config until one comes up.
func (m *MPV) Start() error {
	m.stateMu.Lock()
	if m.ready {
		m.stateMu.Unlock()
		return nil
	}
	m.stateMu.Unlock()

	var lastErr error
	for _, cfg := range CandidateConfigs() {
		err := m.spawn(cfg)
		if err == nil {
			m.stateMu.Lock()
			m.ready = true
			m.state = StateIdle
			m.config = mo.Some(cfg.Name)
			m.lastErr = mo.None[string]()
			m.stateMu.Unlock()

			m.listener = newEventListener(m.socketPath, m.handleEvent)
			if err := m.listener.Start(); err != nil {
				log.Warnf("engine: event listener failed to start: %v", err)
			}
			log.Infof("engine: mpv ready with config %q on %s", cfg.Name, m.socketPath)
			return nil
		}

		lastErr = err
		log.Warnf("engine: config %q failed: %v", cfg.Name, err)
	}

	m.stateMu.Lock()
	m.state = StateError
	m.lastErr = mo.Some(lastErr.Error())
	m.stateMu.Unlock()
	return fmt.Errorf("no usable video output config: %w", lastErr)
}

// spawn starts one mpv process with the given config and waits for its
// IPC socket to accept connections.
func (m *MPV) spawn(cfg Config) error {
	if m.socketPath == "" {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return fmt.Errorf("generate socket name: %w", err)
		}
		m.socketPath = filepath.Join(os.TempDir(), fmt.Sprintf("avpd-%x.sock", randomBytes))
	}
	_ = os.Remove(m.socketPath)

	args := []string{
		"--no-terminal",
		"--really-quiet",
		fmt.Sprintf("--input-ipc-server=%s", m.socketPath),
		"--idle=yes",
		"--force-window=yes",
		"--fullscreen=yes",
		"--no-osc",
		"--keep-open=yes",
		"--volume-max=200",
	}
	args = append(args, cfg.Args...)

	m.cmd = exec.Command("mpv", args...)
	m.cmd.SysProcAttr = sysProcAttr()
	m.cmd.Stdout = nil
	m.cmd.Stderr = nil
	m.cmd.Stdin = nil

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}

	m.exited = make(chan struct{})
	cmd, exited := m.cmd, m.exited
	go func() {
		_ = cmd.Wait()
		close(exited)
		m.stateMu.Lock()
		if m.ready {
			m.ready = false
			m.state = StateError
			m.lastErr = mo.Some("engine process exited")
		}
		m.stateMu.Unlock()
	}()

	if err := m.waitForSocket(); err != nil {
		if m.cmd.Process != nil {
			select {
			case <-m.exited:
			default:
				_ = killProcess(m.cmd)
			}
		}
		return fmt.Errorf("mpv socket not ready: %w", err)
	}
	return nil
}

// waitForSocket polls until the mpv IPC socket is accepting connections.
func (m *MPV) waitForSocket() error {
	for i := 0; i < socketWaitRetries; i++ {
		time.Sleep(socketWaitDelay)

		select {
		case <-m.exited:
			return fmt.Errorf("mpv exited before socket was ready")
		default:
		}

		conn, err := net.Dial("unix", m.socketPath)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", m.socketPath, socketWaitRetries)
}

// Ready reports whether the engine accepts commands.
func (m *MPV) Ready() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.ready
}

// LastError returns the most recent startup or playback failure.
func (m *MPV) LastError() mo.Option[string] {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.lastErr
}

// ActiveConfig returns the name of the video output config in use.
func (m *MPV) ActiveConfig() mo.Option[string] {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.config
}

// Load replaces the current media with the given file. The engine is
// started lazily on first use. Media is loaded paused, optionally with a
// start offset, and the previous preview segmenter is always torn down.
func (m *MPV) Load(path string, opts LoadOptions) error {
	if !m.Ready() {
		if err := m.Start(); err != nil {
			return err
		}
	}

	target, err := sanitizeMediaTarget(path)
	if err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	m.stopSegmenter()

	m.endMu.Lock()
	m.endFired = false
	m.endMu.Unlock()

	m.setState(StateOpening)

	fileOpts := "pause=yes"
	if opts.StartAt > 0 {
		fileOpts += fmt.Sprintf(",start=+%d", opts.StartAt)
	}
	if _, err := m.sendCommand([]interface{}{"loadfile", target, "replace", fileOpts}); err != nil {
		m.setError(err)
		return fmt.Errorf("load %s: %w", filepath.Base(target), err)
	}

	m.stateMu.Lock()
	m.hasMedia = true
	m.state = StatePaused
	m.stateMu.Unlock()

	if sink, ok := opts.Preview.Get(); ok {
		seg, err := startSegmenter(target, opts.StartAt, sink)
		if err != nil {
			log.Warnf("engine: preview segmenter failed for %s: %v", filepath.Base(target), err)
		} else {
			m.seg = seg
		}
	}
	return nil
}

// Play resumes playback of the loaded media.
func (m *MPV) Play() error {
	if err := m.setProperty("pause", false); err != nil {
		return err
	}
	m.setState(StatePlaying)
	return nil
}

// Pause suspends playback, keeping the media loaded.
func (m *MPV) Pause() error {
	if err := m.setProperty("pause", true); err != nil {
		return err
	}
	m.setState(StatePaused)
	return nil
}

// Stop unloads the current media and returns the engine to idle.
func (m *MPV) Stop() error {
	m.stopSegmenter()

	_, err := m.sendCommand([]interface{}{"stop"})
	if err != nil {
		return err
	}

	m.stateMu.Lock()
	m.hasMedia = false
	m.state = StateStopped
	m.stateMu.Unlock()
	return nil
}

// HasMedia reports whether a media file is currently loaded.
func (m *MPV) HasMedia() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.hasMedia
}

// SetVolume sets the output volume as a percentage.
func (m *MPV) SetVolume(percent int) error {
	return m.setProperty("volume", float64(percent))
}

// SetMute sets the audio mute state.
func (m *MPV) SetMute(muted bool) error {
	return m.setProperty("mute", muted)
}

// Muted retrieves the current mute state.
func (m *MPV) Muted() (bool, error) {
	data, err := m.quickCommand([]interface{}{"get_property", "mute"})
	if err != nil {
		return false, err
	}
	muted, _ := data.(bool)
	return muted, nil
}

// Position retrieves the current playback position in seconds. A media
// file with no position yet (still opening) reports zero.
func (m *MPV) Position() (float64, error) {
	return m.getQuickFloat("time-pos")
}

// Duration retrieves the length of the loaded media in seconds.
func (m *MPV) Duration() (float64, error) {
	return m.getQuickFloat("duration")
}

// State returns the cached engine condition without touching the socket.
func (m *MPV) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// OnEndReached registers a callback fired once per loaded media when
// playback reaches the end of the file.
func (m *MPV) OnEndReached(callback func()) {
	m.endMu.Lock()
	defer m.endMu.Unlock()
	m.endCallback = callback
}

// Close shuts down the mpv process and cleans up resources.
func (m *MPV) Close() error {
	m.stopSegmenter()

	if m.listener != nil {
		m.listener.Stop()
	}

	if m.socketPath == "" {
		return nil
	}

	// Try graceful quit via IPC, then force kill.
	_, _ = m.sendCommand([]interface{}{"quit"})

	select {
	case <-m.exited:
	case <-time.After(3 * time.Second):
		_ = killProcess(m.cmd)
	}

	_ = os.Remove(m.socketPath)

	m.stateMu.Lock()
	m.ready = false
	m.hasMedia = false
	m.state = StateIdle
	m.stateMu.Unlock()
	return nil
}

// handleEvent dispatches mpv property change notifications.
func (m *MPV) handleEvent(property string, data interface{}) {
	switch property {
	case "eof-reached":
		if reached, ok := data.(bool); ok && reached {
			m.handleEndReached()
		}
	case "end-file":
		// Broadcast event, delivered even without observers. Covers runs
		// where keep-open is off and the file unloads straight at EOF.
		event, ok := data.(map[string]interface{})
		if !ok {
			return
		}
		if reason, _ := event["reason"].(string); reason == "eof" {
			m.handleEndReached()
		}
	case "pause":
		paused, ok := data.(bool)
		if !ok || !m.HasMedia() {
			return
		}
		m.stateMu.Lock()
		if m.state == StatePlaying || m.state == StatePaused || m.state == StateBuffering {
			if paused {
				m.state = StatePaused
			} else {
				m.state = StatePlaying
			}
		}
		m.stateMu.Unlock()
	case "paused-for-cache":
		if buffering, ok := data.(bool); ok && buffering && m.HasMedia() {
			m.setState(StateBuffering)
		}
	}
}

// handleEndReached fires the end callback at most once per loaded media.
func (m *MPV) handleEndReached() {
	m.setState(StateEnded)

	m.endMu.Lock()
	callback := m.endCallback
	fired := m.endFired
	m.endFired = true
	m.endMu.Unlock()

	if fired || callback == nil {
		return
	}
	go callback()
}

func (m *MPV) setProperty(property string, value interface{}) error {
	_, err := m.sendCommand([]interface{}{"set_property", property, value})
	return err
}

func (m *MPV) getQuickFloat(name string) (float64, error) {
	data, err := m.quickCommand([]interface{}{"get_property", name})
	if err != nil {
		if strings.Contains(err.Error(), "property unavailable") {
			return 0, nil
		}
		return 0, err
	}
	val, ok := data.(float64)
	if !ok {
		return 0, fmt.Errorf("property %s: expected float64, got %T", name, data)
	}
	return val, nil
}

func (m *MPV) setState(s State) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

func (m *MPV) setError(err error) {
	m.stateMu.Lock()
	m.state = StateError
	m.lastErr = mo.Some(err.Error())
	m.stateMu.Unlock()
}

func (m *MPV) stopSegmenter() {
	if m.seg != nil {
		m.seg.stop()
		m.seg = nil
	}
}

// sanitizeMediaTarget validates a path before it is handed to mpv.
// Paths must not look like flags or carry control characters.
func sanitizeMediaTarget(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.ContainsAny(p, "\x00\n\r") {
		return "", fmt.Errorf("invalid control characters in path")
	}
	if strings.HasPrefix(p, "-") {
		return "", fmt.Errorf("path must not start with '-'")
	}
	return filepath.Clean(p), nil
}
