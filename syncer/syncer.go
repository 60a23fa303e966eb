// Package syncer mirrors the cloud video folder onto local disk with
// rclone. Exactly one sync runs at a time; every run appends a
// timestamped transcript to a dedicated log file so failed syncs can be
// diagnosed from the control API.
package syncer

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/avpd/avpd/filesystem"
	"github.com/avpd/avpd/key"
	"github.com/avpd/avpd/log"
	"github.com/avpd/avpd/util"
	"github.com/avpd/avpd/where"
	"github.com/samber/mo"
	"github.com/spf13/viper"
)

const tool = "rclone"

// runner executes an external command and returns its combined output.
// Swapped out in tests.
type runner func(name string, args ...string) ([]byte, error)

// lookPath resolves a binary on PATH. Swapped out in tests.
type lookPath func(name string) (string, error)

func defaultRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Result is the outcome of one sync run.
type Result struct {
	OK         bool      `json:"ok"`
	Message    string    `json:"message"`
	FinishedAt time.Time `json:"finished_at"`
}

// Status is the syncer state reported to API clients.
type Status struct {
	Running bool              `json:"running"`
	Last    mo.Option[Result] `json:"-"`
}

// Syncer orchestrates rclone runs against the configured remote.
type Syncer struct {
	run  runner
	look lookPath

	mu       sync.Mutex
	running  bool
	last     mo.Option[Result]
	postSync func()
}

// New creates a Syncer backed by the rclone binary on PATH.
func New() *Syncer {
	return NewWithRunner(defaultRunner, exec.LookPath)
}

// NewWithRunner creates a Syncer with custom command execution, used by
// tests to avoid spawning the real tool.
func NewWithRunner(run runner, look lookPath) *Syncer {
	return &Syncer{run: run, look: look}
}

// SetPostSync registers a callback invoked after every successful sync.
// Used to refresh the catalog and thumbnails once new files landed.
func (s *Syncer) SetPostSync(callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postSync = callback
}

// Available reports whether the rclone binary is installed.
func (s *Syncer) Available() bool {
	_, err := s.look(tool)
	return err == nil
}

// Version returns the first line of `rclone version`.
func (s *Syncer) Version() (string, error) {
	output, err := s.run(tool, "version")
	if err != nil {
		return "", fmt.Errorf("rclone version: %w", err)
	}
	lines := strings.SplitN(strings.TrimSpace(string(output)), "\n", 2)
	return strings.TrimSpace(lines[0]), nil
}

// Remotes lists the names of all configured rclone remotes.
func (s *Syncer) Remotes() ([]string, error) {
	output, err := s.run(tool, "listremotes")
	if err != nil {
		return nil, fmt.Errorf("rclone listremotes: %w", err)
	}

	var remotes []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ":"))
		if line != "" {
			remotes = append(remotes, line)
		}
	}
	return remotes, nil
}

// CreateRemote adds a new rclone remote of the given type.
func (s *Syncer) CreateRemote(name, typ string, params map[string]string) error {
	args := append([]string{"config", "create", name, typ}, flatten(params)...)
	if output, err := s.run(tool, args...); err != nil {
		return fmt.Errorf("rclone config create: %w: %s", err, output)
	}
	return nil
}

// UpdateRemote changes parameters of an existing rclone remote.
func (s *Syncer) UpdateRemote(name string, params map[string]string) error {
	args := append([]string{"config", "update", name}, flatten(params)...)
	if output, err := s.run(tool, args...); err != nil {
		return fmt.Errorf("rclone config update: %w: %s", err, output)
	}
	return nil
}

// DeleteRemote removes an rclone remote.
func (s *Syncer) DeleteRemote(name string) error {
	if output, err := s.run(tool, "config", "delete", name); err != nil {
		return fmt.Errorf("rclone config delete: %w: %s", err, output)
	}
	return nil
}

// RemoteSpec returns the rclone source in remote:folder form.
func (s *Syncer) RemoteSpec() string {
	return fmt.Sprintf("%s:%s",
		viper.GetString(key.SyncRemote),
		viper.GetString(key.LibraryRemoteFolder))
}

// Target overrides the sync source and destination for a single run.
// Empty fields fall back to the configured values, so the zero Target
// syncs RemoteSpec into the local video library.
type Target struct {
	Remote string `json:"remote"`
	Folder string `json:"folder"`
	Dest   string `json:"dest_dir"`
}

func (t Target) source() string {
	remote := t.Remote
	if remote == "" {
		remote = viper.GetString(key.SyncRemote)
	}
	folder := t.Folder
	if folder == "" {
		folder = viper.GetString(key.LibraryRemoteFolder)
	}
	return remote + ":" + folder
}

func (t Target) dest() string {
	if t.Dest != "" {
		return t.Dest
	}
	return where.Videos()
}

// SyncBlocking runs one sync to completion. A missing rclone binary
// fails fast without touching the log; an already-running sync is
// reported as such without starting another.
func (s *Syncer) SyncBlocking(target Target) Result {
	if !s.Available() {
		return s.finish(Result{OK: false, Message: "rclone not installed"})
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Result{OK: false, Message: "sync already running"}
	}
	s.running = true
	s.mu.Unlock()

	return s.doSync(target)
}

// SyncAsync starts a sync in the background. It returns false when a
// sync is already running; concurrent requests coalesce into that run.
func (s *Syncer) SyncAsync(target Target) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		if !s.Available() {
			s.finish(Result{OK: false, Message: "rclone not installed"})
			return
		}
		s.doSync(target)
	}()
	return true
}

// doSync performs the rclone run. The running flag must already be held.
func (s *Syncer) doSync(target Target) Result {
	source := target.source()
	dest := target.dest()

	started := time.Now()
	s.appendLog(fmt.Sprintf("==== sync started %s ====\n%s -> %s\n",
		started.Format(time.RFC3339), source, dest))
	log.Infof("syncer: syncing %s -> %s", source, dest)

	output, err := s.run(tool, "sync", source, dest, "--delete-during")
	s.appendLog(string(output))

	result := Result{OK: err == nil, FinishedAt: time.Now()}
	if err != nil {
		result.Message = fmt.Sprintf("sync failed: %v", err)
		log.Errorf("syncer: %s", result.Message)
	} else {
		result.Message = "sync completed"
		log.Infof("syncer: completed in %s", time.Since(started).Round(time.Second))
	}
	s.appendLog(fmt.Sprintf("==== sync finished %s (ok=%t) ====\n",
		result.FinishedAt.Format(time.RFC3339), result.OK))

	return s.finish(result)
}

// finish records the result, releases the slot and, when the run
// succeeded, fires the post-sync callback.
func (s *Syncer) finish(result Result) Result {
	s.mu.Lock()
	s.running = false
	s.last = mo.Some(result)
	callback := s.postSync
	s.mu.Unlock()

	if result.OK && callback != nil {
		callback()
	}
	return result
}

// Running reports whether a sync is in progress.
func (s *Syncer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Current returns the syncer state for API clients.
func (s *Syncer) Current() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Running: s.running, Last: s.last}
}

// LogTail returns the last n lines of the sync log.
func (s *Syncer) LogTail(n int) []string {
	content, err := filesystem.API().ReadFile(where.SyncLog())
	if err != nil {
		return nil
	}
	return util.TailLines(string(content), n)
}

// appendLog appends text to the sync log, creating it on first use.
func (s *Syncer) appendLog(text string) {
	if text == "" {
		return
	}
	file, err := filesystem.API().OpenFile(where.SyncLog(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warnf("syncer: open sync log: %v", err)
		return
	}
	defer file.Close()
	_, _ = file.WriteString(text)
}

func flatten(params map[string]string) []string {
	flat := make([]string, 0, len(params)*2)
	for k, v := range params {
		flat = append(flat, k, v)
	}
	return flat
}
