package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avpd/avpd/constant"
	"github.com/avpd/avpd/log"
)

// segmenter mirrors the loaded media into a rolling HLS stream using an
// ffmpeg child process. The sink directory is wiped before each run so
// the playlist never references segments from a previous video.
type segmenter struct {
	cmd    *exec.Cmd
	exited chan struct{}
}

// startSegmenter launches ffmpeg writing a live HLS playlist for src.
func startSegmenter(src string, startAt int, sink PreviewSink) (*segmenter, error) {
	if err := resetSinkDir(sink.Dir); err != nil {
		return nil, fmt.Errorf("reset preview dir: %w", err)
	}

	args := []string{
		"-nostdin",
		"-loglevel", "error",
		"-re",
	}
	if startAt > 0 {
		args = append(args, "-ss", strconv.Itoa(startAt))
	}
	args = append(args,
		"-i", src,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", strconv.Itoa(constant.HLSSegmentLength),
		"-hls_list_size", strconv.Itoa(constant.HLSSegmentCount),
		"-hls_flags", "delete_segments",
		"-hls_segment_filename", filepath.Join(sink.Dir, constant.HLSSegmentPattern),
		sink.IndexPath,
	)

	cmd := exec.Command("ffmpeg", args...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	s := &segmenter{cmd: cmd, exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(s.exited)
	}()

	log.Debugf("engine: hls segmenter started for %s", filepath.Base(src))
	return s, nil
}

// stop terminates the ffmpeg process, force-killing after a short grace.
func (s *segmenter) stop() {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return
	}

	select {
	case <-s.exited:
		return
	default:
	}

	_ = interruptProcess(s.cmd)

	select {
	case <-s.exited:
	case <-time.After(2 * time.Second):
		_ = killProcess(s.cmd)
	}
}

// resetSinkDir recreates the sink directory empty. The segmenter writes
// through the real filesystem, so this does too.
func resetSinkDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
