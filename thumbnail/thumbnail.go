// Package thumbnail maintains one JPEG preview image per library video.
// Frames are extracted with ffmpeg; unreadable videos get a generated
// placeholder so the gallery never shows broken images.
package thumbnail

import (
	"path/filepath"
	"sync"

	"github.com/avpd/avpd/catalog"
	"github.com/avpd/avpd/filesystem"
	"github.com/avpd/avpd/key"
	"github.com/avpd/avpd/log"
	"github.com/avpd/avpd/util"
	"github.com/avpd/avpd/where"
	"github.com/spf13/viper"
)

// frameOffset is the timestamp in seconds the preview frame is taken from.
const frameOffset = 3

// Extractor writes a single frame of videoPath to thumbPath.
type Extractor func(videoPath, thumbPath string, offset int) error

// Result summarizes one generation run.
type Result struct {
	Generated    int `json:"generated"`
	Placeholders int `json:"placeholders"`
	Skipped      int `json:"skipped"`
	Removed      int `json:"removed"`
}

// Generator produces thumbnails for catalog entries with a bounded worker
// pool. At most one run is active at a time; overlapping requests are
// rejected rather than queued.
type Generator struct {
	extract Extractor

	mu      sync.Mutex
	running bool
}

// New creates a Generator backed by ffmpeg frame extraction.
func New() *Generator {
	return &Generator{extract: ffmpegExtract}
}

// NewWithExtractor creates a Generator with a custom frame extractor.
func NewWithExtractor(extract Extractor) *Generator {
	return &Generator{extract: extract}
}

// Running reports whether a generation run is in progress.
func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Path returns the thumbnail location for a video name.
func Path(videoName string) string {
	return filepath.Join(where.Thumbnails(), util.FileStem(videoName)+".jpg")
}

// GenerateAll refreshes thumbnails for the given entries and removes
// orphans. It returns started=false when a run is already active.
func (g *Generator) GenerateAll(entries []catalog.Entry) (Result, bool) {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return Result{}, false
	}
	g.running = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
	}()

	var (
		res   Result
		resMu sync.Mutex
		wg    sync.WaitGroup
	)

	jobs := make(chan catalog.Entry)
	for i := 0; i < workerCount(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				outcome := g.generateOne(entry)
				resMu.Lock()
				switch outcome {
				case outcomeGenerated:
					res.Generated++
				case outcomePlaceholder:
					res.Placeholders++
				case outcomeSkipped:
					res.Skipped++
				}
				resMu.Unlock()
			}
		}()
	}

	for _, entry := range entries {
		jobs <- entry
	}
	close(jobs)
	wg.Wait()

	res.Removed = cleanupOrphans(entries)

	log.Infof("thumbnails: %d generated, %d placeholders, %d skipped, %d removed",
		res.Generated, res.Placeholders, res.Skipped, res.Removed)
	return res, true
}

type outcome int

const (
	outcomeGenerated outcome = iota
	outcomePlaceholder
	outcomeSkipped
)

// generateOne produces the thumbnail for a single entry unless a fresh
// one already exists. Extraction failures fall back to a placeholder.
func (g *Generator) generateOne(entry catalog.Entry) outcome {
	thumbPath := Path(entry.Name)

	if info, err := filesystem.API().Stat(thumbPath); err == nil {
		if !info.ModTime().Before(entry.ModifiedAt) {
			return outcomeSkipped
		}
	}

	if err := g.extract(entry.Path, thumbPath, frameOffset); err != nil {
		log.Warnf("thumbnails: extract %s: %v", entry.Name, err)
		if err := writePlaceholder(thumbPath); err != nil {
			log.Errorf("thumbnails: placeholder %s: %v", entry.Name, err)
			return outcomeSkipped
		}
		return outcomePlaceholder
	}
	return outcomeGenerated
}

// cleanupOrphans deletes thumbnails whose video no longer exists.
func cleanupOrphans(entries []catalog.Entry) int {
	stems := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		stems[util.FileStem(entry.Name)] = struct{}{}
	}

	infos, err := filesystem.API().ReadDir(where.Thumbnails())
	if err != nil {
		return 0
	}

	removed := 0
	for _, info := range infos {
		if info.IsDir() || filepath.Ext(info.Name()) != ".jpg" {
			continue
		}
		if _, ok := stems[util.FileStem(info.Name())]; ok {
			continue
		}
		if err := filesystem.API().Remove(filepath.Join(where.Thumbnails(), info.Name())); err == nil {
			removed++
		}
	}
	return removed
}

func workerCount() int {
	workers := viper.GetInt(key.ThumbnailsWorkers)
	if workers < 1 {
		workers = 1
	}
	return workers
}
