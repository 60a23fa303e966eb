package thumbnail

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/avpd/avpd/catalog"
	"github.com/avpd/avpd/filesystem"
	"github.com/avpd/avpd/where"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
)

func entry(name string, modified time.Time) catalog.Entry {
	return catalog.Entry{
		Name:       name,
		Path:       filepath.Join("/videos", name),
		ModifiedAt: modified,
	}
}

func okExtractor(calls *int, mu *sync.Mutex) Extractor {
	return func(videoPath, thumbPath string, offset int) error {
		mu.Lock()
		*calls++
		mu.Unlock()
		return filesystem.API().WriteFile(thumbPath, []byte("jpg"), 0o644)
	}
}

func TestGenerateAll(t *testing.T) {
	Convey("GenerateAll", t, func() {
		filesystem.SetMemMapFs()
		var (
			calls int
			mu    sync.Mutex
		)
		g := NewWithExtractor(okExtractor(&calls, &mu))
		now := time.Now()

		Convey("Should generate one thumbnail per entry", func() {
			res, started := g.GenerateAll([]catalog.Entry{
				entry("a.mp4", now),
				entry("b.mp4", now),
			})

			So(started, ShouldBeTrue)
			So(res.Generated, ShouldEqual, 2)
			So(calls, ShouldEqual, 2)
			So(lo.Must(filesystem.API().Exists(Path("a.mp4"))), ShouldBeTrue)
		})

		Convey("Should skip entries with a fresh thumbnail", func() {
			old := entry("a.mp4", now.Add(-time.Hour))
			lo.Must0(filesystem.API().WriteFile(Path("a.mp4"), []byte("jpg"), 0o644))

			res, _ := g.GenerateAll([]catalog.Entry{old})
			So(res.Skipped, ShouldEqual, 1)
			So(calls, ShouldEqual, 0)
		})

		Convey("Should fall back to a placeholder when extraction fails", func() {
			g := NewWithExtractor(func(_, _ string, _ int) error {
				return errors.New("codec not supported")
			})

			res, _ := g.GenerateAll([]catalog.Entry{entry("broken.mp4", now)})
			So(res.Placeholders, ShouldEqual, 1)
			So(lo.Must(filesystem.API().Exists(Path("broken.mp4"))), ShouldBeTrue)
		})

		Convey("Should remove thumbnails for deleted videos", func() {
			orphan := filepath.Join(where.Thumbnails(), "gone.jpg")
			lo.Must0(filesystem.API().WriteFile(orphan, []byte("jpg"), 0o644))

			res, _ := g.GenerateAll([]catalog.Entry{entry("a.mp4", now)})
			So(res.Removed, ShouldEqual, 1)
			So(lo.Must(filesystem.API().Exists(orphan)), ShouldBeFalse)
		})

		Convey("Should reject an overlapping run", func() {
			release := make(chan struct{})
			blocking := NewWithExtractor(func(_, thumbPath string, _ int) error {
				<-release
				return filesystem.API().WriteFile(thumbPath, []byte("jpg"), 0o644)
			})

			done := make(chan struct{})
			go func() {
				blocking.GenerateAll([]catalog.Entry{entry("a.mp4", now)})
				close(done)
			}()

			for !blocking.Running() {
				time.Sleep(time.Millisecond)
			}
			_, started := blocking.GenerateAll([]catalog.Entry{entry("b.mp4", now)})
			So(started, ShouldBeFalse)

			close(release)
			<-done
			So(blocking.Running(), ShouldBeFalse)
		})
	})
}

func TestPath(t *testing.T) {
	Convey("Path", t, func() {
		filesystem.SetMemMapFs()

		Convey("Should map a video name to a jpg in the thumbnails dir", func() {
			So(Path("clip.mp4"), ShouldEqual, filepath.Join(where.Thumbnails(), "clip.jpg"))
		})
	})
}
