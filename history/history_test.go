package history

import (
	"testing"
	"time"

	"github.com/avpd/avpd/filesystem"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHistory(t *testing.T) {
	Convey("History", t, func() {
		filesystem.SetMemMapFs()

		Convey("Should start empty", func() {
			saved, err := Get()
			So(err, ShouldBeNil)
			So(saved, ShouldBeEmpty)
			So(LastPlayed().IsAbsent(), ShouldBeTrue)
		})

		Convey("Save should persist a record", func() {
			So(Save("a.mp4"), ShouldBeNil)

			saved, err := Get()
			So(err, ShouldBeNil)
			So(saved, ShouldContainKey, "a.mp4")
		})

		Convey("LastPlayed should prefer the most recent record", func() {
			So(Save("a.mp4"), ShouldBeNil)
			time.Sleep(5 * time.Millisecond)
			So(Save("b.mp4"), ShouldBeNil)

			So(LastPlayed().MustGet(), ShouldEqual, "b.mp4")
		})

		Convey("Remove should delete a record", func() {
			So(Save("a.mp4"), ShouldBeNil)
			So(Remove("a.mp4"), ShouldBeNil)

			saved, _ := Get()
			So(saved, ShouldNotContainKey, "a.mp4")
		})
	})
}
