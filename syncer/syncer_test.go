package syncer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avpd/avpd/filesystem"
	"github.com/avpd/avpd/key"
	"github.com/avpd/avpd/where"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func newTestSyncer(run runner) *Syncer {
	filesystem.SetMemMapFs()
	s := New()
	s.look = func(string) (string, error) { return "/usr/bin/rclone", nil }
	s.run = run
	return s
}

func TestSyncBlocking(t *testing.T) {
	Convey("SyncBlocking", t, func() {
		Convey("Should fail fast without logging when rclone is missing", func() {
			s := newTestSyncer(nil)
			s.look = func(string) (string, error) { return "", errors.New("not found") }

			result := s.SyncBlocking(Target{})
			So(result.OK, ShouldBeFalse)
			So(result.Message, ShouldEqual, "rclone not installed")

			exists := lo.Must(filesystem.API().Exists(where.SyncLog()))
			So(exists, ShouldBeFalse)
		})

		Convey("Should log banners and transfer output on success", func() {
			s := newTestSyncer(func(name string, args ...string) ([]byte, error) {
				So(name, ShouldEqual, "rclone")
				So(args[0], ShouldEqual, "sync")
				return []byte("Transferred: 3 files\n"), nil
			})

			result := s.SyncBlocking(Target{})
			So(result.OK, ShouldBeTrue)
			So(result.Message, ShouldEqual, "sync completed")

			content := string(lo.Must(filesystem.API().ReadFile(where.SyncLog())))
			So(content, ShouldContainSubstring, "==== sync started")
			So(content, ShouldContainSubstring, "Transferred: 3 files")
			So(content, ShouldContainSubstring, "(ok=true)")
		})

		Convey("Should record failures in the result and the log", func() {
			s := newTestSyncer(func(string, ...string) ([]byte, error) {
				return []byte("couldn't connect\n"), errors.New("exit status 1")
			})

			result := s.SyncBlocking(Target{})
			So(result.OK, ShouldBeFalse)
			So(result.Message, ShouldContainSubstring, "sync failed")

			content := string(lo.Must(filesystem.API().ReadFile(where.SyncLog())))
			So(content, ShouldContainSubstring, "(ok=false)")
		})

		Convey("Should fire the post-sync callback on success", func() {
			fired := false
			s := newTestSyncer(func(string, ...string) ([]byte, error) {
				return nil, nil
			})
			s.SetPostSync(func() { fired = true })

			s.SyncBlocking(Target{})
			So(fired, ShouldBeTrue)
		})

		Convey("Should not fire the post-sync callback on failure", func() {
			fired := false
			s := newTestSyncer(func(string, ...string) ([]byte, error) {
				return nil, errors.New("exit status 1")
			})
			s.SetPostSync(func() { fired = true })

			s.SyncBlocking(Target{})
			So(fired, ShouldBeFalse)
		})

		Convey("Should use target overrides over the configured remote", func() {
			viper.Set(key.SyncRemote, "gdrive")
			viper.Set(key.LibraryRemoteFolder, "VideosRPi")

			var got []string
			s := newTestSyncer(func(name string, args ...string) ([]byte, error) {
				got = args
				return nil, nil
			})

			s.SyncBlocking(Target{Remote: "dropbox", Folder: "Movies", Dest: "/mnt/alt"})
			So(got, ShouldResemble, []string{"sync", "dropbox:Movies", "/mnt/alt", "--delete-during"})

			s.SyncBlocking(Target{})
			So(got, ShouldResemble, []string{"sync", "gdrive:VideosRPi", where.Videos(), "--delete-during"})
		})
	})
}

func TestSingleSlot(t *testing.T) {
	Convey("Single sync slot", t, func() {
		release := make(chan struct{})
		s := newTestSyncer(func(string, ...string) ([]byte, error) {
			<-release
			return nil, nil
		})

		Convey("A second sync should be rejected while one runs", func() {
			So(s.SyncAsync(Target{}), ShouldBeTrue)
			for !s.Running() {
				time.Sleep(time.Millisecond)
			}

			So(s.SyncAsync(Target{}), ShouldBeFalse)
			blocked := s.SyncBlocking(Target{})
			So(blocked.Message, ShouldEqual, "sync already running")

			close(release)
			for s.Running() {
				time.Sleep(time.Millisecond)
			}
			So(s.Current().Last.MustGet().OK, ShouldBeTrue)
		})
	})
}

func TestRemotes(t *testing.T) {
	Convey("Remotes", t, func() {
		s := newTestSyncer(func(name string, args ...string) ([]byte, error) {
			So(args, ShouldResemble, []string{"listremotes"})
			return []byte("gdrive:\ndropbox:\n"), nil
		})

		remotes, err := s.Remotes()
		So(err, ShouldBeNil)
		So(remotes, ShouldResemble, []string{"gdrive", "dropbox"})
	})
}

func TestRemoteSpec(t *testing.T) {
	Convey("RemoteSpec", t, func() {
		viper.Set(key.SyncRemote, "gdrive")
		viper.Set(key.LibraryRemoteFolder, "VideosRPi")

		s := newTestSyncer(nil)
		So(s.RemoteSpec(), ShouldEqual, "gdrive:VideosRPi")
	})
}

func TestLogTail(t *testing.T) {
	Convey("LogTail", t, func() {
		s := newTestSyncer(nil)

		Convey("Should return nil when no log exists", func() {
			So(s.LogTail(10), ShouldBeNil)
		})

		Convey("Should return the last n lines", func() {
			s.appendLog(strings.Join([]string{"one", "two", "three", ""}, "\n"))

			tail := s.LogTail(2)
			So(tail, ShouldResemble, []string{"two", "three"})
		})
	})
}
