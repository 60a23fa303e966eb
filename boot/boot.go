// Package boot runs the appliance's startup sequence: cloud sync,
// catalog refresh, thumbnail generation and autoplay, in that order and
// off the request-handling path.
package boot

import (
	"sync"

	"github.com/avpd/avpd/history"
	"github.com/avpd/avpd/key"
	"github.com/avpd/avpd/log"
	"github.com/avpd/avpd/playback"
	"github.com/avpd/avpd/syncer"
	"github.com/avpd/avpd/thumbnail"
	"github.com/spf13/viper"
)

// Sequencer runs the boot sequence at most once per process, no matter
// how many code paths trigger it.
type Sequencer struct {
	controller *playback.Controller
	sync       *syncer.Syncer
	thumbs     *thumbnail.Generator

	once sync.Once
}

// New creates a Sequencer over the given components.
func New(controller *playback.Controller, sync *syncer.Syncer, thumbs *thumbnail.Generator) *Sequencer {
	return &Sequencer{
		controller: controller,
		sync:       sync,
		thumbs:     thumbs,
	}
}

// Start triggers the boot sequence in the background. Safe to call from
// multiple places; only the first call runs anything.
func (s *Sequencer) Start() {
	s.once.Do(func() {
		go s.run()
	})
}

// run executes the ordered boot steps. A failed sync still proceeds to
// serve whatever library is already present locally.
func (s *Sequencer) run() {
	if viper.GetBool(key.SyncOnBoot) {
		result := s.sync.SyncBlocking(syncer.Target{})
		if !result.OK {
			log.Warnf("boot: sync skipped or failed: %s", result.Message)
		}
	}

	res := s.controller.Catalog().Refresh(true)
	log.Infof("boot: catalog ready with %d videos", res.Count)

	if _, started := s.thumbs.GenerateAll(s.controller.Catalog().List()); !started {
		log.Warnf("boot: thumbnail generation already running")
	}

	if viper.GetBool(key.PlaybackAutoplay) && res.Count > 0 {
		s.autoplay()
	}
}

// autoplay starts playback, resuming on the last played video when the
// resume setting is on and the video still exists.
func (s *Sequencer) autoplay() {
	if viper.GetBool(key.PlaybackResumeLast) {
		if name, ok := history.LastPlayed().Get(); ok {
			if result := s.controller.SetMediaByName(name); result.OK {
				if result := s.controller.PlayCurrent(); result.OK {
					log.Infof("boot: resumed playback of %s", name)
					return
				}
			}
			log.Warnf("boot: could not resume %s, starting from the top", name)
		}
	}

	if result := s.controller.SetMediaByIndex(0); !result.OK {
		log.Errorf("boot: autoplay load failed: %s", result.Error)
		return
	}
	if result := s.controller.PlayCurrent(); !result.OK {
		log.Errorf("boot: autoplay failed: %s", result.Error)
	}
}
