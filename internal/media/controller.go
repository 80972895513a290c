package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"studylink/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// pump moves packets from a capture source onto a local track. The
// enabled flag gates writes: disabling mutes the track without detaching
// it, so toggles never renegotiate.
type pump struct {
	track   *webrtc.TrackLocalStaticRTP
	source  Source
	enabled atomic.Bool
	stop    sync.Once
}

func newPump(track *webrtc.TrackLocalStaticRTP, source Source) *pump {
	p := &pump{track: track, source: source}
	p.enabled.Store(true)
	go p.run()
	return p
}

func (p *pump) run() {
	for {
		pkt, err := p.source.ReadRTP()
		if err != nil {
			return
		}
		if !p.enabled.Load() {
			continue
		}
		if err := p.track.WriteRTP(pkt); err != nil {
			// No bound sender yet, or the track was stopped; both are fine.
			continue
		}
	}
}

func (p *pump) close() {
	p.stop.Do(func() { p.source.Close() })
}

// Controller owns the local camera and microphone tracks plus the
// optional screen track. It is the only component allowed to mutate
// track enablement; the preview UI and peer links share the tracks
// read-only.
type Controller struct {
	userID   domain.UserID
	provider CaptureProvider
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	audio  *pump
	video  *pump
	screen *pump
}

func NewController(userID domain.UserID, provider CaptureProvider, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Controller{userID: userID, provider: provider, logger: logger}
}

// Acquire opens camera and microphone. If only one device is missing the
// session continues with the other; if neither is available it returns
// ErrMediaUnavailable and the caller proceeds audio/video-off rather
// than aborting the session.
func (c *Controller) Acquire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var audioErr, videoErr error

	if c.audio == nil {
		source, codec, err := c.provider.OpenMicrophone(ctx)
		if err != nil {
			audioErr = err
		} else {
			track, err := webrtc.NewTrackLocalStaticRTP(codec,
				fmt.Sprintf("audio-%s", c.userID), fmt.Sprintf("stream-%s", c.userID))
			if err != nil {
				source.Close()
				audioErr = err
			} else {
				c.audio = newPump(track, source)
			}
		}
	}

	if c.video == nil {
		source, codec, err := c.provider.OpenCamera(ctx)
		if err != nil {
			videoErr = err
		} else {
			track, err := webrtc.NewTrackLocalStaticRTP(codec,
				fmt.Sprintf("video-%s", c.userID), fmt.Sprintf("stream-%s", c.userID))
			if err != nil {
				source.Close()
				videoErr = err
			} else {
				c.video = newPump(track, source)
			}
		}
	}

	if c.audio == nil && c.video == nil {
		return fmt.Errorf("%w: audio: %v, video: %v", domain.ErrMediaUnavailable, audioErr, videoErr)
	}
	if audioErr != nil {
		c.logger.Warnw("microphone unavailable, continuing without audio", "error", audioErr)
	}
	if videoErr != nil {
		c.logger.Warnw("camera unavailable, continuing without video", "error", videoErr)
	}
	return nil
}

// Tracks returns the acquired camera/microphone tracks for attachment to
// peer links. The screen track is exposed by AcquireScreen instead.
func (c *Controller) Tracks() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []webrtc.TrackLocal
	if c.audio != nil {
		out = append(out, c.audio.track)
	}
	if c.video != nil {
		out = append(out, c.video.track)
	}
	return out
}

// ToggleAudio flips the microphone enabled bit and returns the new state.
func (c *Controller) ToggleAudio() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio == nil {
		return false
	}
	next := !c.audio.enabled.Load()
	c.audio.enabled.Store(next)
	return next
}

// ToggleVideo flips the camera enabled bit and returns the new state.
func (c *Controller) ToggleVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == nil {
		return false
	}
	next := !c.video.enabled.Load()
	c.video.enabled.Store(next)
	return next
}

func (c *Controller) AudioEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio != nil && c.audio.enabled.Load()
}

func (c *Controller) VideoEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.video != nil && c.video.enabled.Load()
}

// AcquireScreen opens the screen capture source and returns its track.
// A declined prompt surfaces as ErrScreenShareCancelled, which callers
// treat as a status change, not a failure.
func (c *Controller) AcquireScreen(ctx context.Context) (webrtc.TrackLocal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.screen != nil {
		return c.screen.track, nil
	}

	source, codec, err := c.provider.OpenScreen(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrScreenShareCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: screen: %v", domain.ErrMediaUnavailable, err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(codec,
		fmt.Sprintf("screen-%s", c.userID), fmt.Sprintf("screen-stream-%s", c.userID))
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("%w: screen track: %v", domain.ErrMediaUnavailable, err)
	}
	c.screen = newPump(track, source)
	return track, nil
}

// StopScreen stops the screen pump. Safe to call when not sharing.
func (c *Controller) StopScreen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != nil {
		c.screen.close()
		c.screen = nil
	}
}

// Close stops every pump. Part of the guaranteed leave sequence.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range []*pump{c.audio, c.video, c.screen} {
		if p != nil {
			p.close()
		}
	}
	c.audio, c.video, c.screen = nil, nil, nil
	return nil
}
