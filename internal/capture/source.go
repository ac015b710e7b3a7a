package capture

import (
	"image"
	"math"
	"sync"
	"time"

	"github.com/lanternops/recap/internal/logging"
)

var log = logging.L("capture")

// consecutive capture failures before the source gives up and reports a
// device error. Transient failures (e.g. a display mode change) should not
// kill a session.
const maxConsecutiveErrors = 3

// SourceConfig configures a frame source loop.
type SourceConfig struct {
	// FrameRate is the target capture rate; the tick interval is
	// round(1000/FrameRate) milliseconds.
	FrameRate int

	// OnFrame is invoked synchronously on the source goroutine for every
	// captured frame. The image buffer may be reused by the capturer after
	// the callback returns, so the consumer must copy or fully process it
	// before returning. The next capture does not start until it returns.
	OnFrame func(img *image.RGBA, ts time.Time)

	// OnError is invoked once when the source stops itself after repeated
	// capture failures. Delivered on the source goroutine.
	OnError func(err error)
}

// Interval converts a frame rate into the capture tick interval.
func Interval(frameRate int) time.Duration {
	if frameRate < 1 {
		frameRate = 1
	}
	ms := math.Round(1000.0 / float64(frameRate))
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// Source drives a ScreenCapturer on a ticker and delivers frames through a
// synchronous callback. One frame is in flight at a time by construction:
// the loop does not capture again until OnFrame returns.
type Source struct {
	capturer ScreenCapturer
	cfg      SourceConfig

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSource creates a frame source. Start must be called to begin delivery.
func NewSource(capturer ScreenCapturer, cfg SourceConfig) *Source {
	return &Source{capturer: capturer, cfg: cfg}
}

// Start launches the capture loop goroutine. Calling Start on a running
// source is a no-op.
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.done)
}

// Stop signals the loop to exit and blocks until it has acknowledged. Safe
// to call multiple times and on a source that never started.
func (s *Source) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Source) loop(done chan struct{}) {
	defer s.wg.Done()

	interval := Interval(s.cfg.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	errStreak := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			img, err := s.capturer.Capture()
			if err != nil {
				errStreak++
				log.Warn("screen capture error", "error", err, "consecutive", errStreak)
				if errStreak >= maxConsecutiveErrors {
					s.mu.Lock()
					s.running = false
					s.mu.Unlock()
					if s.cfg.OnError != nil {
						s.cfg.OnError(err)
					}
					return
				}
				continue
			}
			errStreak = 0
			if img == nil {
				// Capturer had no new frame this tick.
				continue
			}
			if s.cfg.OnFrame != nil {
				s.cfg.OnFrame(img, time.Now())
			}
		}
	}
}
