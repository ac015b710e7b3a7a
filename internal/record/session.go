// Package record implements the capture/recording coordinator: a session
// state machine owning the capture mode, the recording window, and the
// per-frame processing pipeline.
package record

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanternops/recap/internal/capture"
	"github.com/lanternops/recap/internal/config"
	"github.com/lanternops/recap/internal/logging"
	"github.com/lanternops/recap/internal/sink"
)

// State is the session lifecycle state. All transitions are serialized by
// the session mutex; exactly one coordinator owns the state.
type State int

const (
	StateIdle State = iota
	StateWaitingForWindow
	StatePlaying
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForWindow:
		return "waiting-for-window"
	case StatePlaying:
		return "playing"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Mode selects how the capture region is computed each frame.
type Mode int

const (
	// ModeScreen captures the primary screen bounds.
	ModeScreen Mode = iota
	// ModeRegion captures a fixed user-chosen rectangle.
	ModeRegion
	// ModeWindow tracks a target window's geometry.
	ModeWindow
)

func (m Mode) String() string {
	switch m {
	case ModeScreen:
		return "screen"
	case ModeRegion:
		return "region"
	case ModeWindow:
		return "window"
	default:
		return "unknown"
	}
}

func (m Mode) prefix() string {
	switch m {
	case ModeRegion:
		return "Region_"
	case ModeWindow:
		return "Window_"
	default:
		return "Screen_"
	}
}

// ParseMode parses a mode name from config/CLI.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "screen", "":
		return ModeScreen, nil
	case "region":
		return ModeRegion, nil
	case "window":
		return ModeWindow, nil
	default:
		return ModeScreen, fmt.Errorf("unknown capture mode %q", s)
	}
}

// ErrRecordingActive is returned by operations that are rejected while a
// recording is in progress (pausing preview, changing mode).
var ErrRecordingActive = errors.New("recording in progress")

// ErrNoWindowProvider is returned when window mode is used without a
// window provider wired in.
var ErrNoWindowProvider = errors.New("no window provider configured")

// AudioMixer is what the session needs from the audio side: one merged
// stream with a fixed sample rate and channel layout.
type AudioMixer interface {
	Start(onFrame func([]int16), onError func(device string, err error)) error
	SampleRate() int
	Channels() int
	Stop()
}

// FrameSource delivers captured frames on its own goroutine. Stop blocks
// until the source acknowledges and no callback is in flight.
type FrameSource interface {
	Start()
	Stop()
}

// Notifier carries the callbacks the surrounding application registers.
// All callbacks are optional and are invoked outside the session lock.
type Notifier struct {
	// OnWindowRequest is raised when a target window must be chosen. The
	// session does not wait; it stays in the waiting state until
	// SelectWindowUnderCursor is called.
	OnWindowRequest func()
	OnStateChange   func(State)
	OnError         func(err error)
}

// Options wires a session's collaborators. Capturer and NewSink are
// required; the rest are optional. The session takes ownership of Capturer
// and Windows and releases both in Close.
type Options struct {
	Config   *config.Config
	Capturer capture.ScreenCapturer
	Windows  capture.WindowProvider
	Input    InputTracker
	Notifier Notifier

	// NewSink creates an unopened sink for each recording.
	NewSink func() sink.EncodeSink

	// NewMixer creates the audio mixer for each recording. Nil means the
	// recording has no audio stream.
	NewMixer func() (AudioMixer, error)

	// NewSource overrides frame source construction (tests). Nil uses a
	// ticker-paced capture.Source over Capturer.
	NewSource func(cfg capture.SourceConfig) FrameSource

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Session coordinates screen capture, audio capture, and the encode sink
// for one run from "start playing" to "close". It is the only component
// with write access to session state.
type Session struct {
	id   string
	log  *slog.Logger
	cfg  *config.Config
	opts Options

	// mu guards the state machine plus everything shared with the frame
	// and audio callback threads: the recording flag (state), the sink,
	// the mixer handle, and the recording start time. Video and audio
	// writes are mutually exclusive under it.
	mu          sync.Mutex
	state       State
	mode        Mode
	fixedRegion image.Rectangle
	region      image.Rectangle
	window      capture.Window
	hasWindow   bool
	source      FrameSource
	snk         sink.EncodeSink
	mix         AudioMixer
	recStart    time.Time // zero until the first frame commits after StartRecording
	lastTS      time.Duration
	hasRecorded bool
	outputPath  string

	buffer    frameBuffer
	metrics   *Metrics
	rec       *recovery
	now       func() time.Time
	closeOnce sync.Once

	// onPrepared taps every prepared preview frame. The image is only
	// valid for the duration of the call.
	onPrepared func(img *image.RGBA, region image.Rectangle)
}

// NewSession creates a session in StateIdle.
func NewSession(opts Options) (*Session, error) {
	if opts.Capturer == nil {
		return nil, errors.New("capturer is required")
	}
	if opts.NewSink == nil {
		return nil, errors.New("sink factory is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		opts:    opts,
		state:   StateIdle,
		metrics: newMetrics(),
		now:     opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.log = logging.WithSession(logging.L("record"), s.id)
	s.rec = newRecovery(s)
	go s.metrics.logLoop(s.log, s.rec.done)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRecording reports whether an output file is currently being written.
func (s *Session) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRecording
}

// HasRecorded reports whether at least one recording finished this session.
func (s *Session) HasRecorded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasRecorded
}

// OutputPath returns the most recent recording's output file path.
func (s *Session) OutputPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputPath
}

// Region returns the current capture region.
func (s *Session) Region() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region
}

// Mode returns the current capture mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Metrics returns the session metrics.
func (s *Session) Metrics() *Metrics { return s.metrics }

// SetPreviewTap registers the preview frame callback. Must be called before
// StartPlaying.
func (s *Session) SetPreviewTap(tap func(img *image.RGBA, region image.Rectangle)) {
	s.onPrepared = tap
}

// SetFixedRegion sets the rectangle used by ModeRegion. Rejected while
// recording.
func (s *Session) SetFixedRegion(r image.Rectangle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRecording {
		return ErrRecordingActive
	}
	s.fixedRegion = r
	if s.state == StatePlaying && s.mode == ModeRegion {
		s.region = s.computeRegionLocked()
	}
	return nil
}

// StartPlaying starts the live capture loop. In window mode with no target
// chosen yet, it raises the window-request notification and returns
// immediately without starting any capture source.
func (s *Session) StartPlaying() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateWaitingForWindow:
	default:
		s.mu.Unlock()
		return nil
	}

	if s.mode == ModeWindow && !s.hasWindow {
		s.state = StateWaitingForWindow
		s.mu.Unlock()
		s.notifyState(StateWaitingForWindow)
		if s.opts.Notifier.OnWindowRequest != nil {
			s.opts.Notifier.OnWindowRequest()
		}
		return nil
	}

	return s.startSourceLocked()
}

// startSourceLocked computes the initial region, starts the frame source,
// and transitions to Playing. Called with s.mu held; releases it.
func (s *Session) startSourceLocked() error {
	s.region = s.computeRegionLocked()

	srcCfg := capture.SourceConfig{
		FrameRate: s.cfg.FrameRate,
		OnFrame:   s.handleFrame,
		OnError: func(err error) {
			s.rec.submit(kindVideo, "screen", err)
		},
	}
	var src FrameSource
	if s.opts.NewSource != nil {
		src = s.opts.NewSource(srcCfg)
	} else {
		src = capture.NewSource(s.opts.Capturer, srcCfg)
	}
	s.source = src
	s.state = StatePlaying
	region := s.region
	s.mu.Unlock()

	src.Start()
	s.notifyState(StatePlaying)
	s.log.Info("playing started",
		"mode", s.Mode().String(),
		"region", region.String(),
		"frameRate", s.cfg.FrameRate,
	)
	return nil
}

// SelectWindowUnderCursor resolves the window under the cursor as the
// recording target. If the session was waiting for a window, capture begins.
func (s *Session) SelectWindowUnderCursor() error {
	if s.opts.Windows == nil {
		return ErrNoWindowProvider
	}
	w, err := s.opts.Windows.WindowUnderCursor()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.window = w
	s.hasWindow = true
	if s.state != StateWaitingForWindow {
		s.mu.Unlock()
		return nil
	}
	return s.startSourceLocked()
}

// StartRecording opens the encode sink and begins writing frames. A no-op
// unless the session is Playing (invalid transitions are silently ignored).
func (s *Session) StartRecording() error {
	s.mu.Lock()
	if s.state != StatePlaying {
		state := s.state
		s.mu.Unlock()
		s.log.Debug("start recording ignored", "state", state.String())
		return nil
	}

	path := outputName(s.cfg.OutputDir, s.mode, s.now(), s.cfg.Container)

	video := sink.VideoParams{
		Width:     s.region.Dx(),
		Height:    s.region.Dy(),
		FrameRate: sink.Rational{Num: s.cfg.FrameRate, Den: 1},
		Codec:     s.cfg.VideoCodec,
		Bitrate:   s.cfg.VideoBitrate,
		Options:   s.cfg.VideoOptions,
	}

	var (
		mix   AudioMixer
		audio sink.AudioParams
	)
	if s.opts.NewMixer != nil {
		var err error
		mix, err = s.opts.NewMixer()
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("audio mixer: %w", err)
		}
		audio = sink.AudioParams{
			Codec:      s.cfg.AudioCodec,
			Bitrate:    s.cfg.AudioBitrate,
			SampleRate: mix.SampleRate(),
			Channels:   mix.Channels(),
		}
	}

	snk := s.opts.NewSink()
	if err := snk.Open(path, video, audio); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("open sink: %w", err)
	}

	s.snk = snk
	s.mix = mix
	s.recStart = time.Time{}
	s.lastTS = 0
	s.outputPath = path
	s.state = StateRecording

	if mix != nil {
		err := mix.Start(s.writeAudio, func(device string, err error) {
			s.rec.submit(kindAudio, device, err)
		})
		if err != nil {
			s.snk = nil
			s.mix = nil
			s.state = StatePlaying
			s.mu.Unlock()
			_ = snk.Close()
			return fmt.Errorf("start audio mixer: %w", err)
		}
	}
	s.mu.Unlock()

	s.notifyState(StateRecording)
	s.log.Info("recording started", "path", path,
		"size", fmt.Sprintf("%dx%d", video.Width, video.Height))
	return nil
}

// StopRecording closes the sink and releases the audio devices. Idempotent:
// calling it when not recording is a no-op, and the sink is closed exactly
// once per recording.
func (s *Session) StopRecording() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	snk := s.snk
	mix := s.mix
	s.snk = nil
	s.mix = nil
	s.hasRecorded = true
	s.state = StatePlaying
	path := s.outputPath
	s.mu.Unlock()

	if mix != nil {
		mix.Stop()
	}
	if snk != nil {
		if err := snk.Close(); err != nil {
			s.log.Warn("sink close", "error", err)
		}
	}

	s.notifyState(StatePlaying)
	snap := s.metrics.Snapshot()
	s.log.Info("recording stopped",
		"path", path,
		"framesWritten", snap.FramesWritten,
		"framesSkipped", snap.FramesSkipped,
		"audioFrames", snap.AudioFrames,
	)
}

// PausePlaying stops the live capture loop. Rejected while recording: the
// output file must keep receiving frames until StopRecording.
func (s *Session) PausePlaying() error {
	s.mu.Lock()
	if s.state == StateRecording {
		s.mu.Unlock()
		return ErrRecordingActive
	}
	if s.state != StatePlaying {
		s.mu.Unlock()
		return nil
	}
	src := s.source
	s.source = nil
	s.state = StateIdle
	s.mu.Unlock()

	if src != nil {
		src.Stop() // blocks until the source acknowledges
	}
	s.notifyState(StateIdle)
	return nil
}

// SetMode changes the capture mode. Silently ignored while recording (the
// mode is immutable for the lifetime of an output file). For window mode
// the session re-enters the waiting path synchronously if already playing.
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	if s.state == StateRecording {
		s.mu.Unlock()
		s.log.Debug("mode change ignored while recording", "mode", m.String())
		return
	}
	s.mode = m

	var stopSrc FrameSource
	raiseRequest := false
	if m == ModeWindow {
		// Force a fresh pick; the old target may be gone.
		s.hasWindow = false
		if s.state == StatePlaying {
			stopSrc = s.source
			s.source = nil
			s.state = StateWaitingForWindow
			raiseRequest = true
		}
	} else if s.state == StatePlaying {
		s.region = s.computeRegionLocked()
	}
	s.mu.Unlock()

	if stopSrc != nil {
		stopSrc.Stop()
	}
	if raiseRequest {
		s.notifyState(StateWaitingForWindow)
		if s.opts.Notifier.OnWindowRequest != nil {
			s.opts.Notifier.OnWindowRequest()
		}
	}
}

// Close releases every owned resource exactly once. Safe to call multiple
// times and concurrently with in-flight frame callbacks.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.StopRecording()

		s.mu.Lock()
		src := s.source
		s.source = nil
		s.state = StateStopped
		s.mu.Unlock()

		if src != nil {
			src.Stop()
		}
		s.rec.close()
		if err := s.opts.Capturer.Close(); err != nil {
			s.log.Warn("capturer close", "error", err)
		}
		if s.opts.Windows != nil {
			if err := s.opts.Windows.Close(); err != nil {
				s.log.Warn("window provider close", "error", err)
			}
		}

		s.notifyState(StateStopped)
		snap := s.metrics.Snapshot()
		s.log.Info("session closed",
			"framesCaptured", snap.FramesCaptured,
			"framesWritten", snap.FramesWritten,
			"uptime", snap.Uptime.Round(time.Second),
		)
	})
}

// writeAudio is the mixer's frame callback. Runs on the mix loop goroutine;
// shares the session lock with the video encode branch so no two sink
// writes ever interleave.
func (s *Session) writeAudio(samples []int16) {
	s.mu.Lock()
	if s.state != StateRecording || s.snk == nil {
		s.mu.Unlock()
		return
	}
	err := s.snk.WriteAudioFrame(samples)
	s.mu.Unlock()

	s.metrics.RecordAudio(len(samples))
	if err != nil {
		s.log.Warn("audio write", "error", err)
	}
}

// computeRegionLocked derives the capture region for the current mode.
// Dimensions are always even on return. Called with s.mu held.
func (s *Session) computeRegionLocked() image.Rectangle {
	bounds, err := s.opts.Capturer.Bounds()
	if err != nil {
		s.log.Warn("screen bounds", "error", err)
		bounds = image.Rect(0, 0, 2, 2)
	}

	switch s.mode {
	case ModeRegion:
		if s.fixedRegion.Empty() {
			return capture.EvenAligned(bounds)
		}
		return capture.ClampTo(capture.EvenAligned(s.fixedRegion), bounds)
	case ModeWindow:
		if s.opts.Windows == nil || !s.hasWindow {
			return capture.EvenAligned(bounds)
		}
		r, err := s.opts.Windows.Rect(s.window)
		if err != nil {
			// Window vanished; fall back to the full screen until the
			// next successful lookup.
			s.log.Warn("window rect", "error", err)
			return capture.EvenAligned(bounds)
		}
		return capture.ClampTo(capture.EvenAligned(r), bounds)
	default:
		return capture.EvenAligned(bounds)
	}
}

func (s *Session) notifyState(st State) {
	if s.opts.Notifier.OnStateChange != nil {
		s.opts.Notifier.OnStateChange(st)
	}
}
