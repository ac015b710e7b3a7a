package record

import (
	"fmt"
	"sync"
)

// DeviceKind distinguishes which half of the pipeline a device error came
// from.
type DeviceKind int

const (
	kindVideo DeviceKind = iota
	kindAudio
)

func (k DeviceKind) String() string {
	if k == kindAudio {
		return "audio"
	}
	return "video"
}

// DeviceError reports a capture device failure that ended a recording.
type DeviceError struct {
	Kind   DeviceKind
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s device %q: %v", e.Kind, e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// recovery funnels device failures from the capture goroutines into a
// single worker that tears the recording down. Capture callbacks must
// never block on or re-enter the session, so failures are handed off
// through a bounded channel; if it fills, further reports carry no new
// information and are dropped.
type recovery struct {
	s    *Session
	ch   chan *DeviceError
	done chan struct{}
	once sync.Once
}

func newRecovery(s *Session) *recovery {
	r := &recovery{
		s:    s,
		ch:   make(chan *DeviceError, 8),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *recovery) submit(kind DeviceKind, device string, err error) {
	de := &DeviceError{Kind: kind, Device: device, Err: err}
	select {
	case r.ch <- de:
	default:
		r.s.log.Warn("recovery queue full, dropping", "error", de)
	}
}

func (r *recovery) run() {
	for {
		select {
		case de := <-r.ch:
			r.handle(de)
		case <-r.done:
			return
		}
	}
}

// handle stops the active recording and, for a video failure, pauses the
// capture loop as well since no more frames will arrive. The application
// is notified after the session is back in a stable state.
func (r *recovery) handle(de *DeviceError) {
	r.s.log.Error("device failure", "device", de.Device,
		"kind", de.Kind.String(), "error", de.Err)

	r.s.StopRecording()
	if de.Kind == kindVideo {
		if err := r.s.PausePlaying(); err != nil {
			r.s.log.Warn("pause after device failure", "error", err)
		}
	}
	if r.s.opts.Notifier.OnError != nil {
		r.s.opts.Notifier.OnError(de)
	}
}

func (r *recovery) close() {
	r.once.Do(func() { close(r.done) })
}
