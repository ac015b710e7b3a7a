package record

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks per-session counters. All methods are safe for concurrent
// use from the pipeline goroutines.
type Metrics struct {
	start          time.Time
	framesCaptured atomic.Uint64
	framesWritten  atomic.Uint64
	framesSkipped  atomic.Uint64
	audioFrames    atomic.Uint64
	audioSamples   atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	FramesCaptured uint64        `json:"framesCaptured"`
	FramesWritten  uint64        `json:"framesWritten"`
	FramesSkipped  uint64        `json:"framesSkipped"`
	AudioFrames    uint64        `json:"audioFrames"`
	AudioSamples   uint64        `json:"audioSamples"`
	Uptime         time.Duration `json:"uptime"`
}

func newMetrics() *Metrics {
	return &Metrics{start: time.Now()}
}

func (m *Metrics) RecordCapture() { m.framesCaptured.Add(1) }
func (m *Metrics) RecordWrite()   { m.framesWritten.Add(1) }
func (m *Metrics) RecordSkip()    { m.framesSkipped.Add(1) }

func (m *Metrics) RecordAudio(samples int) {
	m.audioFrames.Add(1)
	m.audioSamples.Add(uint64(samples))
}

// logLoop periodically logs a metrics snapshot while frames are flowing.
// Runs on its own goroutine until done closes.
func (m *Metrics) logLoop(log *slog.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	var lastCaptured uint64
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snap := m.Snapshot()
			if snap.FramesCaptured == lastCaptured {
				continue // nothing happened since the last report
			}
			lastCaptured = snap.FramesCaptured
			log.Info("session metrics",
				"framesCaptured", snap.FramesCaptured,
				"framesWritten", snap.FramesWritten,
				"framesSkipped", snap.FramesSkipped,
				"audioFrames", snap.AudioFrames,
			)
		}
	}
}

// Snapshot returns a consistent-enough copy for logging and the preview
// status endpoint.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FramesCaptured: m.framesCaptured.Load(),
		FramesWritten:  m.framesWritten.Load(),
		FramesSkipped:  m.framesSkipped.Load(),
		AudioFrames:    m.audioFrames.Load(),
		AudioSamples:   m.audioSamples.Load(),
		Uptime:         time.Since(m.start),
	}
}
