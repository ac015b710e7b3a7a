// Package mixer merges audio frames from multiple capture devices into one
// timestamped stream with a single sample rate and channel layout.
package mixer

import (
	"errors"
	"sync"
	"time"

	"github.com/lanternops/recap/internal/logging"
)

var log = logging.L("mixer")

// Device is one audio capture device feeding the mixer. Implementations
// deliver interleaved signed 16-bit samples at the mixer's sample rate and
// their own native channel count.
type Device interface {
	Name() string
	Channels() int

	// Start begins capture. onData receives interleaved s16 samples; onError
	// is called once if the device fails mid-session. Both may be invoked on
	// an arbitrary thread.
	Start(onData func(samples []int16), onError func(err error)) error
	Stop()
}

// Config configures a mixer.
type Config struct {
	SampleRate int
	// FrameSize is the number of samples per channel in each mixed frame.
	FrameSize int
}

// Mixer merges N devices into one stream. Output layout is mono when the
// devices expose exactly one channel in total, stereo otherwise.
type Mixer struct {
	cfg      Config
	devices  []Device
	channels int
	inboxes  []*inbox

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	onFrame func([]int16)
	onError func(device string, err error)
}

// New creates a mixer over the given devices. At least one device is required.
func New(cfg Config, devices ...Device) (*Mixer, error) {
	if len(devices) == 0 {
		return nil, errors.New("at least one audio device is required")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 1024
	}

	total := 0
	for _, d := range devices {
		total += d.Channels()
	}
	channels := 2
	if total == 1 {
		channels = 1
	}

	m := &Mixer{
		cfg:      cfg,
		devices:  devices,
		channels: channels,
	}
	for range devices {
		// Hold up to ~250ms of audio per device before dropping.
		m.inboxes = append(m.inboxes, newInbox(cfg.SampleRate/4*channels))
	}
	return m, nil
}

// SampleRate returns the output sample rate.
func (m *Mixer) SampleRate() int { return m.cfg.SampleRate }

// Channels returns the output channel count (1 or 2).
func (m *Mixer) Channels() int { return m.channels }

// Start opens every device and begins emitting mixed frames through onFrame.
// onError reports a device that failed mid-session.
func (m *Mixer) Start(onFrame func([]int16), onError func(device string, err error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("mixer already started")
	}

	m.onFrame = onFrame
	m.onError = onError

	started := 0
	for i, dev := range m.devices {
		ib := m.inboxes[i]
		ch := dev.Channels()
		name := dev.Name()
		err := dev.Start(
			func(samples []int16) {
				ib.push(convertChannels(samples, ch, m.channels))
			},
			func(err error) {
				if m.onError != nil {
					m.onError(name, err)
				}
			},
		)
		if err != nil {
			for _, d := range m.devices[:started] {
				d.Stop()
			}
			return err
		}
		started++
	}

	m.running = true
	m.done = make(chan struct{})
	m.wg.Add(1)
	go m.mixLoop(m.done)

	log.Info("audio mixer started",
		"devices", len(m.devices),
		"sampleRate", m.cfg.SampleRate,
		"channels", m.channels,
	)
	return nil
}

// Stop halts all devices and the mix loop. Idempotent.
func (m *Mixer) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()

	for _, d := range m.devices {
		d.Stop()
	}
	m.wg.Wait()
}

// mixLoop emits one mixed frame per frame period. A device with no buffered
// samples contributes silence for that frame so one stalled device cannot
// stall the whole stream.
func (m *Mixer) mixLoop(done chan struct{}) {
	defer m.wg.Done()

	frameSamples := m.cfg.FrameSize * m.channels
	period := time.Duration(m.cfg.FrameSize) * time.Second / time.Duration(m.cfg.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	acc := make([]int32, frameSamples)
	out := make([]int16, frameSamples)
	chunk := make([]int16, frameSamples)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for i := range acc {
				acc[i] = 0
			}
			for _, ib := range m.inboxes {
				ib.pull(chunk)
				for i, s := range chunk {
					acc[i] += int32(s)
				}
			}
			for i, v := range acc {
				out[i] = clampS16(v)
			}
			if m.onFrame != nil {
				m.onFrame(out)
			}
		}
	}
}

func clampS16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// convertChannels adapts a device's native interleaved layout to the mixer's
// output layout. Mono is duplicated up to stereo; stereo is averaged down to
// mono. Devices with more than two channels contribute their first two.
func convertChannels(samples []int16, from, to int) []int16 {
	if from == to {
		return samples
	}
	switch {
	case from == 1 && to == 2:
		out := make([]int16, len(samples)*2)
		for i, s := range samples {
			out[i*2] = s
			out[i*2+1] = s
		}
		return out
	case from >= 2 && to == 1:
		frames := len(samples) / from
		out := make([]int16, frames)
		for i := 0; i < frames; i++ {
			l := int32(samples[i*from])
			r := int32(samples[i*from+1])
			out[i] = int16((l + r) / 2)
		}
		return out
	case from > 2 && to == 2:
		frames := len(samples) / from
		out := make([]int16, frames*2)
		for i := 0; i < frames; i++ {
			out[i*2] = samples[i*from]
			out[i*2+1] = samples[i*from+1]
		}
		return out
	default:
		return samples
	}
}
