package mixer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes an available audio capture device.
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// ListDevices enumerates audio capture devices on the system.
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}

	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceInfo{
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return out, nil
}

// malgoDevice wraps one miniaudio capture device.
type malgoDevice struct {
	name       string
	channels   int
	sampleRate int
	id         malgo.DeviceID
	useID      bool

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	dev      *malgo.Device
	stopping bool
}

// OpenDevices resolves device names (case-insensitive substring match; an
// empty list opens the default capture device) and returns handles ready for
// the mixer. Each handle owns its capture stream until Stop.
func OpenDevices(names []string, sampleRate int) ([]Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}

	if len(names) == 0 {
		for _, info := range infos {
			if info.IsDefault != 0 {
				return []Device{&malgoDevice{
					name:       info.Name(),
					channels:   nativeChannels(info),
					sampleRate: sampleRate,
					id:         info.ID,
					useID:      true,
				}}, nil
			}
		}
		// Enumeration did not flag a default; let miniaudio pick one.
		return []Device{&malgoDevice{
			name:       "default",
			channels:   1,
			sampleRate: sampleRate,
		}}, nil
	}

	var devices []Device
	for _, want := range names {
		found := false
		for _, info := range infos {
			if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(want)) {
				devices = append(devices, &malgoDevice{
					name:       info.Name(),
					channels:   nativeChannels(info),
					sampleRate: sampleRate,
					id:         info.ID,
					useID:      true,
				})
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("audio device %q not found", want)
		}
	}
	return devices, nil
}

// nativeChannels picks the capture channel count for a device from its
// enumerated native formats: the widest reported layout, clamped to stereo.
// Devices reporting no formats are captured mono.
func nativeChannels(info malgo.DeviceInfo) int {
	n := int(info.FormatCount)
	if n > len(info.Formats) {
		n = len(info.Formats)
	}
	ch := 0
	for _, f := range info.Formats[:n] {
		if int(f.Channels) > ch {
			ch = int(f.Channels)
		}
	}
	if ch < 1 {
		return 1
	}
	if ch > 2 {
		return 2
	}
	return ch
}

func (d *malgoDevice) Name() string  { return d.name }
func (d *malgoDevice) Channels() int { return d.channels }

func (d *malgoDevice) Start(onData func(samples []int16), onError func(err error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev != nil {
		return errors.New("device already started")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(d.channels)
	cfg.SampleRate = uint32(d.sampleRate)
	if d.useID {
		cfg.Capture.DeviceID = d.id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if len(input) < 2 {
				return
			}
			samples := make([]int16, len(input)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
			}
			onData(samples)
		},
		Stop: func() {
			d.mu.Lock()
			stopping := d.stopping
			d.mu.Unlock()
			// A stop we did not initiate means the device failed or was
			// unplugged mid-session.
			if !stopping && onError != nil {
				onError(errors.New("audio device stopped unexpectedly"))
			}
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("open audio device %s: %w", d.name, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start audio device %s: %w", d.name, err)
	}

	d.ctx = ctx
	d.dev = dev
	d.stopping = false
	return nil
}

func (d *malgoDevice) Stop() {
	d.mu.Lock()
	dev := d.dev
	ctx := d.ctx
	d.dev = nil
	d.ctx = nil
	d.stopping = true
	d.mu.Unlock()

	if dev != nil {
		_ = dev.Stop()
		dev.Uninit()
	}
	if ctx != nil {
		_ = ctx.Uninit()
		ctx.Free()
	}
}
