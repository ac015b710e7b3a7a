package capture

import (
	"fmt"
	"image"

	"github.com/vova616/screenshot"
)

// displayCapturer grabs the primary display via the screenshot library.
type displayCapturer struct {
	closed bool
}

// NewScreenCapturer creates a capturer for the primary display.
func NewScreenCapturer() (ScreenCapturer, error) {
	// Probe once so startup fails fast on headless/permission problems
	// instead of erroring on every frame tick.
	if _, err := screenshot.ScreenRect(); err != nil {
		return nil, fmt.Errorf("probe screen: %w", err)
	}
	return &displayCapturer{}, nil
}

func (d *displayCapturer) Capture() (*image.RGBA, error) {
	if d.closed {
		return nil, ErrNotSupported
	}
	img, err := screenshot.CaptureScreen()
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return img, nil
}

func (d *displayCapturer) Bounds() (image.Rectangle, error) {
	if d.closed {
		return image.Rectangle{}, ErrNotSupported
	}
	r, err := screenshot.ScreenRect()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("screen bounds: %w", err)
	}
	return r, nil
}

func (d *displayCapturer) Close() error {
	d.closed = true
	return nil
}
