// Package capture provides screen frame acquisition for recording sessions.
package capture

import (
	"errors"
	"image"
)

// ScreenCapturer defines the interface for screen capture implementations.
type ScreenCapturer interface {
	// Capture captures the full screen and returns an image. The returned
	// buffer may be reused by subsequent calls; callers that retain the
	// frame past the next Capture must copy it.
	Capture() (*image.RGBA, error)

	// Bounds returns the screen rectangle in virtual desktop coordinates.
	Bounds() (image.Rectangle, error)

	// Close releases any resources held by the capturer.
	Close() error
}

// ErrNotSupported is returned when screen capture is not supported on the platform.
var ErrNotSupported = errors.New("screen capture not supported on this platform")

// ErrNoWindow is returned when no window could be resolved under the cursor.
var ErrNoWindow = errors.New("no window under cursor")
