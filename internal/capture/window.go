package capture

import "image"

// Window identifies a top-level window chosen as a recording target.
type Window struct {
	ID    uintptr
	Title string
}

// WindowProvider resolves target windows and tracks their geometry.
// Implementations are platform specific; see NewWindowProvider.
type WindowProvider interface {
	// WindowUnderCursor resolves the top-level window currently under the
	// cursor. Returns ErrNoWindow when nothing suitable is found.
	WindowUnderCursor() (Window, error)

	// Rect returns the window's current outer rectangle in virtual desktop
	// coordinates. Called once per frame so window moves and resizes are
	// picked up immediately.
	Rect(w Window) (image.Rectangle, error)

	// Close releases the display server connection.
	Close() error
}
