//go:build !linux

package capture

// NewWindowProvider reports that window tracking is not available on this
// platform. Screen and region modes are unaffected.
func NewWindowProvider() (WindowProvider, error) {
	return nil, ErrNotSupported
}
