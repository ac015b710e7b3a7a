//go:build linux

package capture

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// x11WindowProvider resolves windows through the X server. The connection
// is held for the provider's lifetime; window lookups happen on every
// frame in window mode, so no reconnect per call.
type x11WindowProvider struct {
	conn *xgb.Conn
	root xproto.Window
}

// NewWindowProvider connects to the display server for window queries.
func NewWindowProvider() (WindowProvider, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect to X server: %w", err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)
	return &x11WindowProvider{conn: conn, root: screen.Root}, nil
}

func (p *x11WindowProvider) WindowUnderCursor() (Window, error) {
	ptr, err := xproto.QueryPointer(p.conn, p.root).Reply()
	if err != nil {
		return Window{}, fmt.Errorf("query pointer: %w", err)
	}
	if ptr.Child == 0 {
		return Window{}, ErrNoWindow
	}
	w := Window{ID: uintptr(ptr.Child)}
	w.Title = p.title(ptr.Child)
	return w, nil
}

func (p *x11WindowProvider) Rect(w Window) (image.Rectangle, error) {
	win := xproto.Window(w.ID)
	geom, err := xproto.GetGeometry(p.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return image.Rectangle{}, ErrNoWindow
	}
	// Geometry is relative to the parent; translate the origin into root
	// coordinates so the rectangle matches the captured screen image.
	trans, err := xproto.TranslateCoordinates(p.conn, win, p.root, 0, 0).Reply()
	if err != nil {
		return image.Rectangle{}, ErrNoWindow
	}
	x := int(trans.DstX)
	y := int(trans.DstY)
	return image.Rect(x, y, x+int(geom.Width), y+int(geom.Height)), nil
}

func (p *x11WindowProvider) Close() error {
	p.conn.Close()
	return nil
}

func (p *x11WindowProvider) title(win xproto.Window) string {
	prop, err := xproto.GetProperty(p.conn, false, win, xproto.AtomWmName,
		xproto.AtomString, 0, 64).Reply()
	if err != nil || prop == nil {
		return ""
	}
	return string(prop.Value)
}
