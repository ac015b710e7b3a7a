package record

import (
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Click is a recent mouse click for the click-ripple overlay.
type Click struct {
	Pos image.Point
	Age time.Duration
}

// InputState is a snapshot of pointer and keyboard activity.
type InputState struct {
	Cursor image.Point
	Clicks []Click
	Keys   string
}

// InputTracker supplies input state for frame overlays. Implementations
// live at the platform boundary; Snapshot must be cheap and non-blocking.
type InputTracker interface {
	Snapshot() InputState
}

const clickRippleLife = 500 * time.Millisecond

var (
	cursorColor  = color.RGBA{R: 0xff, G: 0xd5, B: 0x00, A: 0xff}
	clickColor   = color.RGBA{R: 0xff, G: 0x40, B: 0x40, A: 0xff}
	keyBarColor  = color.RGBA{A: 0xa0}
	keyTextColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// drawCursor paints a filled disc at the pointer position.
func drawCursor(dst *image.RGBA, p image.Point) {
	fillCircle(dst, p, 6, cursorColor)
}

// drawClick paints an expanding ring that fades out over the ripple
// lifetime.
func drawClick(dst *image.RGBA, p image.Point, age time.Duration) {
	if age < 0 || age >= clickRippleLife {
		return
	}
	t := float64(age) / float64(clickRippleLife)
	radius := 8 + int(t*20)
	c := clickColor
	c.A = uint8(255 * (1 - t))
	drawRing(dst, p, radius, c)
}

// drawKeys renders recent keystrokes in a bar along the bottom edge.
func drawKeys(dst *image.RGBA, text string) {
	b := dst.Bounds()
	barH := 24
	bar := image.Rect(b.Min.X, b.Max.Y-barH, b.Max.X, b.Max.Y)
	draw.Draw(dst, bar, &image.Uniform{C: keyBarColor}, image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{C: keyTextColor},
		Face: basicfont.Face7x13,
		Dot: fixed.P(b.Min.X+8, b.Max.Y-8),
	}
	d.DrawString(text)
}

func fillCircle(dst *image.RGBA, c image.Point, r int, col color.RGBA) {
	b := dst.Bounds()
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			p := image.Pt(c.X+dx, c.Y+dy)
			if p.In(b) {
				dst.SetRGBA(p.X, p.Y, col)
			}
		}
	}
}

func drawRing(dst *image.RGBA, c image.Point, r int, col color.RGBA) {
	b := dst.Bounds()
	inner := (r - 2) * (r - 2)
	outer := r * r
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			d2 := dx*dx + dy*dy
			if d2 > outer || d2 < inner {
				continue
			}
			p := image.Pt(c.X+dx, c.Y+dy)
			if p.In(b) {
				blendOver(dst, p, col)
			}
		}
	}
}

// blendOver alpha-blends col onto the pixel at p.
func blendOver(dst *image.RGBA, p image.Point, col color.RGBA) {
	a := uint32(col.A)
	o := dst.PixOffset(p.X, p.Y)
	px := dst.Pix[o : o+4 : o+4]
	px[0] = uint8((uint32(col.R)*a + uint32(px[0])*(255-a)) / 255)
	px[1] = uint8((uint32(col.G)*a + uint32(px[1])*(255-a)) / 255)
	px[2] = uint8((uint32(col.B)*a + uint32(px[2])*(255-a)) / 255)
}
