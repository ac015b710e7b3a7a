package record

import "image"

// frameBuffer double-buffers prepared frames so the encode branch can read
// the previous frame while the prepare branch fills the next one. The
// pipeline guarantees the two branches never touch the same slot: encode
// reads cur, prepare writes spare, and commit swaps them only after both
// branches have joined. No locking is needed under that discipline.
type frameBuffer struct {
	cur      *image.RGBA
	spare    *image.RGBA
	region   image.Rectangle
	hasFrame bool
}

// frame returns the last committed frame and its region, or ok=false before
// the first commit.
func (b *frameBuffer) frame() (img *image.RGBA, region image.Rectangle, ok bool) {
	if !b.hasFrame {
		return nil, image.Rectangle{}, false
	}
	return b.cur, b.region, true
}

// prepare returns a destination buffer of the given size, reusing the spare
// slot's storage when the dimensions match.
func (b *frameBuffer) prepare(w, h int) *image.RGBA {
	if b.spare == nil || b.spare.Rect.Dx() != w || b.spare.Rect.Dy() != h {
		b.spare = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	return b.spare
}

// commit publishes the prepared spare as the current frame.
func (b *frameBuffer) commit(region image.Rectangle) {
	b.cur, b.spare = b.spare, b.cur
	b.region = region
	b.hasFrame = true
}
