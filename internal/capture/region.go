package capture

import "image"

// EvenAligned rounds the rectangle's width and height up to even values.
// H264 chroma subsampling requires even dimensions, so every region handed
// to an encoder must pass through here first.
func EvenAligned(r image.Rectangle) image.Rectangle {
	r = r.Canon()
	if r.Dx()%2 != 0 {
		r.Max.X++
	}
	if r.Dy()%2 != 0 {
		r.Max.Y++
	}
	return r
}

// ClampTo shrinks r so it fits inside bounds while keeping dimensions even.
// A region that ends up empty collapses to a minimal 2x2 rect at the
// bounds origin so downstream crop/encode code never sees a zero area.
func ClampTo(r, bounds image.Rectangle) image.Rectangle {
	r = r.Intersect(bounds)
	if r.Empty() {
		r = image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+2, bounds.Min.Y+2)
	}
	if r.Dx()%2 != 0 {
		r.Max.X--
	}
	if r.Dy()%2 != 0 {
		r.Max.Y--
	}
	if r.Dx() < 2 {
		r.Max.X = r.Min.X + 2
	}
	if r.Dy() < 2 {
		r.Max.Y = r.Min.Y + 2
	}
	return r
}
