package record

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/lanternops/recap/internal/capture"
)

func TestEncodeLagsOneFrame(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.session.StartPlaying(); err != nil {
		t.Fatalf("StartPlaying: %v", err)
	}
	if err := h.session.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	// Paint each frame with a distinct red value so the write order is
	// observable. The frame written at step n must be the one captured
	// at step n-1.
	var painted []uint8
	for i := 0; i < 4; i++ {
		img := image.NewRGBA(h.cap.bounds)
		shade := uint8(10 * (i + 1))
		img.SetRGBA(0, 0, color.RGBA{R: shade, A: 0xff})
		painted = append(painted, shade)
		h.session.handleFrame(img, h.now)
		h.now = h.now.Add(33 * time.Millisecond)
	}
	h.session.StopRecording()

	// Step 0 has no previous frame, step 1 is the timestamp origin, so
	// steps 2 and 3 write the frames painted at steps 1 and 2.
	snap := h.sink.snapshot()
	if len(snap.writes) != 2 {
		t.Fatalf("frames written = %d, want 2", len(snap.writes))
	}
	if snap.writes[0].red != painted[1] || snap.writes[1].red != painted[2] {
		t.Fatalf("wrote shades %d,%d, want %d,%d (previous frame each step)",
			snap.writes[0].red, snap.writes[1].red, painted[1], painted[2])
	}
}

func TestStaleTimestampSkipped(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.session.StartPlaying(); err != nil {
		t.Fatalf("StartPlaying: %v", err)
	}
	if err := h.session.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	base := h.now
	h.session.handleFrame(image.NewRGBA(h.cap.bounds), base)               // origin
	h.session.handleFrame(image.NewRGBA(h.cap.bounds), base.Add(33*time.Millisecond))
	h.session.handleFrame(image.NewRGBA(h.cap.bounds), base)               // clock went backwards
	h.session.handleFrame(image.NewRGBA(h.cap.bounds), base.Add(66*time.Millisecond))
	h.session.StopRecording()

	snap := h.sink.snapshot()
	if len(snap.writes) != 2 {
		t.Fatalf("frames written = %d, want 2 (stale frame must be dropped)", len(snap.writes))
	}
	if snap.writes[0].ts != 33*time.Millisecond || snap.writes[1].ts != 66*time.Millisecond {
		t.Fatalf("timestamps = %v, %v", snap.writes[0].ts, snap.writes[1].ts)
	}
}

func TestCropInto(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 0xff})
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	cropInto(dst, src, image.Rect(2, 2, 6, 6))
	got := dst.RGBAAt(0, 0)
	if got.R != 2 || got.G != 2 {
		t.Fatalf("pixel (0,0) = %v, want source (2,2)", got)
	}
	got = dst.RGBAAt(3, 3)
	if got.R != 5 || got.G != 5 {
		t.Fatalf("pixel (3,3) = %v, want source (5,5)", got)
	}
}

func TestCropIntoOffscreenFillsBlack(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.SetRGBA(x, y, color.RGBA{R: 0xff, A: 0xff})
		}
	}

	// Region hangs two pixels past the right edge of the source.
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	cropInto(dst, src, image.Rect(2, 0, 6, 4))

	if got := dst.RGBAAt(0, 0); got.R != 0xff {
		t.Fatalf("in-bounds pixel = %v, want red", got)
	}
	if got := dst.RGBAAt(3, 0); got.R != 0 || got.A != 0xff {
		t.Fatalf("off-screen pixel = %v, want opaque black", got)
	}
}

func TestFrameBufferSwap(t *testing.T) {
	var b frameBuffer
	if _, _, ok := b.frame(); ok {
		t.Fatal("empty buffer reported a frame")
	}

	first := b.prepare(4, 4)
	b.commit(image.Rect(0, 0, 4, 4))
	got, region, ok := b.frame()
	if !ok || got != first {
		t.Fatal("committed frame not returned")
	}
	if region != image.Rect(0, 0, 4, 4) {
		t.Fatalf("region = %v", region)
	}

	second := b.prepare(4, 4)
	if second == first {
		t.Fatal("prepare returned the committed frame")
	}
	b.commit(image.Rect(0, 0, 4, 4))

	// Same dimensions reuse the swapped-out storage.
	third := b.prepare(4, 4)
	if third != first {
		t.Fatal("storage not reused after swap")
	}

	// A size change allocates fresh storage.
	resized := b.prepare(8, 8)
	if resized == first || resized == second {
		t.Fatal("resize did not allocate a new buffer")
	}
}

func TestWindowResizeKeepsRegionEven(t *testing.T) {
	windows := &fakeWindows{
		win:  capture.Window{ID: 5, Title: "editor"},
		rect: image.Rect(100, 100, 300, 260),
	}
	h := newHarness(t, func(o *Options) {
		o.Windows = windows
	})
	h.session.SetPreviewTap(func(img *image.RGBA, region image.Rectangle) {
		if region.Dx()%2 != 0 || region.Dy()%2 != 0 {
			t.Errorf("preview region %v has odd dimensions", region)
		}
	})
	h.session.SetMode(ModeWindow)
	if err := h.session.StartPlaying(); err != nil {
		t.Fatalf("StartPlaying: %v", err)
	}
	if err := h.session.SelectWindowUnderCursor(); err != nil {
		t.Fatalf("SelectWindowUnderCursor: %v", err)
	}
	h.feed(1)

	// Window resized to odd dimensions.
	windows.setRect(image.Rect(40, 40, 141, 115))
	h.feed(1)

	got := h.session.Region()
	if got != image.Rect(40, 40, 142, 116) {
		t.Fatalf("region = %v, want even-aligned 102x76 at (40,40)", got)
	}
}

func TestWindowVanishFallsBackToScreen(t *testing.T) {
	windows := &fakeWindows{
		win:  capture.Window{ID: 5, Title: "editor"},
		rect: image.Rect(100, 100, 300, 260),
	}
	h := newHarness(t, func(o *Options) {
		o.Windows = windows
	})
	h.session.SetMode(ModeWindow)
	if err := h.session.StartPlaying(); err != nil {
		t.Fatalf("StartPlaying: %v", err)
	}
	if err := h.session.SelectWindowUnderCursor(); err != nil {
		t.Fatalf("SelectWindowUnderCursor: %v", err)
	}
	h.feed(1)

	windows.failRect(errors.New("window destroyed"))
	h.feed(1)

	if got := h.session.Region(); got != image.Rect(0, 0, 640, 480) {
		t.Fatalf("region = %v, want full screen bounds", got)
	}
}

func TestWindowResizeMidRecordingKeepsStreamSize(t *testing.T) {
	windows := &fakeWindows{
		win:  capture.Window{ID: 5, Title: "editor"},
		rect: image.Rect(0, 0, 200, 160),
	}
	h := newHarness(t, func(o *Options) {
		o.Windows = windows
	})
	h.session.SetMode(ModeWindow)
	if err := h.session.StartPlaying(); err != nil {
		t.Fatalf("StartPlaying: %v", err)
	}
	if err := h.session.SelectWindowUnderCursor(); err != nil {
		t.Fatalf("SelectWindowUnderCursor: %v", err)
	}
	h.feed(1)
	if err := h.session.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	h.feed(2)
	// Grown to odd dimensions mid-recording.
	windows.setRect(image.Rect(20, 20, 321, 261))
	h.feed(2)
	// Window gone entirely.
	windows.failRect(errors.New("window destroyed"))
	h.feed(2)
	h.session.StopRecording()

	snap := h.sink.snapshot()
	if snap.video.Width != 200 || snap.video.Height != 160 {
		t.Fatalf("stream opened at %dx%d, want 200x160", snap.video.Width, snap.video.Height)
	}
	// First post-start frame only sets the timestamp origin.
	if len(snap.writes) != 5 {
		t.Fatalf("frames written = %d, want 5", len(snap.writes))
	}
	for i, w := range snap.writes {
		if w.region.Dx() != 200 || w.region.Dy() != 160 {
			t.Fatalf("write %d region %v does not match the opened stream size", i, w.region)
		}
	}
}

func TestPreviewTapSeesCommittedFrame(t *testing.T) {
	var taps int
	var lastRegion image.Rectangle
	h := newHarness(t, nil)
	h.session.SetPreviewTap(func(img *image.RGBA, region image.Rectangle) {
		taps++
		lastRegion = region
		if img == nil {
			t.Fatal("nil preview frame")
		}
	})
	if err := h.session.StartPlaying(); err != nil {
		t.Fatalf("StartPlaying: %v", err)
	}
	h.feed(3)

	if taps != 3 {
		t.Fatalf("preview taps = %d, want 3", taps)
	}
	if lastRegion.Dx()%2 != 0 || lastRegion.Dy()%2 != 0 {
		t.Fatalf("preview region %v has odd dimensions", lastRegion)
	}
}
