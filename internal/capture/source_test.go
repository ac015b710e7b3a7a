package capture

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"
)

// fakeCapturer returns a fixed image, or errors after failAfter captures.
type fakeCapturer struct {
	mu        sync.Mutex
	captures  int
	failAfter int // 0 = never fail
}

func (f *fakeCapturer) Capture() (*image.RGBA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	if f.failAfter > 0 && f.captures > f.failAfter {
		return nil, errors.New("device lost")
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (f *fakeCapturer) Bounds() (image.Rectangle, error) {
	return image.Rect(0, 0, 4, 4), nil
}

func (f *fakeCapturer) Close() error { return nil }

func TestSourceDeliversFramesAndStops(t *testing.T) {
	var mu sync.Mutex
	frames := 0

	src := NewSource(&fakeCapturer{}, SourceConfig{
		FrameRate: 60,
		OnFrame: func(img *image.RGBA, ts time.Time) {
			if img == nil {
				t.Error("nil frame delivered")
			}
			if ts.IsZero() {
				t.Error("zero timestamp delivered")
			}
			mu.Lock()
			frames++
			mu.Unlock()
		},
	})

	src.Start()
	time.Sleep(200 * time.Millisecond)
	src.Stop()

	mu.Lock()
	n := frames
	mu.Unlock()
	if n == 0 {
		t.Fatal("expected at least one frame")
	}

	// No more frames after Stop returns.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	after := frames
	mu.Unlock()
	if after != n {
		t.Fatalf("frames delivered after Stop: %d -> %d", n, after)
	}
}

func TestSourceStopIdempotent(t *testing.T) {
	src := NewSource(&fakeCapturer{}, SourceConfig{FrameRate: 60})
	src.Start()
	src.Stop()
	src.Stop() // must not panic or block
}

func TestSourceStopWithoutStart(t *testing.T) {
	src := NewSource(&fakeCapturer{}, SourceConfig{FrameRate: 30})
	src.Stop() // must be a no-op
}

func TestSourceReportsDeviceErrorOnce(t *testing.T) {
	errCh := make(chan error, 4)

	src := NewSource(&fakeCapturer{failAfter: 1}, SourceConfig{
		FrameRate: 60,
		OnFrame:   func(*image.RGBA, time.Time) {},
		OnError:   func(err error) { errCh <- err },
	})

	src.Start()
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("nil error reported")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for device error")
	}

	// The loop must have stopped itself; no second report expected.
	select {
	case <-errCh:
		t.Fatal("device error reported more than once")
	case <-time.After(150 * time.Millisecond):
	}
	src.Stop()
}
