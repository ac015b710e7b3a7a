package record

import (
	"image"
	"image/draw"
	"sync"
	"time"
)

// handleFrame is the frame source callback. It runs the two pipeline
// branches concurrently: encoding the previously prepared frame and
// preparing the freshly captured one. Both join before the callback
// returns, so at most one frame is ever in flight per branch and the
// capture loop provides the pacing.
func (s *Session) handleFrame(img *image.RGBA, ts time.Time) {
	s.metrics.RecordCapture()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.encodePrevious(ts)
	}()

	region := s.prepareFrame(img)
	wg.Wait()

	s.buffer.commit(region)
	if s.onPrepared != nil {
		s.onPrepared(s.buffer.cur, region)
	}
}

// encodePrevious writes the last committed frame to the sink. The first
// frame after StartRecording only establishes the timestamp origin and is
// skipped; frames with a non-positive or backwards timestamp are skipped
// as well so the sink only ever sees a strictly increasing series.
func (s *Session) encodePrevious(ts time.Time) {
	prev, region, ok := s.buffer.frame()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording || s.snk == nil {
		return
	}
	if s.recStart.IsZero() {
		s.recStart = ts
		s.metrics.RecordSkip()
		return
	}
	d := ts.Sub(s.recStart)
	if d <= 0 || d < s.lastTS {
		s.metrics.RecordSkip()
		return
	}
	s.lastTS = d

	if region.Dx() != s.region.Dx() || region.Dy() != s.region.Dy() {
		// A window resize landed mid-recording; the sink's dimensions are
		// fixed, so drop the frame rather than corrupt the stream.
		s.metrics.RecordSkip()
		return
	}
	if err := s.snk.WriteVideoFrame(prev, d, region); err != nil {
		s.log.Warn("video write", "error", err)
		s.metrics.RecordSkip()
		return
	}
	s.metrics.RecordWrite()
}

// prepareFrame crops the captured frame to the current capture region and
// applies the input overlays. The returned region is what the crop covers.
func (s *Session) prepareFrame(src *image.RGBA) image.Rectangle {
	s.mu.Lock()
	region := s.computeRegionLocked()
	if s.state == StateRecording {
		// The output size is frozen at StartRecording. A tracked window
		// may move, so keep following its origin but pin the extent.
		region.Max.X = region.Min.X + s.region.Dx()
		region.Max.Y = region.Min.Y + s.region.Dy()
	} else {
		s.region = region
	}
	tracker := s.opts.Input
	cfg := s.cfg
	s.mu.Unlock()

	dst := s.buffer.prepare(region.Dx(), region.Dy())
	cropInto(dst, src, region)

	if tracker != nil {
		st := tracker.Snapshot()
		if cfg.DrawCursor {
			drawCursor(dst, st.Cursor.Sub(region.Min))
		}
		if cfg.DrawClicks {
			for _, c := range st.Clicks {
				drawClick(dst, c.Pos.Sub(region.Min), c.Age)
			}
		}
		if cfg.DrawKeys && len(st.Keys) > 0 {
			drawKeys(dst, st.Keys)
		}
	}
	return region
}

// cropInto copies the region rectangle of src into dst's origin. Rows
// outside src are filled black so a window hanging off-screen still
// produces a full frame.
func cropInto(dst, src *image.RGBA, region image.Rectangle) {
	avail := region.Intersect(src.Rect)
	if avail != region {
		draw.Draw(dst, dst.Rect, image.Black, image.Point{}, draw.Src)
	}
	if avail.Empty() {
		return
	}

	rowBytes := avail.Dx() * 4
	for y := avail.Min.Y; y < avail.Max.Y; y++ {
		so := src.PixOffset(avail.Min.X, y)
		do := dst.PixOffset(avail.Min.X-region.Min.X, y-region.Min.Y)
		copy(dst.Pix[do:do+rowBytes], src.Pix[so:so+rowBytes])
	}
}
