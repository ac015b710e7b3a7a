// Package sink defines the encoder/muxer boundary a recording session writes to.
package sink

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// Rational is an exact frame rate (e.g. 30000/1001 for NTSC).
type Rational struct {
	Num int
	Den int
}

func (r Rational) String() string {
	den := r.Den
	if den == 0 {
		den = 1
	}
	return fmt.Sprintf("%d/%d", r.Num, den)
}

// VideoParams configures the video stream of a recording.
type VideoParams struct {
	// Width and Height must be even; the encoder rejects odd dimensions.
	Width  int
	Height int

	FrameRate Rational
	Codec     string
	Bitrate   int

	// Options carries encoder-specific key/value tuning (quality preset,
	// tuning profile, threading flags).
	Options map[string]string
}

// AudioParams configures the audio stream of a recording. A zero Channels
// value means the recording has no audio stream.
type AudioParams struct {
	Codec      string
	Bitrate    int
	SampleRate int
	Channels   int
}

var (
	ErrNotOpen       = errors.New("sink is not open")
	ErrAlreadyOpen   = errors.New("sink is already open")
	ErrOddDimensions = errors.New("video dimensions must be even")
)

// EncodeSink consumes finished video and audio frames and muxes them into an
// output file. Implementations are not required to be internally thread-safe;
// the recording session's lock is the sole synchronization guarantee. Close
// must tolerate being called without a successful Open having produced data.
type EncodeSink interface {
	Open(path string, video VideoParams, audio AudioParams) error

	// WriteVideoFrame writes one frame. ts is the presentation time relative
	// to the recording start; region is the crop the frame was taken from.
	WriteVideoFrame(img *image.RGBA, ts time.Duration, region image.Rectangle) error

	// WriteAudioFrame writes interleaved signed 16-bit samples.
	WriteAudioFrame(samples []int16) error

	Close() error
}
