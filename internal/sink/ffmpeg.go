package sink

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"time"

	"github.com/lanternops/recap/internal/logging"
)

var log = logging.L("sink")

// FFmpegSink muxes raw frames through an ffmpeg subprocess. Video arrives as
// raw RGBA on stdin, audio as interleaved s16le PCM on fd 3, and ffmpeg does
// the encode and container muxing.
type FFmpegSink struct {
	// Binary overrides the ffmpeg executable path ("ffmpeg" when empty).
	Binary string

	cmd          *exec.Cmd
	videoPipe    *bufio.Writer
	videoWC      io.WriteCloser
	audioPipe    *bufio.Writer
	audioFile    *os.File
	video        VideoParams
	path         string
	open         bool
	closed       bool
	audioScratch []byte
}

// NewFFmpegSink creates an unopened ffmpeg-backed sink.
func NewFFmpegSink() *FFmpegSink {
	return &FFmpegSink{}
}

func (f *FFmpegSink) Open(path string, video VideoParams, audio AudioParams) error {
	if f.open {
		return ErrAlreadyOpen
	}
	if video.Width%2 != 0 || video.Height%2 != 0 {
		return fmt.Errorf("%w: %dx%d", ErrOddDimensions, video.Width, video.Height)
	}

	args := buildFFmpegArgs(path, video, audio)

	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.Command(bin, args...)
	cmd.Stderr = nil // ffmpeg chatter is dropped; exit status is what matters

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}

	var audioW *os.File
	if audio.Channels > 0 {
		audioR, w, err := os.Pipe()
		if err != nil {
			stdin.Close()
			return fmt.Errorf("audio pipe: %w", err)
		}
		audioW = w
		// Becomes fd 3 in the child, matched by -i pipe:3.
		cmd.ExtraFiles = []*os.File{audioR}
		defer audioR.Close()
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		if audioW != nil {
			audioW.Close()
		}
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	f.cmd = cmd
	f.path = path
	f.video = video
	f.videoPipe = bufio.NewWriterSize(stdin, 1<<20)
	f.videoWC = stdin
	if audioW != nil {
		f.audioPipe = bufio.NewWriterSize(audioW, 64*1024)
		f.audioFile = audioW
	}
	f.open = true
	f.closed = false

	log.Info("recording output opened",
		"path", path,
		"size", fmt.Sprintf("%dx%d", video.Width, video.Height),
		"frameRate", video.FrameRate.String(),
		"videoCodec", video.Codec,
		"audioChannels", audio.Channels,
	)
	return nil
}

func (f *FFmpegSink) WriteVideoFrame(img *image.RGBA, ts time.Duration, region image.Rectangle) error {
	if !f.open {
		return ErrNotOpen
	}
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if w != f.video.Width || h != f.video.Height {
		return fmt.Errorf("frame size %dx%d does not match stream %dx%d",
			w, h, f.video.Width, f.video.Height)
	}

	rowBytes := w * 4
	if img.Stride == rowBytes {
		_, err := f.videoPipe.Write(img.Pix)
		return err
	}
	// Strided image: write row by row.
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+rowBytes]
		if _, err := f.videoPipe.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (f *FFmpegSink) WriteAudioFrame(samples []int16) error {
	if !f.open {
		return ErrNotOpen
	}
	if f.audioPipe == nil {
		return nil // recording has no audio stream
	}
	need := len(samples) * 2
	if cap(f.audioScratch) < need {
		f.audioScratch = make([]byte, need)
	}
	buf := f.audioScratch[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	_, err := f.audioPipe.Write(buf)
	return err
}

// Close flushes both streams, closes the pipes, and waits for ffmpeg to
// finalize the container. Safe to call repeatedly and before Open.
func (f *FFmpegSink) Close() error {
	if f.closed || !f.open {
		f.closed = true
		return nil
	}
	f.open = false
	f.closed = true

	var firstErr error
	if f.videoPipe != nil {
		if err := f.videoPipe.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if f.videoWC != nil {
		f.videoWC.Close()
	}
	if f.audioPipe != nil {
		if err := f.audioPipe.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if f.audioFile != nil {
		f.audioFile.Close()
	}

	if f.cmd != nil {
		if err := f.cmd.Wait(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("ffmpeg exit: %w", err)
		}
	}

	log.Info("recording output closed", "path", f.path)
	return firstErr
}

// buildFFmpegArgs maps sink parameters onto an ffmpeg invocation. Kept as a
// pure function so the mapping is testable without spawning a process.
func buildFFmpegArgs(path string, video VideoParams, audio AudioParams) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", video.Width, video.Height),
		"-framerate", video.FrameRate.String(),
		"-i", "pipe:0",
	}

	if audio.Channels > 0 {
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(audio.SampleRate),
			"-ac", strconv.Itoa(audio.Channels),
			"-i", "pipe:3",
		)
	}

	args = append(args, "-c:v", video.Codec)
	if video.Bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(video.Bitrate))
	}

	// Encoder-specific tuning, emitted in sorted order for deterministic
	// command lines.
	keys := make([]string, 0, len(video.Options))
	for k := range video.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-"+k, video.Options[k])
	}

	args = append(args, "-pix_fmt", "yuv420p")

	if audio.Channels > 0 {
		args = append(args, "-c:a", audio.Codec)
		if audio.Bitrate > 0 {
			args = append(args, "-b:a", strconv.Itoa(audio.Bitrate))
		}
	}

	args = append(args, "-y", path)
	return args
}
