package config

import (
	"fmt"
	"strings"
)

var knownContainers = map[string]bool{
	"mp4":  true,
	"mkv":  true,
	"webm": true,
	"avi":  true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors found.
// Dangerous zero-values that would break the capture loop are clamped to safe
// defaults. Other validation errors are reported but do not prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	// Clamp the frame rate to a sane range: interval = round(1000/fps) ms,
	// so fps must never be zero.
	if c.FrameRate < 1 {
		errs = append(errs, fmt.Errorf("frame_rate %d is below minimum 1, clamping", c.FrameRate))
		c.FrameRate = 1
	} else if c.FrameRate > 60 {
		errs = append(errs, fmt.Errorf("frame_rate %d exceeds maximum 60, clamping", c.FrameRate))
		c.FrameRate = 60
	}

	if c.VideoBitrate <= 0 {
		errs = append(errs, fmt.Errorf("video_bitrate %d is not positive, clamping", c.VideoBitrate))
		c.VideoBitrate = 2_500_000
	}

	if c.AudioBitrate <= 0 {
		errs = append(errs, fmt.Errorf("audio_bitrate %d is not positive, clamping", c.AudioBitrate))
		c.AudioBitrate = 128_000
	}

	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate %d is not positive, clamping", c.SampleRate))
		c.SampleRate = 44100
	}

	container := strings.ToLower(strings.TrimSpace(c.Container))
	if !knownContainers[container] {
		errs = append(errs, fmt.Errorf("container %q is not supported, falling back to mp4", c.Container))
		container = "mp4"
	}
	c.Container = container

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid, falling back to info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.OutputDir == "" {
		errs = append(errs, fmt.Errorf("output_dir is empty, falling back to current directory"))
		c.OutputDir = "."
	}

	return errs
}
