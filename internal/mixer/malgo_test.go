package mixer

import (
	"testing"

	"github.com/gen2brain/malgo"
)

func TestNativeChannels(t *testing.T) {
	var info malgo.DeviceInfo
	if got := nativeChannels(info); got != 1 {
		t.Fatalf("no reported formats: channels = %d, want 1", got)
	}

	info.FormatCount = 2
	info.Formats = []malgo.DataFormat{{Channels: 1}, {Channels: 2}}
	if got := nativeChannels(info); got != 2 {
		t.Fatalf("stereo-capable device: channels = %d, want 2", got)
	}

	info.FormatCount = 1
	info.Formats[0] = malgo.DataFormat{Channels: 1}
	if got := nativeChannels(info); got != 1 {
		t.Fatalf("mono device: channels = %d, want 1", got)
	}

	// Multichannel interfaces are clamped to stereo.
	info.Formats[0] = malgo.DataFormat{Channels: 8}
	if got := nativeChannels(info); got != 2 {
		t.Fatalf("8ch device: channels = %d, want 2", got)
	}
}
