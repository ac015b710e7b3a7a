package record

import (
	"path/filepath"
	"strings"
	"time"
)

// outputTimeLayout renders e.g. "2026-08-31-14h07m09s".
const outputTimeLayout = "2006-01-02-15h04m05s"

// outputName builds the output file path for a recording: the mode prefix,
// a local timestamp, and the container extension.
func outputName(dir string, mode Mode, t time.Time, container string) string {
	ext := strings.ToLower(strings.TrimPrefix(container, "."))
	name := mode.prefix() + t.Format(outputTimeLayout) + "." + ext
	return filepath.Join(dir, name)
}
