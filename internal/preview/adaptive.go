package preview

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// adaptiveQuality adjusts JPEG quality based on encode timing and overall
// CPU pressure, so the preview never competes with the encoder for cycles.
type adaptiveQuality struct {
	mu sync.Mutex

	baseQuality int
	quality     int
	minQuality  int
	maxQuality  int

	recentEncodeTimes []time.Duration
	recentFrameSizes  []int
	windowSize        int

	lastAdjust time.Time
	cooldown   time.Duration

	// cpuPercent overrides the gopsutil probe (tests).
	cpuPercent func() float64
}

func newAdaptiveQuality(baseQuality int) *adaptiveQuality {
	maxQ := baseQuality + 15
	if maxQ > 95 {
		maxQ = 95
	}
	return &adaptiveQuality{
		baseQuality: baseQuality,
		quality:     baseQuality,
		minQuality:  20,
		maxQuality:  maxQ,
		windowSize:  30,
		cooldown:    500 * time.Millisecond,
		cpuPercent:  systemCPUPercent,
	}
}

// systemCPUPercent samples the instantaneous system-wide CPU usage.
func systemCPUPercent() float64 {
	pct, err := cpu.Percent(0, false)
	if err != nil || len(pct) == 0 {
		return 0
	}
	return pct[0]
}

// RecordFrame records metrics for an encoded frame.
func (a *adaptiveQuality) RecordFrame(encodeTime time.Duration, frameSize int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.recentEncodeTimes = append(a.recentEncodeTimes, encodeTime)
	a.recentFrameSizes = append(a.recentFrameSizes, frameSize)
	if len(a.recentEncodeTimes) > a.windowSize {
		a.recentEncodeTimes = a.recentEncodeTimes[1:]
		a.recentFrameSizes = a.recentFrameSizes[1:]
	}
}

// Quality returns the current effective JPEG quality.
func (a *adaptiveQuality) Quality() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quality
}

// Adjust recalculates quality based on recent metrics.
func (a *adaptiveQuality) Adjust() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if now.Sub(a.lastAdjust) < a.cooldown {
		return
	}
	if len(a.recentEncodeTimes) < 5 {
		return
	}

	var totalTime time.Duration
	var totalSize int
	for i, t := range a.recentEncodeTimes {
		totalTime += t
		totalSize += a.recentFrameSizes[i]
	}
	n := len(a.recentEncodeTimes)
	avgEncodeMs := float64(totalTime.Milliseconds()) / float64(n)
	avgSize := totalSize / n
	cpuPct := a.cpuPercent()

	newQuality := a.quality
	if avgEncodeMs > 30 || cpuPct > 85 || avgSize > 80*1024 {
		newQuality -= 5
	} else if avgEncodeMs < 15 && cpuPct < 60 && avgSize < 40*1024 {
		newQuality += 3
	}

	if newQuality < a.minQuality {
		newQuality = a.minQuality
	}
	if newQuality > a.maxQuality {
		newQuality = a.maxQuality
	}

	if newQuality != a.quality {
		a.quality = newQuality
		a.lastAdjust = now
	}
}
