package mixer

import "sync"

// inbox is a bounded sample buffer between a device callback thread and the
// mix loop. When full, the oldest samples are dropped; recording keeps going
// with a small audible glitch instead of unbounded memory growth.
type inbox struct {
	mu  sync.Mutex
	buf []int16
	max int
}

func newInbox(max int) *inbox {
	if max < 1 {
		max = 1
	}
	return &inbox{max: max}
}

func (ib *inbox) push(samples []int16) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	ib.buf = append(ib.buf, samples...)
	if over := len(ib.buf) - ib.max; over > 0 {
		ib.buf = ib.buf[over:]
	}
}

// pull fills dst with buffered samples, zero-padding any shortfall.
func (ib *inbox) pull(dst []int16) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	n := copy(dst, ib.buf)
	ib.buf = ib.buf[n:]
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
