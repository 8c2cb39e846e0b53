package download

import (
	"fmt"
	"sync/atomic"
	"time"
)

const speedInterval = 500 * time.Millisecond

// speedMeter aggregates bytes delivered across all in-flight image reads
// and reports a human-readable rate every speedInterval, per §4.5.
type speedMeter struct {
	bytes int64
	done  chan struct{}
}

func newSpeedMeter() *speedMeter { return &speedMeter{done: make(chan struct{})} }

func (s *speedMeter) add(n int64) {
	atomic.AddInt64(&s.bytes, n)
}

// run ticks until stop is called, emitting the bytes-per-second rate
// since the last tick via emit. Zero when idle.
func (s *speedMeter) run(emit func(string)) {
	ticker := time.NewTicker(speedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n := atomic.SwapInt64(&s.bytes, 0)
			rate := float64(n) / speedInterval.Seconds()
			emit(formatRate(rate))
		case <-s.done:
			return
		}
	}
}

func (s *speedMeter) stop() {
	close(s.done)
}

// formatRate renders a bytes-per-second rate as B/s, KB/s, or MB/s with
// two decimal places, per §4.5.
func formatRate(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond >= 1024*1024:
		return fmt.Sprintf("%.2f MB/s", bytesPerSecond/(1024*1024))
	case bytesPerSecond >= 1024:
		return fmt.Sprintf("%.2f KB/s", bytesPerSecond/1024)
	default:
		return fmt.Sprintf("%.2f B/s", bytesPerSecond)
	}
}
