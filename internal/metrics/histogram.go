package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	histogramMinUs     = 1
	histogramMaxUs     = 3_600_000_000 // 1 hour, in microseconds
	histogramSigFigs   = 3
)

// LatencyHistogram is a bounded-precision histogram over microsecond
// latencies, safe for concurrent inserts from many workers with percentile
// reads from the aggregator's own goroutine.
type LatencyHistogram struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// NewLatencyHistogram builds a histogram spanning [1µs, 1h] at 3
// significant digits, matching the precision the aggregator's spec demands.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		hist: hdrhistogram.New(histogramMinUs, histogramMaxUs, histogramSigFigs),
	}
}

// Record inserts one latency sample. Values are clamped to the histogram's
// domain rather than rejected, since a single absurdly large outlier should
// not be allowed to distort the pipeline.
func (h *LatencyHistogram) Record(d time.Duration) {
	us := d.Microseconds()
	if us < histogramMinUs {
		us = histogramMinUs
	}
	if us > histogramMaxUs {
		us = histogramMaxUs
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.hist.RecordValue(us)
}

// Stats returns a percentile snapshot. Safe to call concurrently with
// Record; callers receive a consistent read under the lock.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hist.TotalCount() == 0 {
		return LatencyStats{}
	}

	return LatencyStats{
		Min:   h.hist.Min(),
		Max:   h.hist.Max(),
		Mean:  int64(h.hist.Mean()),
		P50:   h.hist.ValueAtQuantile(50),
		P75:   h.hist.ValueAtQuantile(75),
		P90:   h.hist.ValueAtQuantile(90),
		P95:   h.hist.ValueAtQuantile(95),
		P99:   h.hist.ValueAtQuantile(99),
		P999:  h.hist.ValueAtQuantile(99.9),
		Count: h.hist.TotalCount(),
	}
}

// Reset clears all recorded samples, used when warmup ends and measurement
// starts fresh.
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hist.Reset()
}
