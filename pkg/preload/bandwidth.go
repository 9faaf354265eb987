package preload

import (
	"sync"
	"time"
)

// BandwidthSource estimates available download bandwidth for quality
// selection. Observe is fed by completed prefetches.
type BandwidthSource interface {
	Observe(bytes int64, elapsed time.Duration)
	EstimateKbps() float64
}

// EWMA is an exponentially-weighted moving average over observed download
// throughput. A zero estimate means no sample has been taken yet.
type EWMA struct {
	mu    sync.Mutex
	alpha float64
	kbps  float64
}

func NewEWMA(alpha float64) *EWMA {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &EWMA{alpha: alpha}
}

func (e *EWMA) Observe(bytes int64, elapsed time.Duration) {
	if bytes <= 0 || elapsed <= 0 {
		return
	}
	sample := float64(bytes) * 8 / elapsed.Seconds() / 1000

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.kbps == 0 {
		e.kbps = sample
		return
	}
	e.kbps = e.alpha*sample + (1-e.alpha)*e.kbps
}

func (e *EWMA) EstimateKbps() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kbps
}
