package extraction

import (
	"sync"
	"time"
)

// Estimator produces the cosmetic progress figure shown while the service
// call is in flight. It is monotonically non-decreasing, capped below 100
// until Done, and carries no correctness contract.
type Estimator struct {
	mu      sync.Mutex
	value   int
	stopped bool
	ticker  *time.Ticker
	done    chan struct{}
}

const (
	progressInterval = 400 * time.Millisecond
	progressStep     = 7
	progressCap      = 95
)

// NewEstimator starts ticking immediately.
func NewEstimator() *Estimator {
	e := &Estimator{
		ticker: time.NewTicker(progressInterval),
		done:   make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *Estimator) loop() {
	for {
		select {
		case <-e.done:
			return
		case <-e.ticker.C:
			e.mu.Lock()
			if !e.stopped && e.value < progressCap {
				e.value += progressStep
				if e.value > progressCap {
					e.value = progressCap
				}
			}
			e.mu.Unlock()
		}
	}
}

// Value returns the current estimate in [0, 100].
func (e *Estimator) Value() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Done snaps the estimate to 100 when the real response arrives and stops
// the ticker.
func (e *Estimator) Done() {
	e.mu.Lock()
	if !e.stopped {
		e.value = 100
	}
	e.stop()
	e.mu.Unlock()
}

// Stop cancels the ticker without completing, for teardown and abandoned
// workflows. A result arriving after Stop must not move the value; both
// Stop and Done are idempotent.
func (e *Estimator) Stop() {
	e.mu.Lock()
	e.stop()
	e.mu.Unlock()
}

// stop must be called with mu held.
func (e *Estimator) stop() {
	if e.stopped {
		return
	}
	e.stopped = true
	e.ticker.Stop()
	close(e.done)
}
