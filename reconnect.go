package firewatch

import (
	"time"

	"github.com/benbjohnson/clock"
)

// backoffDelay returns the wait before attempt n (1-based):
// min(base * 2^(n-1), ceiling).
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if ceiling > 0 && delay >= ceiling {
			break
		}
		delay *= 2
	}
	if ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	return delay
}

// reconnector schedules the next connection attempt. There is no attempt
// cap; every close is retryable.
type reconnector struct {
	clock     clock.Clock
	baseDelay time.Duration
	maxDelay  time.Duration
	post      func(loopEvent)

	attempt  int
	seq      uint64
	timer    *clock.Timer
	timerSeq uint64
}

func newReconnector(clk clock.Clock, config *StreamConfig, post func(loopEvent)) *reconnector {
	return &reconnector{
		clock:     clk,
		baseDelay: config.ReconnectBaseDelay,
		maxDelay:  config.ReconnectMaxDelay,
		post:      post,
	}
}

// schedule counts one more attempt and arms the timer for it, cancelling any
// timer already pending.
func (r *reconnector) schedule() (int, time.Duration) {
	r.cancel()
	r.attempt++
	delay := backoffDelay(r.baseDelay, r.maxDelay, r.attempt)

	r.seq++
	seq := r.seq
	r.timerSeq = seq
	r.timer = r.clock.AfterFunc(delay, func() {
		r.post(timerFired{kind: timerReconnect, seq: seq})
	})
	return r.attempt, delay
}

// fired accepts a timer firing. Stale firings report false.
func (r *reconnector) fired(seq uint64) bool {
	if r.timer == nil || seq != r.timerSeq {
		return false
	}
	r.timer = nil
	return true
}

// reset is called on every confirmed open.
func (r *reconnector) reset() {
	r.cancel()
	r.attempt = 0
}

func (r *reconnector) cancel() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *reconnector) pending() bool {
	return r.timer != nil
}
