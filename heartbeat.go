package firewatch

import (
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
)

// heartbeat detects connections that died without a close. It only exists
// while a session is Open and is driven entirely from the stream loop.
//
// Every armed timer carries a sequence number. A timer that fires after it
// was replaced or stopped posts a stale number and is ignored.
type heartbeat struct {
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	post     func(loopEvent)

	seq            uint64
	ticker         *clock.Timer
	tickerSeq      uint64
	deadline       *clock.Timer
	deadlineSeq    uint64
	lastPingSentAt time.Time
}

func newHeartbeat(clk clock.Clock, interval, timeout time.Duration, post func(loopEvent)) *heartbeat {
	return &heartbeat{
		clock:    clk,
		interval: interval,
		timeout:  timeout,
		post:     post,
	}
}

func (h *heartbeat) running() bool {
	return h.ticker != nil
}

func (h *heartbeat) start() {
	h.stop()
	h.armTicker()
}

// stop clears both timers. Safe to call when already stopped.
func (h *heartbeat) stop() {
	if h.ticker != nil {
		h.ticker.Stop()
		h.ticker = nil
	}
	h.clearDeadline()
	h.lastPingSentAt = time.Time{}
}

func (h *heartbeat) armTicker() {
	h.seq++
	seq := h.seq
	h.tickerSeq = seq
	h.ticker = h.clock.AfterFunc(h.interval, func() {
		h.post(timerFired{kind: timerPing, seq: seq})
	})
}

// tick accepts a ping timer firing and re-arms the interval. It reports
// whether a ping is due.
func (h *heartbeat) tick(seq uint64) bool {
	if h.ticker == nil || seq != h.tickerSeq {
		return false
	}
	h.armTicker()
	return true
}

// pinged arms the pong deadline, replacing any deadline still outstanding.
func (h *heartbeat) pinged(now time.Time) {
	h.clearDeadline()
	h.seq++
	seq := h.seq
	h.deadlineSeq = seq
	h.lastPingSentAt = now
	h.deadline = h.clock.AfterFunc(h.timeout, func() {
		h.post(timerFired{kind: timerPongDeadline, seq: seq})
	})
}

// pong clears the outstanding deadline, if any.
func (h *heartbeat) pong() bool {
	return h.clearDeadline()
}

// expired accepts a deadline firing. It reports whether the session must be
// forced closed.
func (h *heartbeat) expired(seq uint64) bool {
	if h.deadline == nil || seq != h.deadlineSeq {
		return false
	}
	h.deadline = nil
	return true
}

func (h *heartbeat) clearDeadline() bool {
	if h.deadline == nil {
		return false
	}
	h.deadline.Stop()
	h.deadline = nil
	return true
}

// armed counts live timers.
func (h *heartbeat) armed() int {
	n := 0
	if h.ticker != nil {
		n++
	}
	if h.deadline != nil {
		n++
	}
	return n
}

func encodePing(now time.Time) []byte {
	data, _ := json.Marshal(pingMessage{Type: "ping", TS: now.UnixMilli()})
	return data
}
