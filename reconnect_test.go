package firewatch

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
		{1000, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDelay(time.Second, 30*time.Second, tt.attempt), "attempt %d", tt.attempt)
	}

	assert.Equal(t, time.Duration(0), backoffDelay(0, 30*time.Second, 3))
	assert.Equal(t, 500*time.Millisecond, backoffDelay(500*time.Millisecond, 0, 1))
}

// recorder collects loop events posted by timers.
type recorder chan loopEvent

func (r recorder) post(ev loopEvent) { r <- ev }

func (r recorder) next(t *testing.T) timerFired {
	t.Helper()
	select {
	case ev := <-r:
		fired, ok := ev.(timerFired)
		require.True(t, ok, "unexpected event %T", ev)
		return fired
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for timer")
		return timerFired{}
	}
}

func (r recorder) none(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func newTestReconnector(clk clock.Clock, rec recorder) *reconnector {
	cfg := &StreamConfig{}
	cfg.defaults()
	return newReconnector(clk, cfg, rec.post)
}

func TestReconnectorSchedule(t *testing.T) {
	clk := clock.NewMock()
	rec := make(recorder, 8)
	r := newTestReconnector(clk, rec)

	attempt, delay := r.schedule()
	assert.Equal(t, 1, attempt)
	assert.Equal(t, time.Second, delay)
	assert.True(t, r.pending())

	clk.Add(999 * time.Millisecond)
	rec.none(t)
	clk.Add(time.Millisecond)
	fired := rec.next(t)
	assert.Equal(t, timerReconnect, fired.kind)
	assert.True(t, r.fired(fired.seq))
	assert.False(t, r.pending())
	assert.False(t, r.fired(fired.seq), "a timer fires once")

	attempt, delay = r.schedule()
	assert.Equal(t, 2, attempt)
	assert.Equal(t, 2*time.Second, delay)
}

func TestReconnectorReset(t *testing.T) {
	clk := clock.NewMock()
	rec := make(recorder, 8)
	r := newTestReconnector(clk, rec)

	for i := 0; i < 5; i++ {
		r.schedule()
	}
	assert.Equal(t, 5, r.attempt)

	r.reset()
	assert.False(t, r.pending())
	clk.Add(time.Hour)
	rec.none(t)

	attempt, delay := r.schedule()
	assert.Equal(t, 1, attempt)
	assert.Equal(t, time.Second, delay)
}

func TestReconnectorRescheduleDropsStaleTimer(t *testing.T) {
	clk := clock.NewMock()
	rec := make(recorder, 8)
	r := newTestReconnector(clk, rec)

	r.schedule()
	staleSeq := r.timerSeq
	r.schedule()

	clk.Add(2 * time.Second)
	fired := rec.next(t)
	assert.NotEqual(t, staleSeq, fired.seq)
	assert.False(t, r.fired(staleSeq))
	assert.True(t, r.fired(fired.seq))
	rec.none(t)
}
