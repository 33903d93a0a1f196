package firewatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// session owns one connection attempt. Everything it observes is reported to
// the stream loop as events tagged with the session itself, so the loop can
// drop events from a session it no longer considers current.
type session struct {
	id           string
	url          string
	dialer       Dialer
	post         func(loopEvent)
	log          zerolog.Logger
	writeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	outbox chan []byte
	open   atomic.Bool

	closeOnce   sync.Once
	closeReason atomic.Value // string
}

func newSession(url string, dialer Dialer, post func(loopEvent), log zerolog.Logger, cfg *StreamConfig) *session {
	id := uuid.NewString()
	return &session{
		id:           id,
		url:          url,
		dialer:       dialer,
		post:         post,
		log:          log.With().Str("session", id).Logger(),
		writeTimeout: cfg.WriteTimeout,
		outbox:       make(chan []byte, cfg.SendBuffer),
	}
}

// start dials in the background. Dial failures surface as a closed event.
func (s *session) start(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	go s.run()
}

func (s *session) run() {
	conn, err := s.dialer.Dial(s.ctx, s.url)
	if err != nil {
		s.cancel()
		s.post(sessionClosed{s: s, err: err})
		return
	}

	s.open.Store(true)
	s.post(sessionOpened{s: s})
	go s.writeLoop(conn)

	for {
		data, err := conn.Read(s.ctx)
		if err != nil {
			s.open.Store(false)
			s.cancel()
			s.post(sessionClosed{s: s, err: err})
			_ = conn.Close(s.reason())
			return
		}
		s.post(sessionMessage{s: s, data: data})
	}
}

func (s *session) writeLoop(conn Conn) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.outbox:
			ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
			err := conn.Write(ctx, data)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("write failed")
				s.cancel()
				return
			}
		}
	}
}

// send queues data for the writer. It never blocks and never panics.
func (s *session) send(data []byte) error {
	if !s.open.Load() || s.ctx.Err() != nil {
		return ErrNotOpen
	}
	select {
	case s.outbox <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// close tears the connection down. The read loop reports the closure.
func (s *session) close(reason string) {
	s.closeOnce.Do(func() {
		s.closeReason.Store(reason)
		s.open.Store(false)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *session) reason() string {
	if r, ok := s.closeReason.Load().(string); ok {
		return r
	}
	return "going away"
}
