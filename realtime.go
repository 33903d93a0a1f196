package firewatch

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ============================================================================
// Configuration
// ============================================================================

// StreamConfig configures a StreamClient. Zero fields take defaults.
type StreamConfig struct {
	PingInterval       time.Duration
	PongTimeout        time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	WriteTimeout       time.Duration
	SendBuffer         int
	Dialer             Dialer
	Clock              clock.Clock
	// Logger overrides the client logger for this stream.
	Logger *zerolog.Logger
	// Registerer receives the stream metrics. Nil keeps them private.
	// Streams sharing a Registerer share, and sum into, the same collectors.
	Registerer prometheus.Registerer
}

func (c *StreamConfig) defaults() {
	if c.PingInterval == 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 5 * time.Second
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 16
	}
	if c.Dialer == nil {
		c.Dialer = &NhooyrDialer{}
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// ConnectionState is the state of the stream connection.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

func (s ConnectionState) canTransition(to ConnectionState) bool {
	switch s {
	case StateDisconnected:
		return to == StateConnecting
	case StateConnecting:
		return to == StateOpen || to == StateClosing || to == StateDisconnected
	case StateOpen:
		return to == StateClosing || to == StateDisconnected
	case StateClosing:
		return to == StateDisconnected
	default:
		return false
	}
}

// UpdateHandler receives every accepted update. It runs on the stream loop:
// it must return promptly and must not call Stop.
type UpdateHandler func(Snapshot)

// ============================================================================
// Loop events
// ============================================================================

type loopEvent interface{ loopEvent() }

type sessionOpened struct{ s *session }

type sessionMessage struct {
	s    *session
	data []byte
}

type sessionClosed struct {
	s   *session
	err error
}

type timerKind int

const (
	timerPing timerKind = iota
	timerPongDeadline
	timerReconnect
)

type timerFired struct {
	kind timerKind
	seq  uint64
}

type bootstrapDone struct{ doc json.RawMessage }

func (sessionOpened) loopEvent()  {}
func (sessionMessage) loopEvent() {}
func (sessionClosed) loopEvent()  {}
func (timerFired) loopEvent()     {}
func (bootstrapDone) loopEvent()  {}

// ============================================================================
// StreamClient
// ============================================================================

type lifecycle int

const (
	lifecycleIdle lifecycle = iota
	lifecycleRunning
	lifecycleStopped
)

// StreamClient keeps a local Snapshot in sync with the server over a
// websocket, reconnecting with exponential backoff and re-fetching the
// snapshot after every reconnect.
//
// All connection state is owned by a single loop goroutine. Sessions, timers
// and snapshot fetches talk to it by posting events.
type StreamClient struct {
	client     *Client
	config     *StreamConfig
	log        zerolog.Logger
	clock      clock.Clock
	metrics    *streamMetrics
	dispatcher *eventDispatcher
	store      *documentStore
	stateVal   atomic.Int32

	lifeMu sync.Mutex
	phase  lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan loopEvent
	done   chan struct{}

	// Owned by the loop goroutine.
	state      ConnectionState
	current    *session
	everOpened bool
	hb         *heartbeat
	recon      *reconnector
	onUpdate   UpdateHandler
}

// Stream creates a stream client. Call Start to connect.
func (c *Client) Stream(config *StreamConfig) *StreamClient {
	var cfg StreamConfig
	if config != nil {
		cfg = *config
	}
	cfg.defaults()

	base := c.logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	sc := &StreamClient{
		client:     c,
		config:     &cfg,
		log:        base.With().Str("component", "stream").Logger(),
		clock:      cfg.Clock,
		metrics:    newStreamMetrics(cfg.Registerer),
		dispatcher: newEventDispatcher(),
		store:      newDocumentStore(),
		inbox:      make(chan loopEvent, 64),
		done:       make(chan struct{}),
		state:      StateDisconnected,
	}
	sc.hb = newHeartbeat(cfg.Clock, cfg.PingInterval, cfg.PongTimeout, sc.post)
	sc.recon = newReconnector(cfg.Clock, &cfg, sc.post)
	return sc
}

// OnStateChange registers a handler for connection state transitions.
func (sc *StreamClient) OnStateChange(h func(from, to ConnectionState)) {
	sc.dispatcher.subscribe(topicStateChange, h)
}

// OnReconnecting registers a handler called when a reconnect is scheduled.
func (sc *StreamClient) OnReconnecting(h func(attempt int, delay time.Duration)) {
	sc.dispatcher.subscribe(topicReconnecting, h)
}

// OnHeartbeatTimeout registers a handler called when a missed pong forces
// the session closed.
func (sc *StreamClient) OnHeartbeatTimeout(h func()) {
	sc.dispatcher.subscribe(topicHeartbeatTimeout, h)
}

// State returns the current connection state.
func (sc *StreamClient) State() ConnectionState {
	return ConnectionState(sc.stateVal.Load())
}

// Snapshot returns the latest synced document.
func (sc *StreamClient) Snapshot() Snapshot {
	return sc.store.current()
}

// Done is closed once a started client has shut down.
func (sc *StreamClient) Done() <-chan struct{} {
	return sc.done
}

// Start fetches the initial snapshot and opens the first session, both in
// the background. A client can be started once. Cancelling ctx has the same
// effect as Stop.
func (sc *StreamClient) Start(ctx context.Context, onUpdate UpdateHandler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	target, err := sc.client.StreamURL()
	if err != nil {
		return err
	}

	sc.lifeMu.Lock()
	defer sc.lifeMu.Unlock()
	if sc.phase != lifecycleIdle {
		return ErrAlreadyStarted
	}
	sc.phase = lifecycleRunning
	sc.onUpdate = onUpdate
	sc.ctx, sc.cancel = context.WithCancel(ctx)

	go sc.run(target)
	return nil
}

// Stop cancels every timer, closes the session and waits for the loop to
// exit. No update is delivered after Stop returns. Safe to call more than
// once and before Start.
func (sc *StreamClient) Stop() {
	sc.lifeMu.Lock()
	phase := sc.phase
	sc.phase = lifecycleStopped
	cancel := sc.cancel
	sc.lifeMu.Unlock()

	if phase == lifecycleIdle {
		return
	}
	cancel()
	<-sc.done
}

// post hands an event to the loop. Events posted after shutdown are dropped.
func (sc *StreamClient) post(ev loopEvent) {
	select {
	case sc.inbox <- ev:
	case <-sc.done:
	}
}

func (sc *StreamClient) run(target string) {
	defer close(sc.done)
	defer sc.shutdown()

	sc.log.Info().Str("url", target).Msg("stream starting")
	sc.bootstrap()
	sc.connect(target)

	for {
		select {
		case <-sc.ctx.Done():
			return
		case ev := <-sc.inbox:
			if sc.ctx.Err() != nil {
				return
			}
			sc.handle(ev, target)
		}
	}
}

func (sc *StreamClient) handle(ev loopEvent, target string) {
	switch ev := ev.(type) {
	case sessionOpened:
		sc.handleOpen(ev.s)
	case sessionMessage:
		sc.handleMessage(ev.s, ev.data)
	case sessionClosed:
		sc.handleClose(ev.s, ev.err)
	case timerFired:
		switch ev.kind {
		case timerPing:
			sc.handlePingTick(ev.seq)
		case timerPongDeadline:
			sc.handlePongDeadline(ev.seq)
		case timerReconnect:
			if sc.recon.fired(ev.seq) {
				sc.connect(target)
			}
		}
	case bootstrapDone:
		sc.publish(sc.store.replaceAreas(ev.doc, UpdateBootstrap))
	}
}

// setState applies a transition. Transitions not in the state machine are
// logged and refused.
func (sc *StreamClient) setState(to ConnectionState) bool {
	from := sc.state
	if from == to {
		return true
	}
	if !from.canTransition(to) {
		sc.log.Error().Stringer("from", from).Stringer("to", to).Msg("invalid state transition")
		return false
	}
	sc.state = to
	sc.stateVal.Store(int32(to))
	sc.metrics.state.Set(float64(to))
	sc.dispatcher.emitStateChange(from, to)
	return true
}

func (sc *StreamClient) connect(target string) {
	if sc.current != nil || sc.state != StateDisconnected {
		return
	}
	s := newSession(target, sc.config.Dialer, sc.post, sc.log, sc.config)
	sc.current = s
	sc.setState(StateConnecting)
	sc.log.Debug().Str("session", s.id).Msg("dialing")
	s.start(sc.ctx)
}

func (sc *StreamClient) handleOpen(s *session) {
	if s != sc.current || sc.state != StateConnecting {
		return
	}
	// Timers are armed before the state becomes observable as Open.
	sc.recon.reset()
	sc.hb.start()
	sc.metrics.sessionsOpened.Inc()
	if sc.everOpened {
		sc.bootstrap()
	}
	sc.everOpened = true
	sc.setState(StateOpen)
	sc.log.Info().Str("session", s.id).Msg("stream open")
}

func (sc *StreamClient) handleClose(s *session, err error) {
	if s != sc.current {
		return
	}
	from := sc.state
	sc.current = nil
	sc.hb.stop()
	sc.metrics.sessionCloses.WithLabelValues(from.String()).Inc()
	sc.setState(StateDisconnected)

	attempt, delay := sc.recon.schedule()
	sc.metrics.reconnects.Inc()
	sc.metrics.reconnectDelay.Observe(delay.Seconds())

	sc.log.Warn().Err(err).Str("session", s.id).Stringer("from", from).
		Int("attempt", attempt).Dur("delay", delay).Msg("stream closed, reconnect scheduled")
	sc.dispatcher.emitReconnecting(attempt, delay)
}

func (sc *StreamClient) handleMessage(s *session, data []byte) {
	if s != sc.current || sc.state != StateOpen {
		sc.metrics.messages.WithLabelValues("stale").Inc()
		return
	}

	msg := decodeInbound(data)
	switch msg.kind {
	case inboundMalformed:
		sc.log.Debug().Str("session", s.id).Int("bytes", len(data)).Msg("dropping malformed message")
	case inboundPong:
		sc.hb.pong()
	case inboundAreas:
		sc.publish(sc.store.replaceAreas(msg.doc, UpdateAreas))
	case inboundWind:
		sc.publish(sc.store.replaceWind(msg.wind))
	case inboundDocument:
		sc.publish(sc.store.replaceAreas(msg.doc, UpdateDocument))
	}
	sc.metrics.messages.WithLabelValues(msg.kind.String()).Inc()
}

func (sc *StreamClient) handlePingTick(seq uint64) {
	if !sc.hb.tick(seq) {
		return
	}
	if sc.state != StateOpen || sc.current == nil {
		return
	}
	now := sc.clock.Now()
	if err := sc.current.send(encodePing(now)); err != nil {
		sc.log.Debug().Err(err).Str("session", sc.current.id).Msg("ping not sent")
	}
	sc.hb.pinged(now)
	sc.metrics.pingsSent.Inc()
}

func (sc *StreamClient) handlePongDeadline(seq uint64) {
	if !sc.hb.expired(seq) {
		return
	}
	if sc.state != StateOpen || sc.current == nil {
		return
	}
	sc.log.Warn().Str("session", sc.current.id).
		Time("last_ping", sc.hb.lastPingSentAt).Msg("pong deadline missed, closing session")
	sc.hb.stop()
	sc.setState(StateClosing)
	sc.current.close("heartbeat timeout")
	sc.metrics.heartbeatTimeouts.Inc()
	sc.dispatcher.emitHeartbeatTimeout()
}

// bootstrap fetches the snapshot without blocking the loop. Failures are
// logged and dropped; the stream will deliver fresh state regardless.
func (sc *StreamClient) bootstrap() {
	ctx := sc.ctx
	go func() {
		doc, err := sc.client.Snapshot(ctx)
		if err != nil {
			if ctx.Err() == nil {
				sc.metrics.bootstraps.WithLabelValues("error").Inc()
				sc.log.Warn().Err(err).Msg("snapshot fetch failed")
			}
			return
		}
		sc.metrics.bootstraps.WithLabelValues("ok").Inc()
		sc.post(bootstrapDone{doc: doc})
	}()
}

func (sc *StreamClient) publish(snap Snapshot) {
	if sc.onUpdate != nil {
		sc.onUpdate(snap)
	}
}

func (sc *StreamClient) shutdown() {
	sc.recon.cancel()
	sc.hb.stop()
	if sc.current != nil {
		sc.setState(StateClosing)
		sc.current.close("client stop")
		sc.current = nil
	}
	sc.setState(StateDisconnected)
	sc.log.Info().Msg("stream stopped")
}
