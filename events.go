package firewatch

import (
	"time"

	evbus "github.com/asaskevich/EventBus"
)

const (
	topicStateChange      = "stream:state"
	topicReconnecting     = "stream:reconnecting"
	topicHeartbeatTimeout = "stream:heartbeat_timeout"
)

// eventDispatcher fans meta-events out to registered handlers. Handlers run
// synchronously on the stream loop in publish order; they must not block and
// must not call Stop or register further handlers.
type eventDispatcher struct {
	bus evbus.Bus
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{bus: evbus.New()}
}

func (d *eventDispatcher) subscribe(topic string, fn interface{}) {
	// Subscribe only fails for non-func handlers, which the typed On*
	// methods rule out.
	_ = d.bus.Subscribe(topic, fn)
}

func (d *eventDispatcher) emitStateChange(from, to ConnectionState) {
	d.bus.Publish(topicStateChange, from, to)
}

func (d *eventDispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.bus.Publish(topicReconnecting, attempt, delay)
}

func (d *eventDispatcher) emitHeartbeatTimeout() {
	d.bus.Publish(topicHeartbeatTimeout)
}
