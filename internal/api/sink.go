package api

import (
	"github.com/rs/zerolog/log"

	"github.com/loteria-online/client/internal/dispatch"
	"github.com/loteria-online/client/internal/protocol"
)

// EventConnectionLost is the synthetic bus event published when the duplex
// channel faults or closes unexpectedly. Its payload is the wrapped error.
// It fires at most once per connection and is the composition layer's cue to
// force logout or prompt a reconnect.
const EventConnectionLost protocol.EventType = "ConnectionLost"

// PushSink decodes pushed envelopes and publishes them on the dispatch bus.
// The transport builds one per connection; a sink detached by teardown never
// publishes again, so a reconnect can never leak stale deliveries into the
// new connection's subscribers.
type PushSink struct {
	bus *dispatch.Bus
}

// NewPushSink returns a sink feeding the given bus.
func NewPushSink(bus *dispatch.Bus) *PushSink {
	return &PushSink{bus: bus}
}

func (s *PushSink) OnEvent(env *protocol.Envelope) {
	payload, err := protocol.ParseEventPayload(env)
	if err != nil {
		log.Warn().Err(err).Str("type", env.Type).Msg("malformed push payload dropped")
		return
	}
	if payload == nil {
		log.Debug().Str("type", env.Type).Msg("unknown push type ignored")
		return
	}
	s.bus.Publish(protocol.EventType(env.Type), payload)
}

func (s *PushSink) OnConnectionLost(err error) {
	s.bus.Publish(EventConnectionLost, err)
}
