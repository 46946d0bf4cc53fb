package ingest

import (
	"context"

	"xray/internal/app/bus"
	"xray/internal/app/session"
	"xray/internal/config/logger"
)

// Listener drains ingress envelopes from the bus into the session. A bad
// envelope is rejected, logged and reported back on the bus; it never stops
// the loop, so subsequent events keep flowing.
type Listener interface {
	Start(ctx context.Context)
}

type listener struct {
	session session.Session
	bus     bus.Bus
	log     logger.Logger
}

// NewListener creates a new ingestion listener
func NewListener(sess session.Session, b bus.Bus, log logger.Logger) Listener {
	return &listener{
		session: sess,
		bus:     b,
		log:     log.WithComponent("INGEST"),
	}
}

// Start begins draining envelopes until the context is cancelled
func (l *listener) Start(ctx context.Context) {
	msgCh := l.bus.Subscribe(ctx)

	go func() {
		for msg := range msgCh {
			l.handleEvent(msg)
		}
	}()
}

func (l *listener) handleEvent(msg bus.Message) {
	if msg.Type != bus.EventEnvelopeReceived {
		return
	}

	data, ok := msg.Data.(bus.EnvelopeReceived)
	if !ok {
		return
	}

	if _, err := l.session.Ingest(data.Raw); err != nil {
		l.log.Warn().Err(err).Msg("Rejected envelope")

		l.bus.Publish(bus.Message{
			Type: bus.EventDecodeFailed,
			Data: bus.DecodeFailed{Err: err},
		})
	}
}
