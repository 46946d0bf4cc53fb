package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"xray/internal/config"
	"xray/internal/config/logger"
)

// MessageType represents the type of message
type MessageType string

// Event types
const (
	EventEnvelopeReceived MessageType = "envelope_received"
	EventDecodeFailed     MessageType = "decode_failed"
	EventConfigReloaded   MessageType = "config_reloaded"
	EventServerStarted    MessageType = "server_started"
	EventServerStopped    MessageType = "server_stopped"
)

// Message represents a bus message
type Message struct {
	Type      MessageType
	Timestamp time.Time
	Data      interface{}
	Critical  bool
}

// EnvelopeReceived carries a raw ingress envelope from the transport to the
// ingestion pipeline. Envelope messages are critical: a full buffer must not
// drop a log event.
type EnvelopeReceived struct {
	Raw []byte
}

// DecodeFailed indicates an ingress envelope was rejected by the decoder
type DecodeFailed struct {
	Err error
}

// ConfigReloaded indicates xray.yaml changed on disk and was re-applied
type ConfigReloaded struct {
	Level string
}

// ServerEvent carries the ingress server listen address
type ServerEvent struct {
	Addr string
}

// Bus handles pub/sub messaging between the transport, the ingestion
// pipeline and the lifecycle components
type Bus interface {
	Subscribe(ctx context.Context) <-chan Message
	Publish(msg Message)
	Close()
}

// bus implements the Bus interface with pub/sub messaging
type bus struct {
	cfg         *config.Config
	subscribers []chan Message
	mu          sync.RWMutex
	closed      bool
	log         logger.Logger
}

// New creates a new Bus
func New(cfg *config.Config, log logger.Logger) Bus {
	return &bus{
		cfg:         cfg,
		subscribers: make([]chan Message, 0),
		log:         log,
	}
}

// Subscribe creates a new subscription channel
func (b *bus) Subscribe(ctx context.Context) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, b.cfg.Bus.Buffer)
	b.subscribers = append(b.subscribers, ch)

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch)
	}()

	return ch
}

// Publish sends a message to all subscribers. Non-critical messages are
// dropped for subscribers with a full buffer; critical messages block until
// the subscriber drains, preserving arrival order.
func (b *bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	msg.Timestamp = time.Now()

	if b.log != nil {
		b.log.Debug().Msgf("%s %s", msg.Type, formatData(msg.Data))
	}

	for _, ch := range b.subscribers {
		if msg.Critical {
			ch <- msg

			continue
		}

		select {
		case ch <- msg:
		default:
		}
	}
}

// Close closes all subscriber channels
func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for _, ch := range b.subscribers {
		close(ch)
	}

	b.subscribers = nil
}

func (b *bus) unsubscribe(ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)

			close(ch)

			break
		}
	}
}

func formatData(data interface{}) string {
	switch d := data.(type) {
	case EnvelopeReceived:
		return fmt.Sprintf("{bytes: %d}", len(d.Raw))
	case DecodeFailed:
		return fmt.Sprintf("{error: %v}", d.Err)
	case ConfigReloaded:
		return fmt.Sprintf("{level: %s}", d.Level)
	case ServerEvent:
		return fmt.Sprintf("{addr: %s}", d.Addr)
	default:
		return fmt.Sprintf("%+v", data)
	}
}

// NoOp returns a no-op bus for when messaging is disabled
func NoOp() Bus {
	return &noOpBus{}
}

// noOpBus implements Bus interface with no-op methods for testing
type noOpBus struct{}

func (n *noOpBus) Subscribe(ctx context.Context) <-chan Message {
	ch := make(chan Message)

	go func() {
		<-ctx.Done()
		close(ch)
	}()

	return ch
}

func (n *noOpBus) Publish(msg Message) {}
func (n *noOpBus) Close()              {}
