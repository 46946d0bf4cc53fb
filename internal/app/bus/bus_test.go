package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"xray/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Bus.Buffer = 10

	return cfg
}

func Test_New(t *testing.T) {
	b := New(testConfig(), nil)

	assert.NotNil(t, b)
}

func Test_Bus_PublishSubscribe(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)

	b.Publish(Message{
		Type: EventEnvelopeReceived,
		Data: EnvelopeReceived{Raw: []byte(`{"level":"info"}`)},
	})

	select {
	case msg := <-ch:
		assert.Equal(t, EventEnvelopeReceived, msg.Type)
		data, ok := msg.Data.(EnvelopeReceived)
		assert.True(t, ok)
		assert.Equal(t, `{"level":"info"}`, string(data.Raw))
		assert.False(t, msg.Timestamp.IsZero())
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Expected message")
	}
}

func Test_Bus_MultipleSubscribers(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1 := b.Subscribe(ctx)
	ch2 := b.Subscribe(ctx)

	b.Publish(Message{Type: EventConfigReloaded, Data: ConfigReloaded{Level: "debug"}})

	for _, ch := range []<-chan Message{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, EventConfigReloaded, msg.Type)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("Expected message on subscriber")
		}
	}
}

func Test_Bus_Unsubscribe_OnContextCancel(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)

	cancel()
	time.Sleep(10 * time.Millisecond)

	_, ok := <-ch
	assert.False(t, ok, "Channel should be closed after context cancel")
}

func Test_Bus_Close(t *testing.T) {
	b := New(testConfig(), nil)

	ctx := context.Background()
	ch := b.Subscribe(ctx)

	b.Close()

	_, ok := <-ch
	assert.False(t, ok, "Channel should be closed")

	b.Publish(Message{Type: EventServerStarted})
}

func Test_Bus_NonCritical_DroppedWhenFull(t *testing.T) {
	cfg := &config.Config{}
	cfg.Bus.Buffer = 1

	b := New(cfg, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)

	b.Publish(Message{Type: EventServerStarted})
	b.Publish(Message{Type: EventServerStopped})

	assert.Len(t, ch, 1)
}

func Test_Bus_Critical_PreservesOrder(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)

	for i := 0; i < 5; i++ {
		b.Publish(Message{
			Type:     EventEnvelopeReceived,
			Data:     EnvelopeReceived{Raw: []byte{byte(i)}},
			Critical: true,
		})
	}

	for i := 0; i < 5; i++ {
		select {
		case msg := <-ch:
			data, ok := msg.Data.(EnvelopeReceived)
			assert.True(t, ok)
			assert.Equal(t, byte(i), data.Raw[0])
		case <-time.After(100 * time.Millisecond):
			t.Fatal("Expected message in order")
		}
	}
}

func Test_NoOp(t *testing.T) {
	b := NoOp()

	assert.NotNil(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)

	b.Publish(Message{Type: EventServerStarted})

	select {
	case <-ch:
		t.Fatal("NoOp should not deliver messages")
	case <-time.After(10 * time.Millisecond):
	}

	cancel()
	time.Sleep(10 * time.Millisecond)

	_, ok := <-ch
	assert.False(t, ok)

	b.Close()
}
