package bus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gg-glitch-88/holvi/internal/bus"
)

func TestSubscribeReceivesPublished(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.PublishEntrySet(map[string]string{"key": "flag"})

	select {
	case evt := <-ch:
		assert.Equal(t, bus.EventEntrySet, evt.Type)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe()

	require.Equal(t, 1, b.Len())
	unsub()
	assert.Equal(t, 0, b.Len())

	_, open := <-ch
	assert.False(t, open)
}

func TestSlowConsumerDropped(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe()
	defer unsub()

	// Overfill the subscriber buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.PublishBeacon(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
	assert.LessOrEqual(t, len(ch), 64)
}

func TestMultipleSubscribers(t *testing.T) {
	b := bus.New()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	require.Equal(t, 2, b.Len())
	b.PublishURLSelected("evt")

	for _, ch := range []<-chan bus.Event{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, bus.EventURLSelected, evt.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the event")
		}
	}
}

func TestPublishKeepsExplicitTimestamp(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe()
	defer unsub()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.Publish(bus.Event{Type: bus.EventBeacon, Timestamp: ts})

	evt := <-ch
	assert.Equal(t, ts, evt.Timestamp)
}
