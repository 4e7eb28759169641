package bus

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := NewEventBus()

	var got []float64
	b.Subscribe(EventTypeAudioLevelChanged, func(e Event) {
		got = append(got, e.Data["level"].(float64))
	})

	for _, level := range []float64{0.1, 0.5, 0.2} {
		b.Publish(Event{Type: EventTypeAudioLevelChanged, Data: map[string]any{"level": level}})
	}

	assert.Equal(t, []float64{0.1, 0.5, 0.2}, got)
}

func TestPublish_OtherTypesNotDelivered(t *testing.T) {
	b := NewEventBus()

	calls := 0
	b.Subscribe(EventTypeAvatarBound, func(Event) { calls++ })
	b.Publish(Event{Type: EventTypeAvatarUnbound})

	assert.Equal(t, 0, calls)
}

func TestUnsubscribe(t *testing.T) {
	b := NewEventBus()

	calls := 0
	id := b.Subscribe(EventTypeAudioLevelChanged, func(Event) { calls++ })

	b.Publish(Event{Type: EventTypeAudioLevelChanged})
	require.NoError(t, b.Unsubscribe(EventTypeAudioLevelChanged, id))
	b.Publish(Event{Type: EventTypeAudioLevelChanged})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.Count(EventTypeAudioLevelChanged))
}

func TestUnsubscribe_NotFound(t *testing.T) {
	b := NewEventBus()
	id := b.Subscribe(EventTypeAvatarBound, func(Event) {})

	assert.Error(t, b.Unsubscribe(EventTypeAvatarUnbound, id))
	assert.Error(t, b.Unsubscribe(EventTypeAvatarBound, id+100))
}

func TestUnsubscribe_DuringPublishSkipsLaterHandlers(t *testing.T) {
	b := NewEventBus()

	var second SubscriptionID
	secondCalls := 0
	b.Subscribe(EventTypeAudioLevelChanged, func(Event) {
		require.NoError(t, b.Unsubscribe(EventTypeAudioLevelChanged, second))
	})
	second = b.Subscribe(EventTypeAudioLevelChanged, func(Event) { secondCalls++ })

	b.Publish(Event{Type: EventTypeAudioLevelChanged})

	assert.Equal(t, 0, secondCalls)
	assert.Equal(t, 1, b.Count(EventTypeAudioLevelChanged))
}

func TestClear(t *testing.T) {
	b := NewEventBus()
	calls := 0
	b.Subscribe(EventTypeAvatarBound, func(Event) { calls++ })

	b.Clear()
	b.Publish(Event{Type: EventTypeAvatarBound})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, b.Count(EventTypeAvatarBound))
}

func TestConcurrentSubscribePublish(t *testing.T) {
	b := NewEventBus()
	var wg sync.WaitGroup
	var calls atomic.Int64

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := b.Subscribe(EventTypeAudioLevelChanged, func(Event) { calls.Add(1) })
			b.Publish(Event{Type: EventTypeAudioLevelChanged})
			_ = b.Unsubscribe(EventTypeAudioLevelChanged, id)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, b.Count(EventTypeAudioLevelChanged))
	assert.GreaterOrEqual(t, calls.Load(), int64(10))
}
