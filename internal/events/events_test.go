package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSON(t *testing.T) {
	bus := NewEventBus()

	var received []BookingEventPayload
	bus.Subscribe(EventBookingCreated, func(event *Event) error {
		var p BookingEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return err
		}
		received = append(received, p)
		return nil
	})

	payload := BookingEventPayload{
		BookingID: "b-1",
		UserID:    "u1",
		Service:   "haircut",
		Date:      "2026-09-10",
		Time:      "10:00",
		Status:    "confirmed",
	}
	require.NoError(t, bus.PublishJSON(EventBookingCreated, payload))

	require.Len(t, received, 1)
	assert.Equal(t, payload, received[0])
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()

	calls := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(EventBookingCancelled, func(event *Event) error {
			calls++
			return nil
		})
	}

	require.NoError(t, bus.PublishJSON(EventBookingCancelled, map[string]string{"booking_id": "b-1"}))
	assert.Equal(t, 3, calls)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewEventBus()

	// никто не подписан — публикация не должна падать
	assert.NoError(t, bus.PublishJSON(EventBookingCreated, map[string]string{"booking_id": "b-1"}))
}

func TestSubscriberForOtherType(t *testing.T) {
	bus := NewEventBus()

	called := false
	bus.Subscribe(EventBookingCancelled, func(event *Event) error {
		called = true
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventBookingCreated, map[string]string{}))
	assert.False(t, called)
}
