package events

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSONDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus(zerolog.New(io.Discard))

	var got []AppointmentsCancelled
	bus.Subscribe(TypeAppointmentsCancelled, func(_ context.Context, e Event) error {
		var p AppointmentsCancelled
		require.NoError(t, e.Decode(&p))
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
		got = append(got, p)
		return nil
	})
	bus.Subscribe(TypeAppointmentsCancelled, func(context.Context, Event) error {
		return errors.New("handler failure does not stop delivery")
	})

	payload := AppointmentsCancelled{
		Reason: "expired",
		Appointments: []CancelledAppointment{
			{ID: "a1", UserID: "u1", DoctorID: "d1", Start: time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC), Fee: 500},
		},
	}
	require.NoError(t, bus.PublishJSON(context.Background(), TypeAppointmentsCancelled, payload))
	require.NoError(t, bus.PublishJSON(context.Background(), TypeSessionWindowChanged, WindowChanged{DoctorID: "d1"}))

	require.Len(t, got, 1)
	assert.Equal(t, payload.Appointments[0].ID, got[0].Appointments[0].ID)
	assert.True(t, payload.Appointments[0].Start.Equal(got[0].Appointments[0].Start))
}

func TestPublishJSONRejectsUnmarshalable(t *testing.T) {
	bus := NewEventBus(zerolog.New(io.Discard))
	assert.Error(t, bus.PublishJSON(context.Background(), "x", make(chan int)))
}
