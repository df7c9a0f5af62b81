package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusSynchronousHandlersRunInOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var seen []string

	bus.SubscribeFunc(func(e Event) { seen = append(seen, "first:"+string(e.Type)) })
	unsubscribe := bus.SubscribeFunc(func(e Event) { seen = append(seen, "second:"+string(e.Type)) })

	bus.Publish(New(TypeSessionAuthenticated, nil))
	require.Equal(t, []string{"first:session.authenticated", "second:session.authenticated"}, seen)

	unsubscribe()
	bus.Publish(New(TypeSessionLoggedOut, nil))
	require.Equal(t, "first:session.logged_out", seen[len(seen)-1])
	require.Len(t, seen, 3)
}

func TestBusChannelSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	events, unsubscribe := bus.Subscribe()

	bus.Publish(New(TypeUserUpdated, "payload"))

	got := <-events
	require.Equal(t, TypeUserUpdated, got.Type)
	require.Equal(t, "payload", got.Payload)
	require.NotEmpty(t, got.ID)

	unsubscribe()
	_, open := <-events
	require.False(t, open)
}
