package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	count := 0
	_, err := bus.Subscribe(TypeStepStart, HandlerFunc(func(ctx context.Context, evt Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Type: TypeStepStart}))
	require.NoError(t, bus.Publish(ctx, Event{Type: TypeToolStart}))
	require.Equal(t, 1, count)
}

func TestBusRegisterNilHandler(t *testing.T) {
	bus := NewBus()
	_, err := bus.Subscribe(TypeAll, nil)
	require.Error(t, err)
}

func TestBusWildcardBeforeTyped(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var order []string
	_, err := bus.Subscribe(TypeStepStart, HandlerFunc(func(ctx context.Context, evt Event) error {
		order = append(order, "typed")
		return nil
	}))
	require.NoError(t, err)
	_, err = bus.Subscribe(TypeAll, HandlerFunc(func(ctx context.Context, evt Event) error {
		order = append(order, "wildcard")
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Type: TypeStepStart}))
	require.Equal(t, []string{"wildcard", "typed"}, order)
}

func TestBusRegistrationOrderWithinGroup(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var order []string
	_, err := bus.Subscribe(TypeAll, HandlerFunc(func(ctx context.Context, evt Event) error {
		order = append(order, "first")
		return nil
	}))
	require.NoError(t, err)
	_, err = bus.Subscribe(TypeAll, HandlerFunc(func(ctx context.Context, evt Event) error {
		order = append(order, "second")
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Type: TypeDone}))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestSubscriptionCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	count := 0
	sub, err := bus.Subscribe(TypeStepStart, HandlerFunc(func(ctx context.Context, evt Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Type: TypeStepStart}))
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.NoError(t, bus.Publish(ctx, Event{Type: TypeStepStart}))
	require.Equal(t, 1, count)
}
