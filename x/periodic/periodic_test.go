package periodic

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestFanOutDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	d := New(mock)
	a := d.Subscribe()
	b := d.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	// Give the ticker goroutine a chance to arm before advancing.
	time.Sleep(10 * time.Millisecond)
	mock.Add(Interval)

	require.Eventually(t, func() bool {
		select {
		case <-a:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		select {
		case <-b:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestBusySubscriberLosesCycleWithoutBacklog(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	d := New(mock)
	ch := d.Subscribe()

	// Deliver several ticks without the subscriber draining.
	for i := 0; i < 5; i++ {
		d.dispatch()
	}

	// Exactly one pending tick: the rest were lost, not queued.
	select {
	case <-ch:
	default:
		t.Fatal("expected one pending tick")
	}
	select {
	case <-ch:
		t.Fatal("missed ticks must not accumulate")
	default:
	}
}

func TestSubscribeSlotsAreBounded(t *testing.T) {
	t.Parallel()

	d := New(clock.NewMock())
	for i := 0; i < MaxSubscribers; i++ {
		require.NotNil(t, d.Subscribe())
	}
	require.Nil(t, d.Subscribe())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	d := New(clock.NewMock())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}
