// Package periodic fans the 1 ms tick out to every registered subscriber.
//
// Each subscriber owns a one-slot channel: a subscriber that has not
// consumed its previous tick loses the cycle instead of accumulating a
// backlog, which matches the behavior of a task that overruns its period.
package periodic

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Interval is the tick period.
const Interval = time.Millisecond

// MaxSubscribers bounds the fixed subscriber slot list.
const MaxSubscribers = 10

// Dispatcher delivers the periodic tick to a known, bounded set of
// subscribers.
type Dispatcher struct {
	mu   sync.Mutex
	clk  clock.Clock
	subs []chan struct{}
}

// New creates a dispatcher on the given clock. Tests pass clock.NewMock()
// and advance it manually.
func New(clk clock.Clock) *Dispatcher {
	if clk == nil {
		clk = clock.New()
	}
	return &Dispatcher{clk: clk}
}

// Subscribe registers a new subscriber and returns its tick channel.
// Returns nil when all slots are taken.
func (d *Dispatcher) Subscribe() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.subs) >= MaxSubscribers {
		return nil
	}
	ch := make(chan struct{}, 1)
	d.subs = append(d.subs, ch)
	return ch
}

// Run delivers ticks until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := d.clk.Ticker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.dispatch()
		}
	}
}

func (d *Dispatcher) dispatch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
			// Subscriber still busy with the previous tick; it loses
			// this cycle.
		}
	}
}
