package timer

import (
	"context"
	"sync"
	"time"
)

// DefaultPeriod is the nominal tick interval.
const DefaultPeriod = time.Second

// Ticker runs a callback periodically until stopped. It replaces an
// implicit interval loop with an explicit handle.
type Ticker struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartTicker calls fn every period until ctx is cancelled or Stop is
// called. fn runs on the ticker's goroutine; calls never overlap.
func StartTicker(ctx context.Context, period time.Duration, fn func(time.Time)) *Ticker {
	if period <= 0 {
		period = DefaultPeriod
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Ticker{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		tk := time.NewTicker(period)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tk.C:
				fn(now)
			}
		}
	}()
	return t
}

// Stop cancels the ticker. It does not wait, so it is safe to call from
// inside the callback. Use Done to wait for the goroutine to exit.
func (t *Ticker) Stop() {
	t.once.Do(t.cancel)
}

// Done is closed once the ticker goroutine has exited.
func (t *Ticker) Done() <-chan struct{} {
	return t.done
}
