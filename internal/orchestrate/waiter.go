// Package orchestrate drives multi-step flows over the asynchronous
// protocol. The store is the only coordination mechanism between an
// outbound step and the callback that answers it; the waiter polls it on a
// fixed interval instead of blocking on a wake-up that never comes.
package orchestrate

import (
	"context"
	"fmt"
	"time"

	"fisbap/internal/errors"
	"fisbap/pkg/config"
	"fisbap/pkg/ports"
)

// Waiter polls the message store until an expected callback lands or a
// bounded deadline passes. Safe for concurrent use.
type Waiter struct {
	store    ports.MessageStorePort
	interval time.Duration
	timeout  time.Duration
}

// NewWaiter builds a waiter with the configured poll cadence
func NewWaiter(store ports.MessageStorePort, cfg config.WaitConfig) *Waiter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Waiter{store: store, interval: interval, timeout: timeout}
}

// WaitFor polls for a record matching q. Returns the record as soon as one
// exists, a timeout error when the deadline passes, or the context's error
// when the caller cancels.
func (w *Waiter) WaitFor(ctx context.Context, q ports.Query) (*ports.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		rec, err := w.store.Latest(ctx, q)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, errors.ErrorTypeCorrelation) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.Timeout(fmt.Sprintf("wait for %s on transaction %s", q.Stage, q.TransactionID))
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
