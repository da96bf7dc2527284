package orchestrate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisbap/internal/errors"
	"fisbap/pkg/config"
	"fisbap/pkg/modules/storage"
	"fisbap/pkg/ports"
)

func newTestStore(t *testing.T) ports.MessageStorePort {
	t.Helper()
	store, err := storage.NewSQLiteStore(config.StorageConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestWaitForReturnsImmediatelyWhenPresent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(context.Background(), ports.Record{
		Stage:         ports.StageOnSearch,
		TransactionID: "txn-1",
		MessageID:     "m1",
		Payload:       []byte(`{}`),
		Timestamp:     time.Now().UTC(),
	}))

	w := NewWaiter(store, config.WaitConfig{Interval: 10 * time.Millisecond, Timeout: time.Second})
	start := time.Now()
	rec, err := w.WaitFor(context.Background(), ports.Query{
		Stage: ports.StageOnSearch, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", rec.MessageID)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitForSeesLateArrival(t *testing.T) {
	store := newTestStore(t)
	w := NewWaiter(store, config.WaitConfig{Interval: 10 * time.Millisecond, Timeout: 2 * time.Second})

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = store.Put(context.Background(), ports.Record{
			Stage:         ports.StageOnSelect,
			TransactionID: "txn-1",
			MessageID:     "late",
			Payload:       []byte(`{}`),
			Timestamp:     time.Now().UTC(),
		})
	}()

	rec, err := w.WaitFor(context.Background(), ports.Query{
		Stage: ports.StageOnSelect, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "late", rec.MessageID)
}

func TestWaitForTimesOut(t *testing.T) {
	store := newTestStore(t)
	w := NewWaiter(store, config.WaitConfig{Interval: 10 * time.Millisecond, Timeout: 60 * time.Millisecond})

	_, err := w.WaitFor(context.Background(), ports.Query{
		Stage: ports.StageOnInit, TransactionID: "txn-none",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeTimeout))
}

func TestWaitForHonorsCallerCancellation(t *testing.T) {
	store := newTestStore(t)
	w := NewWaiter(store, config.WaitConfig{Interval: 10 * time.Millisecond, Timeout: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := w.WaitFor(ctx, ports.Query{Stage: ports.StageOnInit, TransactionID: "txn-none"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "cancellation must not wait out the full timeout")
}
