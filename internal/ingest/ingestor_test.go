package ingest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisbap/internal/protocol"
	"fisbap/pkg/config"
	"fisbap/pkg/modules/storage"
	"fisbap/pkg/ports"
)

func newTestIngestor(t *testing.T) (*Ingestor, ports.MessageStorePort) {
	t.Helper()
	store, err := storage.NewSQLiteStore(config.StorageConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, nil), store
}

// seedTransaction registers txn as known by storing an outbound search
func seedTransaction(t *testing.T, store ports.MessageStorePort, txn string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), ports.Record{
		Stage:         ports.StageSearch,
		TransactionID: txn,
		MessageID:     "out-" + txn,
		Payload:       []byte(`{}`),
		Timestamp:     time.Now().UTC(),
	}))
}

func callbackBody(action, txn, msgID, timestamp string) []byte {
	return []byte(`{
		"context": {
			"domain": "ONDC:FIS14",
			"action": "` + action + `",
			"transaction_id": "` + txn + `",
			"message_id": "` + msgID + `",
			"timestamp": "` + timestamp + `",
			"bpp_id": "seller.example.com",
			"bpp_uri": "https://seller.example.com/ondc"
		},
		"message": {"order": {"id": "order-77"}}
	}`)
}

func TestIngestStoresValidCallback(t *testing.T) {
	ing, store := newTestIngestor(t)
	seedTransaction(t, store, "txn-1")

	res := ing.Ingest(context.Background(), protocol.ActionOnSelect,
		callbackBody("on_select", "txn-1", "cb-1", "2026-03-10T09:30:00.000Z"))

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "ACK", res.Ack.Message.Ack.Status)
	require.NotNil(t, res.Record)

	rec, err := store.Latest(context.Background(), ports.Query{
		Stage: ports.StageOnSelect, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cb-1", rec.MessageID)
	assert.Equal(t, "seller.example.com", rec.BPPID)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), rec.Timestamp)
}

func TestIngestValidationOrder(t *testing.T) {
	ing, store := newTestIngestor(t)
	seedTransaction(t, store, "txn-1")

	tests := []struct {
		name       string
		action     string
		body       []byte
		wantStatus int
		wantReason string
	}{
		{
			name:       "not json",
			action:     "on_select",
			body:       []byte("{broken"),
			wantStatus: http.StatusBadRequest,
			wantReason: "missing-context",
		},
		{
			name:       "missing timestamp",
			action:     "on_init",
			body:       []byte(`{"context":{"action":"on_init","transaction_id":"txn-1","message_id":"m1"}}`),
			wantStatus: http.StatusBadRequest,
			wantReason: "missing-context",
		},
		{
			name:       "action mismatch",
			action:     "on_select",
			body:       callbackBody("on_init", "txn-1", "m1", "2026-03-10T09:30:00.000Z"),
			wantStatus: http.StatusBadRequest,
			wantReason: "action-mismatch",
		},
		{
			name:       "bad timestamp",
			action:     "on_select",
			body:       callbackBody("on_select", "txn-1", "m1", "yesterday"),
			wantStatus: http.StatusBadRequest,
			wantReason: "bad-timestamp",
		},
		{
			name:       "unknown transaction",
			action:     "on_select",
			body:       callbackBody("on_select", "txn-ghost", "m1", "2026-03-10T09:30:00.000Z"),
			wantStatus: http.StatusNotFound,
			wantReason: "unknown-transaction",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ing.Ingest(context.Background(), tt.action, tt.body)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, "NACK", res.Ack.Message.Ack.Status)
		})
	}

	// None of the rejections wrote anything
	exists, err := store.Exists(context.Background(), ports.Query{
		Stage: ports.StageOnSelect, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIngestDuplicateIsIdempotentAck(t *testing.T) {
	ing, store := newTestIngestor(t)
	seedTransaction(t, store, "txn-1")

	body := callbackBody("on_confirm", "txn-1", "cb-1", "2026-03-10T09:30:00.000Z")

	first := ing.Ingest(context.Background(), protocol.ActionOnConfirm, body)
	assert.Equal(t, http.StatusOK, first.Status)

	second := ing.Ingest(context.Background(), protocol.ActionOnConfirm, body)
	assert.Equal(t, http.StatusOK, second.Status)
	assert.Equal(t, "ACK", second.Ack.Message.Ack.Status)

	recs, err := store.List(context.Background(), ports.Query{
		Stage: ports.StageOnConfirm, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.Len(t, recs, 1, "redelivery is not double-stored")
}

func TestIngestDerivesISIN(t *testing.T) {
	ing, store := newTestIngestor(t)
	seedTransaction(t, store, "txn-1")

	body := []byte(`{
		"context": {
			"action": "on_search",
			"transaction_id": "txn-1",
			"message_id": "cb-1",
			"timestamp": "2026-03-10T09:30:00.000Z",
			"bpp_id": "seller.example.com",
			"bpp_uri": "https://seller.example.com/ondc"
		},
		"message": {"catalog": {"providers": [{
			"id": "32",
			"items": [{
				"id": "plan-1",
				"tags": [{
					"descriptor": {"code": "PLAN_IDENTIFIERS"},
					"list": [{"descriptor": {"code": "ISIN"}, "value": "INF123456789"}]
				}]
			}]
		}]}}
	}`)

	res := ing.Ingest(context.Background(), protocol.ActionOnSearch, body)
	require.Equal(t, http.StatusOK, res.Status)

	rec, err := store.Latest(context.Background(), ports.Query{
		Stage: ports.StageOnSearch, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "INF123456789", rec.ISIN)
}

func TestIngestDerivesPAN(t *testing.T) {
	ing, store := newTestIngestor(t)
	seedTransaction(t, store, "txn-1")

	body := []byte(`{
		"context": {
			"action": "on_status",
			"transaction_id": "txn-1",
			"message_id": "cb-1",
			"timestamp": "2026-03-10T09:30:00.000Z"
		},
		"message": {"order": {"fulfillments": [{
			"customer": {"person": {"id": "pan:ABCDE1234F"}}
		}]}}
	}`)

	res := ing.Ingest(context.Background(), protocol.ActionOnStatus, body)
	require.Equal(t, http.StatusOK, res.Status)

	rec, err := store.Latest(context.Background(), ports.Query{
		Stage: ports.StageOnStatus, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ABCDE1234F", rec.PAN)
}

func TestIngestDerivedExtractionFailureDoesNotBlockStorage(t *testing.T) {
	ing, store := newTestIngestor(t)
	seedTransaction(t, store, "txn-1")

	// on_status with no fulfillments at all
	res := ing.Ingest(context.Background(), protocol.ActionOnStatus,
		callbackBody("on_status", "txn-1", "cb-9", "2026-03-10T09:30:00.000Z"))
	require.Equal(t, http.StatusOK, res.Status)

	rec, err := store.Latest(context.Background(), ports.Query{
		Stage: ports.StageOnStatus, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.Empty(t, rec.PAN)
}
