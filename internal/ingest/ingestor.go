// Package ingest validates and stores inbound callbacks. Each callback gets
// exactly one decision: rejected with a NACK naming the reason, or stored
// and acknowledged. Derived lookup fields are extracted best-effort; their
// absence never blocks storage.
package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"fisbap/internal/logging"
	"fisbap/internal/payload"
	"fisbap/internal/protocol"
	"fisbap/pkg/ports"

	apperrors "fisbap/internal/errors"
)

// Result is the terminal decision for one callback
type Result struct {
	Status int
	Ack    protocol.AckResponse
	// Reason is set on rejection
	Reason string
	// Record is set when the callback was stored
	Record *ports.Record
}

// Ingestor validates callbacks against the expected action and the known
// transaction set before persisting them.
type Ingestor struct {
	store     ports.MessageStorePort
	analytics ports.AnalyticsPort
	logger    *logging.Logger
}

// New wires an ingestor over the message store
func New(store ports.MessageStorePort, analytics ports.AnalyticsPort) *Ingestor {
	return &Ingestor{
		store:     store,
		analytics: analytics,
		logger:    logging.NewDefaultLogger("ingest"),
	}
}

func rejected(status int, reason string) *Result {
	return &Result{Status: status, Ack: protocol.NewAck(false), Reason: reason}
}

// Ingest runs the validation pipeline for one callback body delivered to
// the endpoint expecting expectedAction.
func (i *Ingestor) Ingest(ctx context.Context, expectedAction string, raw []byte) *Result {
	var env struct {
		Context protocol.Context `json:"context"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return rejected(http.StatusBadRequest, "missing-context")
	}

	c := env.Context
	if c.MessageID == "" || c.TransactionID == "" || c.Timestamp == "" || c.Action == "" {
		return rejected(http.StatusBadRequest, "missing-context")
	}
	if c.Action != expectedAction {
		return rejected(http.StatusBadRequest, "action-mismatch")
	}
	timestamp, err := protocol.ParseTimestamp(c.Timestamp)
	if err != nil {
		return rejected(http.StatusBadRequest, "bad-timestamp")
	}

	known, err := i.store.KnownTransaction(ctx, c.TransactionID)
	if err != nil {
		i.logger.Error("transaction lookup failed for %s: %v", c.TransactionID, err)
		return rejected(http.StatusInternalServerError, "internal")
	}
	if !known {
		return rejected(http.StatusNotFound, "unknown-transaction")
	}

	rec := ports.Record{
		Stage:         ports.Stage(expectedAction),
		TransactionID: c.TransactionID,
		MessageID:     c.MessageID,
		BPPID:         c.BppID,
		BPPURI:        c.BppURI,
		Payload:       raw,
		Timestamp:     timestamp,
	}
	i.derive(&rec)

	if err := i.store.Put(ctx, rec); err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeDuplicate) {
			// Redelivery of an already-stored callback acks cleanly
			return &Result{Status: http.StatusOK, Ack: protocol.NewAck(true)}
		}
		i.logger.Error("failed to store %s for %s: %v", expectedAction, c.TransactionID, err)
		return rejected(http.StatusInternalServerError, "internal")
	}

	if i.analytics != nil {
		i.analytics.Push(ctx, expectedAction, raw)
	}
	logging.LogEvent("callback_stored", map[string]any{
		"action":         expectedAction,
		"transaction_id": c.TransactionID,
		"message_id":     c.MessageID,
	})
	return &Result{Status: http.StatusOK, Ack: protocol.NewAck(true), Record: &rec}
}

// derive extracts the stage-specific secondary lookup keys
func (i *Ingestor) derive(rec *ports.Record) {
	doc, err := payload.Parse(string(rec.Stage), rec.Payload)
	if err != nil {
		return
	}
	switch rec.Stage {
	case ports.StageOnSearch:
		rec.ISIN = findISIN(doc)
	case ports.StageOnStatus:
		rec.PAN = findPAN(doc)
	}
}

// findISIN scans catalog items for a PLAN_IDENTIFIERS tag carrying an ISIN
func findISIN(doc *payload.Doc) string {
	providers, err := doc.Docs("message.catalog.providers")
	if err != nil {
		return ""
	}
	for _, prov := range providers {
		items, err := prov.Docs("items")
		if err != nil {
			continue
		}
		for _, item := range items {
			tags, err := item.Slice("tags")
			if err != nil {
				continue
			}
			if isin, ok := payload.TagValue(tags, "PLAN_IDENTIFIERS", "ISIN"); ok {
				return isin
			}
		}
	}
	return ""
}

// findPAN pulls the bare PAN out of a "pan:"-prefixed person id
func findPAN(doc *payload.Doc) string {
	fulfillments, err := doc.Docs("message.order.fulfillments")
	if err != nil {
		return ""
	}
	for _, f := range fulfillments {
		id := f.StringOr("customer.person.id", "")
		if strings.HasPrefix(id, "pan:") {
			return strings.TrimPrefix(id, "pan:")
		}
	}
	return ""
}
