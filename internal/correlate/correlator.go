// Package correlate resolves which stored callback a follow-up request
// builds on. Each protocol stage has its own lookup key: catalog follow-ups
// match on seller identity, order follow-ups additionally pin the exact
// message that opened the stage, and post-order flows ride the latest
// status callback.
package correlate

import (
	"context"

	"fisbap/internal/errors"
	"fisbap/pkg/ports"
)

// Correlator answers stage-specific lookups over the message store
type Correlator struct {
	store ports.MessageStorePort
}

// New builds a correlator over the given store
func New(store ports.MessageStorePort) *Correlator {
	return &Correlator{store: store}
}

// SellerKey identifies one seller platform within a transaction
type SellerKey struct {
	TransactionID string
	BPPID         string
	BPPURI        string
}

func (k SellerKey) validate() error {
	if k.TransactionID == "" {
		return errors.Validation("transaction_id is required")
	}
	if k.BPPID == "" || k.BPPURI == "" {
		return errors.Validation("bpp_id and bpp_uri are required")
	}
	return nil
}

// OnSearchFor finds the catalog callback a select builds on: the latest
// on_search from the given seller in this transaction.
func (c *Correlator) OnSearchFor(ctx context.Context, key SellerKey) (*ports.Record, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	return c.store.Latest(ctx, ports.Query{
		Stage:         ports.StageOnSearch,
		TransactionID: key.TransactionID,
		BPPID:         key.BPPID,
		BPPURI:        key.BPPURI,
	})
}

// OnSelectFor finds the quote callback an init builds on. When
// selectMessageID is set the lookup pins that exact exchange; otherwise the
// seller's latest on_select wins.
func (c *Correlator) OnSelectFor(ctx context.Context, key SellerKey, selectMessageID string) (*ports.Record, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	q := ports.Query{
		Stage:         ports.StageOnSelect,
		TransactionID: key.TransactionID,
		BPPID:         key.BPPID,
		BPPURI:        key.BPPURI,
	}
	if selectMessageID != "" {
		q.MessageID = selectMessageID
		return c.store.Exact(ctx, q)
	}
	return c.store.Latest(ctx, q)
}

// OnInitFor finds the terms callback a confirm builds on. The init exchange
// is always pinned by message id: confirming against the wrong terms is a
// financial error.
func (c *Correlator) OnInitFor(ctx context.Context, key SellerKey, initMessageID string) (*ports.Record, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	if initMessageID == "" {
		return nil, errors.Validation("message_id of the init exchange is required")
	}
	return c.store.Exact(ctx, ports.Query{
		Stage:         ports.StageOnInit,
		TransactionID: key.TransactionID,
		BPPID:         key.BPPID,
		BPPURI:        key.BPPURI,
		MessageID:     initMessageID,
	})
}

// LatestOnConfirm finds the order callback that status, cancel, and update
// requests reference for the seller-issued order id.
func (c *Correlator) LatestOnConfirm(ctx context.Context, key SellerKey) (*ports.Record, error) {
	return c.latestSeller(ctx, ports.StageOnConfirm, key)
}

// OnStatusFor finds the newest status callback from the given seller.
// Document-collection follow-ups (DigiLocker, e-sign) ride whatever state
// the order reached last rather than pinning an exact message.
func (c *Correlator) OnStatusFor(ctx context.Context, key SellerKey) (*ports.Record, error) {
	return c.latestSeller(ctx, ports.StageOnStatus, key)
}

// LatestOnUpdate finds the newest update callback, the source of the
// payment block a payment-retry update re-sends.
func (c *Correlator) LatestOnUpdate(ctx context.Context, key SellerKey) (*ports.Record, error) {
	return c.latestSeller(ctx, ports.StageOnUpdate, key)
}

// PaymentSource finds the record a payment-retry update carries its payment
// block from: the seller's newest on_update, or the on_init terms when no
// update callback has arrived yet.
func (c *Correlator) PaymentSource(ctx context.Context, key SellerKey) (*ports.Record, error) {
	rec, err := c.latestSeller(ctx, ports.StageOnUpdate, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, errors.ErrorTypeCorrelation) {
		return nil, err
	}
	return c.latestSeller(ctx, ports.StageOnInit, key)
}

func (c *Correlator) latestSeller(ctx context.Context, stage ports.Stage, key SellerKey) (*ports.Record, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	return c.store.Latest(ctx, ports.Query{
		Stage:         stage,
		TransactionID: key.TransactionID,
		BPPID:         key.BPPID,
		BPPURI:        key.BPPURI,
	})
}

// Callback serves the data views: exact when messageID is given, otherwise
// the transaction's latest record on the stage.
func (c *Correlator) Callback(ctx context.Context, stage ports.Stage, transactionID, messageID string) (*ports.Record, error) {
	if transactionID == "" {
		return nil, errors.Validation("transaction_id is required")
	}
	q := ports.Query{Stage: stage, TransactionID: transactionID, MessageID: messageID}
	if messageID != "" {
		return c.store.Exact(ctx, q)
	}
	return c.store.Latest(ctx, q)
}
