package orchestrate

import (
	"context"
	"time"

	"fisbap/internal/correlate"
	"fisbap/internal/dispatch"
	"fisbap/internal/errors"
	"fisbap/internal/logging"
	"fisbap/internal/payload"
	"fisbap/internal/synth"
	"fisbap/pkg/ports"
)

// FlowRequest carries everything a complete investment flow needs up front
type FlowRequest struct {
	TransactionID string
	Kind          synth.FlowKind

	Amount string
	PAN    string
	Phone  string
	Folio  string
	// ProviderID pins an AMC when the seller's catalog lists several
	ProviderID string
	// ItemID pins the plan to buy; empty picks the seller's first plan
	ItemID string

	// SIP schedule
	Cadence string
	Repeat  int
	Day     int

	PaymentMode string
	BankCode    string
	BankAccount string
	AccountName string
	IPAddress   string

	// Investor data posted to the seller's KYC form when one is required
	FormFields map[string]string
}

// FlowResult reports how far the flow got and the final order callback
type FlowResult struct {
	TransactionID string   `json:"transaction_id"`
	OrderID       string   `json:"order_id,omitempty"`
	ConfirmedAt   string   `json:"confirmed_at,omitempty"`
	OnConfirm     []byte   `json:"-"`
	Steps         []string `json:"steps"`
}

// Flow runs complete multi-step exchanges: each outbound step waits for its
// callback before the next step synthesizes from it.
type Flow struct {
	synth      *synth.Synthesizer
	dispatcher *dispatch.Dispatcher
	correlator *correlate.Correlator
	waiter     *Waiter
	store      ports.MessageStorePort
	kyc        ports.KYCPort
	logger     *logging.Logger
}

// NewFlow wires the flow orchestrator
func NewFlow(s *synth.Synthesizer, d *dispatch.Dispatcher, c *correlate.Correlator,
	w *Waiter, store ports.MessageStorePort, kyc ports.KYCPort) *Flow {
	return &Flow{
		synth:      s,
		dispatcher: d,
		correlator: c,
		waiter:     w,
		store:      store,
		kyc:        kyc,
		logger:     logging.NewDefaultLogger("flow"),
	}
}

// Complete drives search through confirm for one investment. The first
// seller to answer the search wins the flow; callers wanting a specific
// seller run the steps individually.
func (f *Flow) Complete(ctx context.Context, req FlowRequest) (*FlowResult, error) {
	if req.TransactionID == "" {
		return nil, errors.Validation("transaction_id is required")
	}
	result := &FlowResult{TransactionID: req.TransactionID}

	// search → on_search
	env, err := f.synth.Search(req.TransactionID)
	if err != nil {
		return result, err
	}
	if _, err := f.dispatcher.Dispatch(ctx, env); err != nil {
		return result, err
	}
	result.Steps = append(result.Steps, "search")

	onSearch, err := f.waiter.WaitFor(ctx, ports.Query{
		Stage: ports.StageOnSearch, TransactionID: req.TransactionID,
	})
	if err != nil {
		return result, err
	}
	result.Steps = append(result.Steps, "on_search")

	// select → on_select
	selEnv, err := f.synth.Select(onSearch, synth.SelectParams{
		Kind:       req.Kind,
		Amount:     req.Amount,
		PAN:        req.PAN,
		Phone:      req.Phone,
		Folio:      req.Folio,
		ProviderID: req.ProviderID,
		ItemID:     req.ItemID,
		Cadence:    req.Cadence,
		Repeat:     req.Repeat,
		Day:        req.Day,
	})
	if err != nil {
		return result, err
	}
	if _, err := f.dispatcher.Dispatch(ctx, selEnv); err != nil {
		return result, err
	}
	result.Steps = append(result.Steps, "select")

	seller := correlate.SellerKey{
		TransactionID: req.TransactionID,
		BPPID:         onSearch.BPPID,
		BPPURI:        onSearch.BPPURI,
	}
	onSelect, err := f.waiter.WaitFor(ctx, ports.Query{
		Stage:         ports.StageOnSelect,
		TransactionID: req.TransactionID,
		BPPID:         seller.BPPID,
		BPPURI:        seller.BPPURI,
	})
	if err != nil {
		return result, err
	}
	result.Steps = append(result.Steps, "on_select")

	// KYC bridge when the seller asked for a form
	onSelect, err = f.maybeSubmitForm(ctx, req, seller, onSelect)
	if err != nil {
		return result, err
	}

	// init → on_init
	initEnv, err := f.synth.Init(onSelect, synth.InitParams{
		Kind:        req.Kind,
		PAN:         req.PAN,
		Phone:       req.Phone,
		Folio:       req.Folio,
		IPAddress:   req.IPAddress,
		PaymentMode: req.PaymentMode,
		BankCode:    req.BankCode,
		BankAccount: req.BankAccount,
		AccountName: req.AccountName,
	})
	if err != nil {
		return result, err
	}
	if _, err := f.dispatcher.Dispatch(ctx, initEnv); err != nil {
		return result, err
	}
	result.Steps = append(result.Steps, "init")

	onInit, err := f.waiter.WaitFor(ctx, ports.Query{
		Stage:         ports.StageOnInit,
		TransactionID: req.TransactionID,
		BPPID:         seller.BPPID,
		BPPURI:        seller.BPPURI,
	})
	if err != nil {
		return result, err
	}
	result.Steps = append(result.Steps, "on_init")

	// confirm → on_confirm
	confirmEnv, err := f.synth.Confirm(onInit)
	if err != nil {
		return result, err
	}
	if _, err := f.dispatcher.Dispatch(ctx, confirmEnv); err != nil {
		return result, err
	}
	result.Steps = append(result.Steps, "confirm")

	onConfirm, err := f.waiter.WaitFor(ctx, ports.Query{
		Stage:         ports.StageOnConfirm,
		TransactionID: req.TransactionID,
		BPPID:         seller.BPPID,
		BPPURI:        seller.BPPURI,
	})
	if err != nil {
		return result, err
	}
	result.Steps = append(result.Steps, "on_confirm")

	result.OnConfirm = onConfirm.Payload
	if doc, err := payload.Parse(string(ports.StageOnConfirm), onConfirm.Payload); err == nil {
		result.OrderID = doc.StringOr("message.order.id", "")
		result.ConfirmedAt = doc.StringOr("context.timestamp", "")
	}
	return result, nil
}

// maybeSubmitForm runs the KYC bridge when the on_select carries an xinput
// form: post the investor's data to the form host, persist the issued
// submission id, send the follow-up select echoing it, and wait for the
// seller's next on_select.
func (f *Flow) maybeSubmitForm(ctx context.Context, req FlowRequest,
	seller correlate.SellerKey, onSelect *ports.Record) (*ports.Record, error) {

	doc, err := payload.Parse(string(ports.StageOnSelect), onSelect.Payload)
	if err != nil {
		return nil, err
	}
	formURL := doc.StringOr("message.order.xinput.form.url", "")
	if formURL == "" {
		return onSelect, nil
	}
	formID := doc.StringOr("message.order.xinput.form.id", "")

	f.logger.Info("submitting KYC form for transaction %s", req.TransactionID)
	sub, err := f.kyc.SubmitForm(ctx, formURL, req.FormFields)
	if err != nil {
		return nil, err
	}
	if err := f.store.PutSubmission(ctx, req.TransactionID, formID, sub.SubmissionID); err != nil {
		return nil, err
	}

	env, err := f.synth.FormSelect(onSelect, sub.SubmissionID)
	if err != nil {
		return nil, err
	}
	if _, err := f.dispatcher.Dispatch(ctx, env); err != nil {
		return nil, err
	}

	// The follow-up on_select must be newer than the one already stored
	return f.waitNewer(ctx, ports.Query{
		Stage:         ports.StageOnSelect,
		TransactionID: req.TransactionID,
		BPPID:         seller.BPPID,
		BPPURI:        seller.BPPURI,
	}, onSelect.MessageID)
}

// waitNewer polls until the latest record differs from previousMessageID,
// bounded by the same deadline as a plain wait.
func (f *Flow) waitNewer(ctx context.Context, q ports.Query, previousMessageID string) (*ports.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, f.waiter.timeout)
	defer cancel()

	ticker := time.NewTicker(f.waiter.interval)
	defer ticker.Stop()

	for {
		rec, err := f.store.Latest(ctx, q)
		if err == nil && rec.MessageID != previousMessageID {
			return rec, nil
		}
		if err != nil && !errors.Is(err, errors.ErrorTypeCorrelation) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.Timeout("wait for follow-up " + string(q.Stage))
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
