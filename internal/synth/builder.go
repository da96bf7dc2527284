// Package synth builds outbound protocol payloads. Every builder is a pure
// transformation from a stored prior-stage record plus caller-supplied
// fields to the next request body; the only nondeterminism is the fresh
// message id and timestamp. Financial fields are never defaulted: a missing
// amount or account number in the prior record is a hard error.
package synth

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"fisbap/internal/errors"
	"fisbap/internal/payload"
	"fisbap/internal/protocol"
	"fisbap/pkg/config"
	"fisbap/pkg/ports"
)

// Cancellation reason code sent on every buyer-initiated cancel
const cancelReasonCode = "07"

// Synthesizer builds outbound envelopes for one configured buyer app
type Synthesizer struct {
	subscriber config.SubscriberConfig
	network    config.NetworkConfig
	now        func() time.Time
	newID      func() string
}

// New builds a synthesizer from the buyer app's identity and network config
func New(subscriber config.SubscriberConfig, network config.NetworkConfig) *Synthesizer {
	return &Synthesizer{
		subscriber: subscriber,
		network:    network,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// envelope assembles the protocol context. Seller identity is empty on
// broadcast actions; messageID is generated when the caller didn't pin one.
func (s *Synthesizer) envelope(action, transactionID, messageID, bppID, bppURI string, message any) *protocol.Envelope {
	if messageID == "" {
		messageID = s.newID()
	}
	return &protocol.Envelope{
		Context: protocol.Context{
			Location: protocol.Location{
				Country: protocol.CodeHolder{Code: protocol.CountryCode},
				City:    protocol.CodeHolder{Code: protocol.CityCode},
			},
			Domain:        protocol.Domain,
			Timestamp:     protocol.Timestamp(s.now()),
			BapID:         s.subscriber.BapID,
			BapURI:        s.subscriber.BapURI,
			TransactionID: transactionID,
			MessageID:     messageID,
			Version:       protocol.Version,
			TTL:           protocol.TTL,
			BppID:         bppID,
			BppURI:        bppURI,
			Action:        action,
		},
		Message: message,
	}
}

// distributorCreds identifies the distributor on the network: ARN always,
// EUIN when the distributor has one.
func (s *Synthesizer) distributorCreds() []protocol.Cred {
	creds := []protocol.Cred{{ID: s.subscriber.ARN, Type: "ARN"}}
	if s.subscriber.EUIN != "" {
		creds = append(creds, protocol.Cred{ID: s.subscriber.EUIN, Type: "EUIN"})
	}
	return creds
}

// bapTerms is the buyer's static terms-of-engagement block
func (s *Synthesizer) bapTerms() protocol.Tag {
	return protocol.Tag{
		Descriptor: protocol.Descriptor{Code: "BAP_TERMS"},
		List: []protocol.TagEntry{
			{Descriptor: protocol.Descriptor{Code: "STATIC_TERMS"}, Value: s.network.BuyerTermsURL},
			{Descriptor: protocol.Descriptor{Code: "OFFLINE_CONTRACT"}, Value: "true"},
		},
	}
}

// bppTerms is the seller's terms block; sellers publish under their own
// legal-notice namespace.
func (s *Synthesizer) bppTerms() protocol.Tag {
	return protocol.Tag{
		Descriptor: protocol.Descriptor{Code: "BPP_TERMS"},
		List: []protocol.TagEntry{
			{Descriptor: protocol.Descriptor{Code: "STATIC_TERMS"}, Value: s.network.SellerTermsURL},
			{Descriptor: protocol.Descriptor{Code: "OFFLINE_CONTRACT"}, Value: "true"},
		},
	}
}

// Search builds the catalog broadcast: no seller identity, mutual-funds
// category filter, distributor ARN credential, buyer terms.
func (s *Synthesizer) Search(transactionID string) (*protocol.Envelope, error) {
	if transactionID == "" {
		return nil, errors.Validation("transaction_id is required")
	}

	intent := protocol.Intent{
		Category: protocol.IntentCategory{
			Descriptor: protocol.Descriptor{Code: "MUTUAL_FUNDS"},
		},
		Fulfillment: protocol.IntentFulfillment{
			Agent: protocol.Agent{
				Organization: &protocol.Organization{
					Creds: s.distributorCreds(),
				},
			},
		},
		Tags: []protocol.Tag{s.bapTerms()},
	}
	return s.envelope(protocol.ActionSearch, transactionID, "", "", "",
		protocol.IntentMessage{Intent: intent}), nil
}

// SelectParams are the caller-supplied fields for a select
type SelectParams struct {
	Kind   FlowKind
	Amount string
	PAN    string
	Phone  string
	Folio  string
	// ProviderID pins an AMC when the seller's catalog lists several;
	// required in that case unless ItemID already identifies one
	ProviderID string
	// ItemID pins a specific plan item; empty picks the first plan offered
	ItemID string
	// SIP schedule inputs
	Cadence string
	Repeat  int
	Day     int
}

// Select builds the order proposal from a stored on_search record. The
// provider and item are carried from the seller's catalog; the fulfillment
// is the seller's offering matching the flow's type.
func (s *Synthesizer) Select(onSearch *ports.Record, params SelectParams) (*protocol.Envelope, error) {
	profile := params.Kind.profile()
	if profile.FulfillmentType == "" {
		return nil, errors.Validation(fmt.Sprintf("flow %q does not issue select", params.Kind))
	}
	if params.Amount == "" {
		return nil, errors.Validation("amount is required")
	}
	if params.PAN == "" {
		return nil, errors.Validation("pan is required")
	}
	if profile.ExistingFolio && params.Folio == "" {
		return nil, errors.Validation("folio is required for existing-folio flows")
	}

	doc, err := payload.Parse(string(ports.StageOnSearch), onSearch.Payload)
	if err != nil {
		return nil, err
	}
	providers, err := doc.Docs("message.catalog.providers")
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, errors.MalformedUpstream(string(ports.StageOnSearch), "message.catalog.providers")
	}
	provider, item, err := pickProviderItem(providers, params.ProviderID, params.ItemID)
	if err != nil {
		return nil, err
	}
	providerID, err := provider.String("id")
	if err != nil {
		return nil, err
	}
	itemID, err := item.String("id")
	if err != nil {
		return nil, err
	}

	fulfillmentID, err := pickFulfillment(provider, item, profile.FulfillmentType)
	if err != nil {
		return nil, err
	}

	customer := &protocol.Customer{
		Person: protocol.Person{ID: "pan:" + params.PAN},
	}
	if params.Phone != "" {
		customer.Contact = &protocol.Contact{Phone: params.Phone}
	}
	if profile.ExistingFolio {
		customer.Person.Creds = []protocol.Cred{{ID: params.Folio, Type: "FOLIO"}}
	}

	fulfillment := protocol.Fulfillment{
		ID:       fulfillmentID,
		Type:     profile.FulfillmentType,
		Customer: customer,
	}
	if profile.Recurring {
		freq, err := BuildFrequency(params.Cadence, params.Repeat, params.Day, s.now())
		if err != nil {
			return nil, err
		}
		fulfillment.Stops = []protocol.Stop{
			{Time: protocol.StopTime{Schedule: protocol.Schedule{Frequency: freq}}},
		}
	}

	order := protocol.Order{
		Provider: protocol.ProviderRef{ID: providerID},
		Items: []protocol.Item{{
			ID: itemID,
			Quantity: &protocol.Quantity{Selected: protocol.Selected{
				Measure: protocol.Measure{Value: params.Amount, Unit: "INR"},
			}},
			FulfillmentIDs: []string{fulfillmentID},
		}},
		Fulfillments: []protocol.Fulfillment{fulfillment},
	}

	return s.envelope(protocol.ActionSelect, onSearch.TransactionID, "",
		onSearch.BPPID, onSearch.BPPURI, protocol.OrderMessage{Order: order}), nil
}

// FormSelect builds the follow-up select that folds a vendor form
// submission back into the exchange. Order identity is carried from the
// stored on_select; the xinput block echoes the form id and submission id.
func (s *Synthesizer) FormSelect(onSelect *ports.Record, submissionID string) (*protocol.Envelope, error) {
	return s.formEcho(onSelect, submissionID)
}

// DocumentSelect builds the follow-up select that returns a post-order
// document form (DigiLocker, e-sign) to the seller. These forms arrive on
// a status callback after confirm, so order identity is carried from the
// latest on_status rather than an on_select.
func (s *Synthesizer) DocumentSelect(onStatus *ports.Record, submissionID string) (*protocol.Envelope, error) {
	return s.formEcho(onStatus, submissionID)
}

func (s *Synthesizer) formEcho(rec *ports.Record, submissionID string) (*protocol.Envelope, error) {
	if submissionID == "" {
		return nil, errors.Validation("submission_id is required")
	}

	doc, err := payload.Parse(string(rec.Stage), rec.Payload)
	if err != nil {
		return nil, err
	}
	order, err := doc.Map("message.order")
	if err != nil {
		return nil, err
	}
	formID, err := doc.String("message.order.xinput.form.id")
	if err != nil {
		return nil, err
	}

	carried := map[string]any{
		"provider": order["provider"],
		"items":    order["items"],
		"xinput": map[string]any{
			"form":          map[string]any{"id": formID},
			"form_response": map[string]any{"submission_id": submissionID},
		},
	}
	if f, ok := order["fulfillments"]; ok {
		carried["fulfillments"] = f
	}

	return s.envelope(protocol.ActionSelect, rec.TransactionID, "",
		rec.BPPID, rec.BPPURI, map[string]any{"order": carried}), nil
}

// InitParams are the caller-supplied fields for an init
type InitParams struct {
	Kind        FlowKind
	PAN         string
	Phone       string
	Folio       string
	IPAddress   string
	PaymentMode string
	BankCode    string
	BankAccount string
	AccountName string
}

// Init builds the order initialization from a stored on_select record. Item
// and fulfillment identity come from the seller's quote; the payment amount
// comes from the quoted price, never from a default.
func (s *Synthesizer) Init(onSelect *ports.Record, params InitParams) (*protocol.Envelope, error) {
	profile := params.Kind.profile()
	if params.PAN == "" {
		return nil, errors.Validation("pan is required")
	}
	if profile.ExistingFolio {
		if params.Folio == "" {
			return nil, errors.Validation("folio is required for existing-folio flows")
		}
		if params.IPAddress == "" {
			return nil, errors.Validation("ip_address is required for existing-folio flows")
		}
	}

	doc, err := payload.Parse(string(ports.StageOnSelect), onSelect.Payload)
	if err != nil {
		return nil, err
	}
	providerID, err := doc.String("message.order.provider.id")
	if err != nil {
		return nil, err
	}
	itemID, err := doc.String("message.order.items.0.id")
	if err != nil {
		return nil, err
	}
	fulfillmentID, fulfillmentType, err := initFulfillment(doc, profile)
	if err != nil {
		return nil, err
	}
	amount, err := doc.String("message.order.quote.price.value")
	if err != nil {
		return nil, err
	}

	customer := &protocol.Customer{Person: protocol.Person{ID: "pan:" + params.PAN}}
	if params.Phone != "" {
		customer.Contact = &protocol.Contact{Phone: params.Phone}
	}
	if profile.ExistingFolio {
		customer.Person.Creds = []protocol.Cred{
			{ID: params.Folio, Type: "FOLIO"},
			{ID: params.IPAddress, Type: "IP_ADDRESS"},
		}
	}

	fulfillment := protocol.Fulfillment{
		ID:       fulfillmentID,
		Type:     fulfillmentType,
		Customer: customer,
	}

	mode := params.PaymentMode
	if mode == "" {
		return nil, errors.Validation("payment_mode is required")
	}
	pay := protocol.Payment{
		CollectedBy: "BPP",
		Params: &protocol.PaymentParams{
			Amount:                  amount,
			Currency:                "INR",
			SourceBankCode:          params.BankCode,
			SourceBankAccountNumber: params.BankAccount,
			SourceBankAccountName:   params.AccountName,
		},
		Type: "PRE_FULFILLMENT",
		Tags: []protocol.Tag{{
			Descriptor: protocol.Descriptor{Code: "PAYMENT_METHOD"},
			List: []protocol.TagEntry{
				{Descriptor: protocol.Descriptor{Code: "MODE"}, Value: mode},
			},
		}},
	}

	order := protocol.Order{
		Provider: protocol.ProviderRef{ID: providerID},
		Items: []protocol.Item{{
			ID:             itemID,
			FulfillmentIDs: []string{fulfillmentID},
		}},
		Fulfillments: []protocol.Fulfillment{fulfillment},
		Payments:     []protocol.Payment{pay},
		Tags:         []protocol.Tag{s.bapTerms()},
	}

	return s.envelope(protocol.ActionInit, onSelect.TransactionID, "",
		onSelect.BPPID, onSelect.BPPURI, protocol.OrderMessage{Order: order}), nil
}

// Confirm builds the final order confirmation from a stored on_init record.
// Items, fulfillments, and payments are carried verbatim from the seller's
// terms; the payment timing type is classified from the declared method.
func (s *Synthesizer) Confirm(onInit *ports.Record) (*protocol.Envelope, error) {
	doc, err := payload.Parse(string(ports.StageOnInit), onInit.Payload)
	if err != nil {
		return nil, err
	}
	order, err := doc.Map("message.order")
	if err != nil {
		return nil, err
	}
	providerID, err := doc.String("message.order.provider.id")
	if err != nil {
		return nil, err
	}
	items, err := doc.Slice("message.order.items")
	if err != nil {
		return nil, err
	}
	fulfillments, err := doc.Slice("message.order.fulfillments")
	if err != nil {
		return nil, err
	}
	payments, err := doc.Slice("message.order.payments")
	if err != nil {
		return nil, err
	}

	// Classify payment timing from the declared method
	for _, p := range payments {
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		method := ""
		if tags, ok := pm["tags"].([]any); ok {
			method, _ = payload.TagValue(tags, "PAYMENT_METHOD", "MODE")
		}
		pm["type"] = PaymentTypeFor(method)
	}

	carried := map[string]any{
		"provider":     map[string]any{"id": providerID},
		"items":        items,
		"fulfillments": fulfillments,
		"payments":     payments,
		"tags":         []protocol.Tag{s.bapTerms(), s.bppTerms()},
	}
	if id, ok := order["id"].(string); ok && id != "" {
		carried["id"] = id
	}

	return s.envelope(protocol.ActionConfirm, onInit.TransactionID, "",
		onInit.BPPID, onInit.BPPURI, map[string]any{"order": carried}), nil
}

// Status builds an order status poll
func (s *Synthesizer) Status(transactionID, bppID, bppURI, orderID string) (*protocol.Envelope, error) {
	if orderID == "" {
		return nil, errors.Validation("order_id is required")
	}
	return s.envelope(protocol.ActionStatus, transactionID, "", bppID, bppURI,
		map[string]any{"order_id": orderID}), nil
}

// Cancel builds a buyer-initiated cancellation with the caller's IP
// attached as a display tag.
func (s *Synthesizer) Cancel(transactionID, bppID, bppURI, orderID, ipAddress string) (*protocol.Envelope, error) {
	if orderID == "" {
		return nil, errors.Validation("order_id is required")
	}
	if ipAddress == "" {
		return nil, errors.Validation("ip_address is required")
	}

	display := true
	msg := protocol.CancelMessage{
		OrderID:              orderID,
		CancellationReasonID: cancelReasonCode,
		Tags: []protocol.Tag{{
			Display:    &display,
			Descriptor: protocol.Descriptor{Code: "CONSUMER_INFO"},
			List: []protocol.TagEntry{
				{Descriptor: protocol.Descriptor{Code: "IP_ADDRESS"}, Value: ipAddress},
			},
		}},
	}
	return s.envelope(protocol.ActionCancel, transactionID, "", bppID, bppURI, msg), nil
}

// Update builds the payment-retry update: it retargets order.payments,
// re-sending the payment block from the stored on_update record, or from
// the on_init terms when the seller never sent an update callback. The
// on_init order carries no id yet, so the caller supplies the confirmed
// order id as a fallback.
func (s *Synthesizer) Update(source *ports.Record, fallbackOrderID string) (*protocol.Envelope, error) {
	doc, err := payload.Parse(string(source.Stage), source.Payload)
	if err != nil {
		return nil, err
	}
	orderID := doc.StringOr("message.order.id", "")
	if orderID == "" {
		orderID = fallbackOrderID
	}
	if orderID == "" {
		return nil, errors.MalformedUpstream(string(source.Stage), "message.order.id")
	}
	payments, err := doc.Slice("message.order.payments")
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, errors.MalformedUpstream(string(source.Stage), "message.order.payments")
	}

	msg := map[string]any{
		"update_target": "order.payments",
		"order": map[string]any{
			"id":       orderID,
			"payments": []any{payments[0]},
		},
	}
	return s.envelope(protocol.ActionUpdate, source.TransactionID, "",
		source.BPPID, source.BPPURI, msg), nil
}

// PaymentTypeFor maps a declared payment method to the timing type the
// network expects on confirm.
func PaymentTypeFor(method string) string {
	switch method {
	case "MANDATE_REGISTRATION":
		return "PRE_FULFILLMENT"
	case "UPI_ON_DELIVERY":
		return "ON_FULFILLMENT"
	default:
		return "POST_FULFILLMENT"
	}
}

// pickProviderItem resolves which provider and item a select orders. A
// provider pin narrows the catalog directly; an item pin is searched across
// every provider the seller listed; with neither pin the catalog must name
// a single provider, since choosing one silently would order from the
// wrong AMC.
func pickProviderItem(providers []*payload.Doc, providerID, itemID string) (*payload.Doc, *payload.Doc, error) {
	if providerID != "" {
		for _, p := range providers {
			if p.StringOr("id", "") != providerID {
				continue
			}
			item, err := pickItem(p, itemID)
			if err != nil {
				return nil, nil, err
			}
			return p, item, nil
		}
		return nil, nil, errors.NotFound(fmt.Sprintf("provider %s in catalog", providerID))
	}

	if itemID != "" {
		var provider, item *payload.Doc
		for _, p := range providers {
			found, err := pickItem(p, itemID)
			if err != nil {
				continue
			}
			if provider != nil {
				return nil, nil, errors.Validation(
					fmt.Sprintf("item %s offered by multiple providers; provider_id is required", itemID))
			}
			provider, item = p, found
		}
		if provider == nil {
			return nil, nil, errors.NotFound(fmt.Sprintf("item %s in catalog", itemID))
		}
		return provider, item, nil
	}

	if len(providers) > 1 {
		return nil, nil, errors.Validation("catalog lists multiple providers; provider_id or item_id is required")
	}
	item, err := pickItem(providers[0], "")
	if err != nil {
		return nil, nil, err
	}
	return providers[0], item, nil
}

// pickItem chooses the catalog item a select orders: the pinned item when
// the caller named one, otherwise the provider's first plan (an item that
// parents to a scheme), otherwise the first item.
func pickItem(provider *payload.Doc, itemID string) (*payload.Doc, error) {
	items, err := provider.Docs("items")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.MalformedUpstream(string(ports.StageOnSearch), "message.catalog.providers.0.items")
	}
	if itemID != "" {
		for _, item := range items {
			if item.StringOr("id", "") == itemID {
				return item, nil
			}
		}
		return nil, errors.NotFound(fmt.Sprintf("item %s in catalog", itemID))
	}
	for _, item := range items {
		if item.Has("parent_item_id") {
			return item, nil
		}
	}
	return items[0], nil
}

// pickFulfillment resolves the fulfillment id for the requested type,
// honoring the item's own fulfillment references when present.
func pickFulfillment(provider, item *payload.Doc, fulfillmentType string) (string, error) {
	fulfillments, err := provider.Docs("fulfillments")
	if err != nil {
		return "", errors.MalformedUpstream(string(ports.StageOnSearch), "message.catalog.providers.0.fulfillments")
	}

	allowed := map[string]bool{}
	if ids, err := item.Slice("fulfillment_ids"); err == nil {
		for _, raw := range ids {
			if id, ok := raw.(string); ok {
				allowed[id] = true
			}
		}
	}

	for _, f := range fulfillments {
		if f.StringOr("type", "") != fulfillmentType {
			continue
		}
		id := f.StringOr("id", "")
		if id == "" {
			continue
		}
		if len(allowed) > 0 && !allowed[id] {
			continue
		}
		return id, nil
	}
	return "", errors.NoMatchingFulfillment(fulfillmentType)
}

// initFulfillment carries the fulfillment identity from the on_select
// order. Existing-folio flows source the id from the quote breakup when the
// order-level fulfillment omits it.
func initFulfillment(doc *payload.Doc, profile flowProfile) (string, string, error) {
	id := doc.StringOr("message.order.fulfillments.0.id", "")
	typ := doc.StringOr("message.order.fulfillments.0.type", "")
	if id == "" && profile.ExistingFolio {
		if breakup, err := doc.Docs("message.order.quote.breakup"); err == nil {
			for _, entry := range breakup {
				if fid := entry.StringOr("item.fulfillment_ids.0", ""); fid != "" {
					id = fid
					break
				}
			}
		}
	}
	if id == "" {
		return "", "", errors.MalformedUpstream(string(ports.StageOnSelect), "message.order.fulfillments.0.id")
	}
	if typ == "" {
		typ = profile.FulfillmentType
	}
	return id, typ, nil
}
