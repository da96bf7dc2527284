package synth

import (
	"fmt"

	"fisbap/internal/errors"
)

// FlowKind names one investment workflow variant. All variants run the same
// select/init/confirm pipeline; the profile below says which fields each
// variant requires and where identifiers are sourced.
type FlowKind string

const (
	SIPNewFolio          FlowKind = "sip_new_folio"
	SIPExistingFolio     FlowKind = "sip_existing_folio"
	LumpsumNewFolio      FlowKind = "lumpsum_new_folio"
	LumpsumExistingFolio FlowKind = "lumpsum_existing_folio"
	Redemption           FlowKind = "redemption"
	PaymentRetry         FlowKind = "payment_retry"
)

type flowProfile struct {
	// FulfillmentType filters the seller's offered fulfillments
	FulfillmentType string
	// Recurring flows carry a schedule frequency on the fulfillment
	Recurring bool
	// ExistingFolio flows carry a FOLIO credential and the caller's IP
	ExistingFolio bool
}

var flowProfiles = map[FlowKind]flowProfile{
	SIPNewFolio:          {FulfillmentType: "SIP", Recurring: true},
	SIPExistingFolio:     {FulfillmentType: "SIP", Recurring: true, ExistingFolio: true},
	LumpsumNewFolio:      {FulfillmentType: "LUMPSUM"},
	LumpsumExistingFolio: {FulfillmentType: "LUMPSUM", ExistingFolio: true},
	Redemption:           {FulfillmentType: "REDEMPTION", ExistingFolio: true},
	PaymentRetry:         {},
}

// ParseFlowKind validates a caller-supplied flow name
func ParseFlowKind(s string) (FlowKind, error) {
	kind := FlowKind(s)
	if _, ok := flowProfiles[kind]; !ok {
		return "", errors.Validation(fmt.Sprintf("unknown flow kind %q", s))
	}
	return kind, nil
}

func (k FlowKind) profile() flowProfile {
	return flowProfiles[k]
}

// FulfillmentType returns the fulfillment type this flow selects for
func (k FlowKind) FulfillmentType() string {
	return flowProfiles[k].FulfillmentType
}
