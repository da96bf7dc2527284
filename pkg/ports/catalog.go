package ports

import "context"

// Provider is an asset-management company from a catalog broadcast
type Provider struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	BPPID         string `json:"bpp_id"`
	BPPURI        string `json:"bpp_uri"`
	TransactionID string `json:"transaction_id"`
}

// Scheme is one mutual-fund scheme offered by a provider
type Scheme struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
}

// Plan is a purchasable plan under a scheme, keyed by ISIN
type Plan struct {
	ID       string `json:"id"`
	SchemeID string `json:"scheme_id"`
	Name     string `json:"name"`
	ISIN     string `json:"isin"`
	AMFIID   string `json:"amfi_identifier,omitempty"`
	RTACode  string `json:"rta_identifier,omitempty"`
	Plan     string `json:"plan,omitempty"`
	Option   string `json:"option,omitempty"`
}

// FulfillmentOption is one way a plan can be bought or redeemed, with the
// seller's amount thresholds
type FulfillmentOption struct {
	ID             string  `json:"id"`
	PlanID         string  `json:"plan_id"`
	Type           string  `json:"type"`
	AmountMin      float64 `json:"amount_min"`
	AmountMax      float64 `json:"amount_max"`
	AmountMultiple float64 `json:"amount_multiple"`
}

// PlanMatch joins a plan to its provider and transaction for follow-ups
type PlanMatch struct {
	Plan         Plan
	Scheme       Scheme
	Provider     Provider
	Fulfillments []FulfillmentOption
}

// CatalogPort denormalizes on_search broadcasts into a queryable scheme
// catalog.
type CatalogPort interface {
	// Import denormalizes one on_search payload
	Import(ctx context.Context, transactionID string, payload []byte) (int, error)

	// SchemeByISIN resolves a plan and its offering provider by ISIN
	SchemeByISIN(ctx context.Context, isin string) (*PlanMatch, error)

	// Plans lists every purchasable plan with its scheme and provider
	Plans(ctx context.Context) ([]PlanMatch, error)

	// Providers lists all imported providers
	Providers(ctx context.Context) ([]Provider, error)
}
