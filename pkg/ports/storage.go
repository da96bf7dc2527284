package ports

import (
	"context"
	"time"
)

// Stage names the message tables. Every protocol action, outbound and
// inbound, persists to its own stage.
type Stage string

const (
	StageSearch    Stage = "search"
	StageSelect    Stage = "select"
	StageInit      Stage = "init"
	StageConfirm   Stage = "confirm"
	StageStatus    Stage = "status"
	StageUpdate    Stage = "update"
	StageCancel    Stage = "cancel"
	StageOnSearch  Stage = "on_search"
	StageOnSelect  Stage = "on_select"
	StageOnInit    Stage = "on_init"
	StageOnConfirm Stage = "on_confirm"
	StageOnStatus  Stage = "on_status"
	StageOnUpdate  Stage = "on_update"
	StageOnCancel  Stage = "on_cancel"
)

// Stages lists every stage in wire order
var Stages = []Stage{
	StageSearch, StageSelect, StageInit, StageConfirm,
	StageStatus, StageUpdate, StageCancel,
	StageOnSearch, StageOnSelect, StageOnInit, StageOnConfirm,
	StageOnStatus, StageOnUpdate, StageOnCancel,
}

// Record is one persisted protocol message
type Record struct {
	Stage         Stage     `json:"stage"`
	TransactionID string    `json:"transaction_id"`
	MessageID     string    `json:"message_id"`
	BPPID         string    `json:"bpp_id,omitempty"`
	BPPURI        string    `json:"bpp_uri,omitempty"`
	Payload       []byte    `json:"payload"`
	Timestamp     time.Time `json:"timestamp"`

	// Derived fields, populated best-effort on specific stages
	ISIN string `json:"isin,omitempty"` // on_search
	PAN  string `json:"pan,omitempty"`  // on_status

	CreatedAt time.Time `json:"created_at"`
}

// Query selects stored records. TransactionID is always required; the other
// fields narrow the match. Results order by message timestamp descending, so
// the first record is the latest.
type Query struct {
	Stage         Stage
	TransactionID string
	MessageID     string
	BPPID         string
	BPPURI        string
	// PAN is a secondary key on on_status records; it may stand alone
	// without a transaction id.
	PAN string
}

// MessageStorePort persists every message that crosses the adapter and
// answers the correlation lookups that drive follow-up synthesis.
type MessageStorePort interface {
	// Put stores a record. A second record with the same message id on the
	// same stage is a duplicate error.
	Put(ctx context.Context, rec Record) error

	// Latest returns the newest record matching the query
	Latest(ctx context.Context, q Query) (*Record, error)

	// Exact returns the record carrying the query's exact message id
	Exact(ctx context.Context, q Query) (*Record, error)

	// List returns all records matching the query, newest first
	List(ctx context.Context, q Query) ([]Record, error)

	// Exists reports whether any record matches the query
	Exists(ctx context.Context, q Query) (bool, error)

	// KnownTransaction reports whether the transaction id was ever seen on
	// any outbound stage
	KnownTransaction(ctx context.Context, transactionID string) (bool, error)

	// PutSubmission records a form submission id issued by a vendor form host
	PutSubmission(ctx context.Context, transactionID, formID, submissionID string) error

	// HealthCheck verifies the backing store is reachable
	HealthCheck(ctx context.Context) error

	// Close releases the backing store
	Close() error
}
