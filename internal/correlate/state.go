package correlate

import (
	"context"

	"fisbap/internal/errors"
	"fisbap/pkg/ports"
)

// FlowStage is the explicit protocol state of a transaction, derived from
// the newest stored record across all stages.
type FlowStage string

const (
	StageNone          FlowStage = "none"
	StageSearched      FlowStage = "searched"
	StageSelected      FlowStage = "selected"
	StageFormSubmitted FlowStage = "form_submitted"
	StageInitialized   FlowStage = "initialized"
	StageConfirmed     FlowStage = "confirmed"
	StageStatusPolled  FlowStage = "status_polled"
	StageCancelled     FlowStage = "cancelled"
	StageUpdated       FlowStage = "updated"
)

// Callback stages in pipeline order, each mapped to the flow state the
// transaction reached. Later entries win on timestamp ties.
var stageOrder = []struct {
	stage ports.Stage
	flow  FlowStage
}{
	{ports.StageOnSearch, StageSearched},
	{ports.StageOnSelect, StageSelected},
	{ports.StageOnInit, StageInitialized},
	{ports.StageOnConfirm, StageConfirmed},
	{ports.StageOnStatus, StageStatusPolled},
	{ports.StageOnUpdate, StageUpdated},
	{ports.StageOnCancel, StageCancelled},
}

// TransactionState is one transaction's current position in the pipeline
type TransactionState struct {
	TransactionID string    `json:"transaction_id"`
	Stage         FlowStage `json:"stage"`
	// Latest is the record that put the transaction in this stage
	Latest *ports.Record `json:"latest,omitempty"`
}

// State reports how far a transaction has progressed: the callback stage
// with the newest stored record wins. A transaction with outbound messages
// but no callbacks yet reports StageNone.
func (c *Correlator) State(ctx context.Context, transactionID string) (*TransactionState, error) {
	if transactionID == "" {
		return nil, errors.Validation("transaction_id is required")
	}

	known, err := c.store.KnownTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, errors.NotFound("transaction " + transactionID)
	}

	state := &TransactionState{TransactionID: transactionID, Stage: StageNone}
	for _, entry := range stageOrder {
		rec, err := c.store.Latest(ctx, ports.Query{
			Stage:         entry.stage,
			TransactionID: transactionID,
		})
		if err != nil {
			if errors.Is(err, errors.ErrorTypeCorrelation) {
				continue
			}
			return nil, err
		}
		if state.Latest == nil || !rec.Timestamp.Before(state.Latest.Timestamp) {
			state.Stage = entry.flow
			state.Latest = rec
		}
	}
	return state, nil
}
