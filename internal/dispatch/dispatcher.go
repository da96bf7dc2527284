// Package dispatch signs and delivers synthesized payloads. The payload is
// serialized exactly once: the signature covers those bytes and the same
// bytes go on the wire. The store write happens before the network call and
// is the durable record of the attempt, whatever the transport outcome.
package dispatch

import (
	"context"
	"encoding/json"
	"strings"

	"fisbap/internal/errors"
	"fisbap/internal/logging"
	"fisbap/internal/protocol"
	"fisbap/pkg/config"
	"fisbap/pkg/ports"
)

// Result is the classified outcome of one dispatch
type Result struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`
	RawBody    string          `json:"raw_body,omitempty"`
	MessageID  string          `json:"message_id"`
}

// Dispatcher routes signed payloads to the gateway or a seller endpoint
type Dispatcher struct {
	store     ports.MessageStorePort
	signer    ports.SignerPort
	transport ports.TransportPort
	analytics ports.AnalyticsPort
	network   config.NetworkConfig
	logger    *logging.Logger
}

// New wires a dispatcher from its collaborators
func New(store ports.MessageStorePort, signer ports.SignerPort, transport ports.TransportPort,
	analytics ports.AnalyticsPort, network config.NetworkConfig) *Dispatcher {
	return &Dispatcher{
		store:     store,
		signer:    signer,
		transport: transport,
		analytics: analytics,
		network:   network,
		logger:    logging.NewDefaultLogger("dispatch"),
	}
}

// Dispatch persists, signs, and sends one outbound envelope. Upstream
// non-2xx responses pass through in the result, never masked as success.
func (d *Dispatcher) Dispatch(ctx context.Context, env *protocol.Envelope) (*Result, error) {
	action := env.Context.Action
	if !protocol.ValidAction(action) || strings.HasPrefix(action, "on_") {
		return nil, errors.Validation("cannot dispatch action " + action)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to serialize payload")
	}

	timestamp, err := protocol.ParseTimestamp(env.Context.Timestamp)
	if err != nil {
		return nil, errors.Validation("payload carries unparseable timestamp")
	}
	rec := ports.Record{
		Stage:         ports.Stage(action),
		TransactionID: env.Context.TransactionID,
		MessageID:     env.Context.MessageID,
		BPPID:         env.Context.BppID,
		BPPURI:        env.Context.BppURI,
		Payload:       body,
		Timestamp:     timestamp,
	}
	if err := d.store.Put(ctx, rec); err != nil && !errors.Is(err, errors.ErrorTypeDuplicate) {
		return nil, err
	}

	url, err := d.routeFor(env)
	if err != nil {
		return nil, err
	}

	auth, err := d.signer.Sign(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to sign payload")
	}
	headers := map[string]string{
		"Content-Type":            "application/json",
		"Authorization":           auth,
		"X-Gateway-Authorization": d.network.GatewaySignature,
		"X-Gateway-Subscriber-Id": d.signer.SubscriberID(),
	}

	d.logger.Info("dispatching %s for transaction %s to %s", action, env.Context.TransactionID, url)
	resp, err := d.transport.Post(ctx, url, headers, body)
	if err != nil {
		return nil, err
	}

	if d.analytics != nil {
		d.analytics.Push(ctx, action, body)
	}

	result := &Result{StatusCode: resp.StatusCode, MessageID: env.Context.MessageID}
	if resp.JSON {
		result.Body = json.RawMessage(resp.Body)
	} else {
		result.RawBody = string(resp.Body)
	}
	return result, nil
}

// routeFor resolves the delivery endpoint: the shared gateway for search,
// the seller's own base URI plus action for everything else.
func (d *Dispatcher) routeFor(env *protocol.Envelope) (string, error) {
	if env.Context.Action == protocol.ActionSearch {
		if d.network.GatewayURL == "" {
			return "", errors.Configuration("gateway URL is not configured")
		}
		return d.network.GatewayURL, nil
	}
	if env.Context.BppURI == "" {
		return "", errors.Validation("bpp_uri is required for " + env.Context.Action)
	}
	return strings.TrimSuffix(env.Context.BppURI, "/") + "/" + env.Context.Action, nil
}
