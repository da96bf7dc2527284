package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisbap/internal/correlate"
	"fisbap/internal/dispatch"
	"fisbap/internal/ingest"
	"fisbap/internal/orchestrate"
	"fisbap/internal/synth"
	"fisbap/pkg/config"
	"fisbap/pkg/modules/signing"
	"fisbap/pkg/modules/storage"
	"fisbap/pkg/ports"
)

// ackTransport records every outbound request and answers with an ACK
type ackTransport struct {
	mu    sync.Mutex
	calls []transportCall
}

type transportCall struct {
	url  string
	body []byte
}

func (f *ackTransport) Post(_ context.Context, url string, _ map[string]string, body []byte) (*ports.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{url: url, body: append([]byte(nil), body...)})
	return &ports.Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"message":{"ack":{"status":"ACK"}}}`),
		JSON:       true,
	}, nil
}

func (f *ackTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *ackTransport) lastCall() transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// kycStub answers every form post with a fixed submission id
type kycStub struct {
	mu   sync.Mutex
	urls []string
}

func (k *kycStub) SubmitForm(_ context.Context, url string, _ map[string]string) (*ports.FormSubmission, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.urls = append(k.urls, url)
	return &ports.FormSubmission{SubmissionID: "sub-123"}, nil
}

func (k *kycStub) FetchForm(_ context.Context, _ string) ([]byte, error) {
	return []byte("<form/>"), nil
}

type testHarness struct {
	server    *Server
	store     ports.MessageStorePort
	transport *ackTransport
	kyc       *kycStub
}

func newTestServer(t *testing.T) *testHarness {
	t.Helper()

	store, err := storage.NewSQLiteStore(config.StorageConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	catalog, err := storage.NewSQLiteCatalog(store)
	require.NoError(t, err)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signerCfg := config.SigningConfig{
		PrivateKeyBase64: base64.StdEncoding.EncodeToString(priv),
		UniqueKeyID:      "key-1",
	}
	signer, err := signing.NewSigner(signerCfg, "investment.flashfund.in")
	require.NoError(t, err)

	cfg := &config.Config{
		Subscriber: config.SubscriberConfig{
			BapID:        "investment.flashfund.in",
			BapURI:       "https://investment.flashfund.in/ondc",
			SubscriberID: "investment.flashfund.in",
			ARN:          "ARN-190417",
		},
		Network: config.NetworkConfig{
			GatewayURL: "https://gateway.example.com/search",
		},
		Wait: config.WaitConfig{Interval: 10 * time.Millisecond, Timeout: 200 * time.Millisecond},
	}

	tr := &ackTransport{}
	kc := &kycStub{}
	sy := synth.New(cfg.Subscriber, cfg.Network)
	di := dispatch.New(store, signer, tr, nil, cfg.Network)
	co := correlate.New(store)
	in := ingest.New(store, nil)
	wa := orchestrate.NewWaiter(store, cfg.Wait)
	fl := orchestrate.NewFlow(sy, di, co, wa, store, kc)

	srv := New(Deps{
		Config:     cfg,
		Synth:      sy,
		Dispatcher: di,
		Correlator: co,
		Ingestor:   in,
		Flow:       fl,
		Store:      store,
		Catalog:    catalog,
		KYC:        kc,
	})
	return &testHarness{server: srv, store: store, transport: tr, kyc: kc}
}

func (h *testHarness) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.server.Router().ServeHTTP(w, req)
	return w
}

const serverOnSearch = `{
	"context": {
		"domain": "ONDC:FIS14",
		"action": "on_search",
		"transaction_id": "txn-1",
		"message_id": "cb-search-1",
		"timestamp": "2026-03-10T09:31:00.000Z",
		"bpp_id": "api.cybrilla.com",
		"bpp_uri": "https://api.cybrilla.com/ondc"
	},
	"message": {
		"catalog": {
			"providers": [
				{
					"id": "32",
					"descriptor": {"name": "Cybrilla MF"},
					"fulfillments": [
						{"id": "101679", "type": "LUMPSUM", "tags": [
							{"descriptor": {"code": "THRESHOLDS"}, "list": [
								{"descriptor": {"code": "AMOUNT_MIN"}, "value": "100"},
								{"descriptor": {"code": "AMOUNT_MAX"}, "value": "1000000"},
								{"descriptor": {"code": "AMOUNT_MULTIPLES"}, "value": "1"}
							]}
						]}
					],
					"items": [
						{"id": "scheme-1", "descriptor": {"name": "Bluechip Fund"}},
						{"id": "plan-1", "parent_item_id": "scheme-1",
							"descriptor": {"name": "Bluechip Direct Growth"},
							"fulfillment_ids": ["101679"],
							"tags": [
								{"descriptor": {"code": "PLAN_IDENTIFIERS"}, "list": [
									{"descriptor": {"code": "ISIN"}, "value": "INF179K01VY8"}
								]}
							]}
					]
				}
			]
		}
	}
}`

// startSearch makes txn-1 a known transaction by dispatching an outbound
// search through the handler surface.
func startSearch(t *testing.T, h *testHarness) {
	t.Helper()
	w := h.do(t, http.MethodPost, "/search", `{"transaction_id":"txn-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://gateway.example.com/search", h.transport.lastCall().url)
}

func TestCallbackStoredAndServed(t *testing.T) {
	h := newTestServer(t)
	startSearch(t, h)

	w := h.do(t, http.MethodPost, "/on_search", serverOnSearch)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":{"ack":{"status":"ACK"}}}`, w.Body.String())

	view := h.do(t, http.MethodGet, "/callbacks/on_search?transaction_id=txn-1", "")
	require.Equal(t, http.StatusOK, view.Code)
	assert.Contains(t, view.Body.String(), `"cb-search-1"`)
}

func TestCallbackRejections(t *testing.T) {
	h := newTestServer(t)
	startSearch(t, h)

	mismatch := h.do(t, http.MethodPost, "/on_select", serverOnSearch)
	assert.Equal(t, http.StatusBadRequest, mismatch.Code)
	assert.Contains(t, mismatch.Body.String(), "NACK")

	unknown := h.do(t, http.MethodPost, "/on_search",
		strings.ReplaceAll(serverOnSearch, "txn-1", "txn-unknown"))
	assert.Equal(t, http.StatusNotFound, unknown.Code)
}

func TestOnSearchFeedsCatalog(t *testing.T) {
	h := newTestServer(t)
	startSearch(t, h)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/on_search", serverOnSearch).Code)

	scheme := h.do(t, http.MethodGet, "/schemes/INF179K01VY8", "")
	require.Equal(t, http.StatusOK, scheme.Code)
	assert.Contains(t, scheme.Body.String(), "Bluechip Direct Growth")

	providers := h.do(t, http.MethodGet, "/providers", "")
	require.Equal(t, http.StatusOK, providers.Code)
	assert.Contains(t, providers.Body.String(), "Cybrilla MF")
}

func TestSelectCorrelationMissIs404(t *testing.T) {
	h := newTestServer(t)

	w := h.do(t, http.MethodPost, "/select", `{
		"transaction_id": "txn-nope",
		"bpp_id": "api.cybrilla.com",
		"bpp_uri": "https://api.cybrilla.com/ondc",
		"flow": "lumpsum_new_folio",
		"amount": "3000",
		"pan": "ABCDE1234F"
	}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, h.transport.callCount(), "nothing may reach the network on a miss")
	assert.Contains(t, w.Body.String(), "correlation_miss")
}

func TestSelectRoutesToSeller(t *testing.T) {
	h := newTestServer(t)
	startSearch(t, h)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/on_search", serverOnSearch).Code)

	w := h.do(t, http.MethodPost, "/select", `{
		"transaction_id": "txn-1",
		"bpp_id": "api.cybrilla.com",
		"bpp_uri": "https://api.cybrilla.com/ondc",
		"flow": "lumpsum_new_folio",
		"amount": "3000",
		"pan": "ABCDE1234F"
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	call := h.transport.lastCall()
	assert.Equal(t, "https://api.cybrilla.com/ondc/select", call.url)

	var env struct {
		Context struct {
			Action        string `json:"action"`
			TransactionID string `json:"transaction_id"`
			BppID         string `json:"bpp_id"`
		} `json:"context"`
	}
	require.NoError(t, json.Unmarshal(call.body, &env))
	assert.Equal(t, "select", env.Context.Action)
	assert.Equal(t, "txn-1", env.Context.TransactionID)
	assert.Equal(t, "api.cybrilla.com", env.Context.BppID)
}

func TestInvalidFlowKindRejected(t *testing.T) {
	h := newTestServer(t)

	w := h.do(t, http.MethodPost, "/select", `{
		"transaction_id": "txn-1",
		"flow": "margin_trading"
	}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStateView(t *testing.T) {
	h := newTestServer(t)
	startSearch(t, h)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/on_search", serverOnSearch).Code)

	w := h.do(t, http.MethodGet, "/transactions/txn-1/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var state correlate.TransactionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, correlate.StageSearched, state.Stage)

	missing := h.do(t, http.MethodGet, "/transactions/txn-nope/state", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestPANViewRequiresOnStatus(t *testing.T) {
	h := newTestServer(t)
	startSearch(t, h)

	w := h.do(t, http.MethodGet, "/transactions/txn-1/pan", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusRequiresConfirmedOrder(t *testing.T) {
	h := newTestServer(t)

	w := h.do(t, http.MethodPost, "/status",
		`{"transaction_id":"txn-1","bpp_id":"api.cybrilla.com","bpp_uri":"https://api.cybrilla.com/ondc"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, h.transport.callCount())
}

func TestStatusRequiresSellerIdentity(t *testing.T) {
	h := newTestServer(t)

	w := h.do(t, http.MethodPost, "/status", `{"transaction_id":"txn-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, h.transport.callCount())
}

func TestDocumentSubmissionRidesLatestOnStatus(t *testing.T) {
	h := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, h.store.Put(ctx, ports.Record{
		Stage:         ports.StageOnStatus,
		TransactionID: "txn-1",
		MessageID:     "st-1",
		BPPID:         "api.cybrilla.com",
		BPPURI:        "https://api.cybrilla.com/ondc",
		Payload: []byte(`{"message": {"order": {
			"provider": {"id": "32"},
			"items": [{"id": "plan-1", "fulfillment_ids": ["101679"]}],
			"fulfillments": [{"id": "101679", "type": "SIP"}],
			"xinput": {"form": {"id": "esign-form-3", "url": "https://forms.example.com/esign/3"}}
		}}}`),
		Timestamp: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}))

	w := h.do(t, http.MethodPost, "/docsub",
		`{"transaction_id":"txn-1","bpp_id":"api.cybrilla.com","bpp_uri":"https://api.cybrilla.com/ondc","form_fields":{"otp":"1234"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	h.kyc.mu.Lock()
	require.Len(t, h.kyc.urls, 1)
	assert.Equal(t, "https://forms.example.com/esign/3", h.kyc.urls[0])
	h.kyc.mu.Unlock()

	call := h.transport.lastCall()
	assert.Equal(t, "https://api.cybrilla.com/ondc/select", call.url)
	assert.Contains(t, string(call.body), `"submission_id":"sub-123"`)
	assert.Contains(t, string(call.body), "esign-form-3")
}

func TestUpdateFallsBackToInitTerms(t *testing.T) {
	h := newTestServer(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, h.store.Put(ctx, ports.Record{
		Stage:         ports.StageOnInit,
		TransactionID: "txn-1",
		MessageID:     "init-1",
		BPPID:         "api.cybrilla.com",
		BPPURI:        "https://api.cybrilla.com/ondc",
		Payload: []byte(`{"message": {"order": {
			"payments": [{"id": "pay-1", "status": "NOT-PAID", "params": {"amount": "3000", "currency": "INR"}}]
		}}}`),
		Timestamp: base,
	}))
	require.NoError(t, h.store.Put(ctx, ports.Record{
		Stage:         ports.StageOnConfirm,
		TransactionID: "txn-1",
		MessageID:     "cf-1",
		BPPID:         "api.cybrilla.com",
		BPPURI:        "https://api.cybrilla.com/ondc",
		Payload:       []byte(`{"message": {"order": {"id": "order-77"}}}`),
		Timestamp:     base.Add(time.Minute),
	}))

	w := h.do(t, http.MethodPost, "/update",
		`{"transaction_id":"txn-1","bpp_id":"api.cybrilla.com","bpp_uri":"https://api.cybrilla.com/ondc"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	call := h.transport.lastCall()
	assert.Equal(t, "https://api.cybrilla.com/ondc/update", call.url)
	assert.Contains(t, string(call.body), `"update_target":"order.payments"`)
	assert.Contains(t, string(call.body), `"order-77"`)
	assert.Contains(t, string(call.body), `"pay-1"`)
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	w := h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
