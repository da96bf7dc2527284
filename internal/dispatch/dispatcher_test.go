package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisbap/internal/errors"
	"fisbap/internal/protocol"
	"fisbap/internal/synth"
	"fisbap/pkg/config"
	"fisbap/pkg/modules/storage"
	"fisbap/pkg/ports"
)

type fakeSigner struct{ calls int }

func (f *fakeSigner) Sign(body []byte) (string, error) {
	f.calls++
	return "Signature test", nil
}
func (f *fakeSigner) SubscriberID() string { return "investment.flashfund.in" }
func (f *fakeSigner) UniqueKeyID() string  { return "key-1" }

type fakeTransport struct {
	calls   int
	lastURL string
	headers map[string]string
	body    []byte
	resp    *ports.Response
	err     error
}

func (f *fakeTransport) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*ports.Response, error) {
	f.calls++
	f.lastURL = url
	f.headers = headers
	f.body = body
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &ports.Response{StatusCode: 200, Body: []byte(`{"message":{"ack":{"status":"ACK"}}}`), JSON: true}, nil
}

type fakeAnalytics struct {
	kinds []string
}

func (f *fakeAnalytics) Push(ctx context.Context, kind string, body []byte) {
	f.kinds = append(f.kinds, kind)
}

func newTestDispatcher(t *testing.T, tr *fakeTransport) (*Dispatcher, ports.MessageStorePort, *fakeAnalytics) {
	t.Helper()
	store, err := storage.NewSQLiteStore(config.StorageConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sink := &fakeAnalytics{}
	d := New(store, &fakeSigner{}, tr, sink, config.NetworkConfig{
		GatewayURL:       "https://gateway.example.com/search",
		GatewaySignature: "gw-sig",
	})
	return d, store, sink
}

func newEnvelope(action, bppURI string) *protocol.Envelope {
	s := synth.New(
		config.SubscriberConfig{BapID: "investment.flashfund.in", BapURI: "https://investment.flashfund.in/ondc"},
		config.NetworkConfig{},
	)
	env, _ := s.Search("txn-1")
	env.Context.Action = action
	env.Context.BppID = "seller.example.com"
	env.Context.BppURI = bppURI
	if action == protocol.ActionSearch {
		env.Context.BppID = ""
		env.Context.BppURI = ""
	}
	return env
}

func TestDispatchSearchRoutesToGateway(t *testing.T) {
	tr := &fakeTransport{}
	d, store, sink := newTestDispatcher(t, tr)

	res, err := d.Dispatch(context.Background(), newEnvelope(protocol.ActionSearch, ""))
	require.NoError(t, err)

	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "https://gateway.example.com/search", tr.lastURL)
	assert.Equal(t, "Signature test", tr.headers["Authorization"])
	assert.Equal(t, "gw-sig", tr.headers["X-Gateway-Authorization"])
	assert.Equal(t, "investment.flashfund.in", tr.headers["X-Gateway-Subscriber-Id"])

	// Stored before send, under the action's stage
	exists, err := store.Exists(context.Background(), ports.Query{
		Stage: ports.StageSearch, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, []string{"search"}, sink.kinds)
}

func TestDispatchRoutesToSellerEndpoint(t *testing.T) {
	tr := &fakeTransport{}
	d, _, _ := newTestDispatcher(t, tr)

	_, err := d.Dispatch(context.Background(), newEnvelope(protocol.ActionSelect, "https://seller.example.com/ondc/"))
	require.NoError(t, err)
	assert.Equal(t, "https://seller.example.com/ondc/select", tr.lastURL)
}

func TestDispatchRequiresBppURIForNonSearch(t *testing.T) {
	tr := &fakeTransport{}
	d, _, _ := newTestDispatcher(t, tr)

	_, err := d.Dispatch(context.Background(), newEnvelope(protocol.ActionInit, ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeValidation))
	assert.Zero(t, tr.calls)
}

func TestDispatchSignedBytesAreSentBytes(t *testing.T) {
	tr := &fakeTransport{}
	d, store, _ := newTestDispatcher(t, tr)

	env := newEnvelope(protocol.ActionSelect, "https://seller.example.com/ondc")
	_, err := d.Dispatch(context.Background(), env)
	require.NoError(t, err)

	rec, err := store.Latest(context.Background(), ports.Query{
		Stage: ports.StageSelect, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.Equal(t, rec.Payload, tr.body, "stored bytes, signed bytes, and sent bytes are one serialization")
}

func TestDispatchPassesThroughUpstreamFailure(t *testing.T) {
	tr := &fakeTransport{resp: &ports.Response{
		StatusCode: 502,
		Body:       []byte("<html>bad gateway</html>"),
		JSON:       false,
	}}
	d, _, _ := newTestDispatcher(t, tr)

	res, err := d.Dispatch(context.Background(), newEnvelope(protocol.ActionSelect, "https://seller.example.com/ondc"))
	require.NoError(t, err)
	assert.Equal(t, 502, res.StatusCode)
	assert.Equal(t, "<html>bad gateway</html>", res.RawBody)
	assert.Empty(t, res.Body)
}

func TestDispatchStoreSurvivesTransportFailure(t *testing.T) {
	tr := &fakeTransport{err: errors.Upstream("connection refused", nil)}
	d, store, _ := newTestDispatcher(t, tr)

	_, err := d.Dispatch(context.Background(), newEnvelope(protocol.ActionSelect, "https://seller.example.com/ondc"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeUpstream))

	// The attempt is still durably recorded
	exists, err := store.Exists(context.Background(), ports.Query{
		Stage: ports.StageSelect, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDispatchRejectsCallbackActions(t *testing.T) {
	tr := &fakeTransport{}
	d, _, _ := newTestDispatcher(t, tr)

	env := newEnvelope(protocol.ActionSelect, "https://seller.example.com/ondc")
	env.Context.Action = protocol.ActionOnSelect
	_, err := d.Dispatch(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeValidation))
	assert.Zero(t, tr.calls)
}

func TestDispatchRetrySameMessageIDIsNotDoubleStored(t *testing.T) {
	tr := &fakeTransport{}
	d, store, _ := newTestDispatcher(t, tr)

	env := newEnvelope(protocol.ActionSelect, "https://seller.example.com/ondc")
	_, err := d.Dispatch(context.Background(), env)
	require.NoError(t, err)
	env.Context.Timestamp = protocol.Timestamp(time.Now().UTC())
	_, err = d.Dispatch(context.Background(), env)
	require.NoError(t, err)

	recs, err := store.List(context.Background(), ports.Query{
		Stage: ports.StageSelect, TransactionID: "txn-1",
	})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 2, tr.calls, "resend still goes out")
}
