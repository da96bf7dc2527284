package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisbap/internal/errors"
)

func TestPostDeliversHeadersAndBody(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"ack":{"status":"ACK"}}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(5 * time.Second)
	resp, err := tr.Post(context.Background(), srv.URL,
		map[string]string{"Authorization": "Signature abc"},
		[]byte(`{"context":{}}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.JSON)
	assert.Equal(t, "Signature abc", gotAuth)
	assert.Equal(t, `{"context":{}}`, gotBody)
	assert.Contains(t, string(resp.Body), "ACK")
}

func TestPostNonJSONBodyPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>502 Bad Gateway</html>"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(5 * time.Second)
	resp, err := tr.Post(context.Background(), srv.URL, nil, []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.False(t, resp.JSON)
	assert.Equal(t, "<html>502 Bad Gateway</html>", string(resp.Body))
}

func TestPostUnreachableHostIsUpstreamError(t *testing.T) {
	tr := NewHTTPTransport(500 * time.Millisecond)
	_, err := tr.Post(context.Background(), "http://127.0.0.1:1", nil, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeUpstream))
}
