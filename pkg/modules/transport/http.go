// Package transport delivers signed payloads over HTTP. Participant
// responses are returned as-is: gateways answer with JSON acknowledgements
// on the happy path but error pages and proxy bodies come back as raw text,
// and callers surface those verbatim.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"fisbap/internal/errors"
	"fisbap/pkg/ports"
)

// Response bodies are capped to guard against misbehaving participants
const maxResponseBytes = 4 << 20

type httpTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a transport with the given request timeout
func NewHTTPTransport(timeout time.Duration) ports.TransportPort {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpTransport{
		client: &http.Client{Timeout: timeout},
	}
}

func (t *httpTransport) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*ports.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Validation("invalid request URL: " + url)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Upstream("request to "+url+" failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Upstream("failed to read response from "+url, err)
	}

	return &ports.Response{
		StatusCode: resp.StatusCode,
		Body:       raw,
		JSON:       json.Valid(raw),
	}, nil
}
