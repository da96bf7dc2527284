// Package kyc bridges externally-hosted xinput forms. Sellers hand out a
// form URL on on_select; investor data is posted there as a multipart form
// and the host answers with a submission id that the follow-up select must
// echo back.
package kyc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"time"

	"fisbap/internal/errors"
	"fisbap/pkg/ports"
)

const maxFormBytes = 1 << 20

type formClient struct {
	client *http.Client
}

// NewFormClient builds the form bridge with the given request timeout
func NewFormClient(timeout time.Duration) ports.KYCPort {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &formClient{client: &http.Client{Timeout: timeout}}
}

func (f *formClient) FetchForm(ctx context.Context, formURL string) ([]byte, error) {
	if _, err := url.ParseRequestURI(formURL); err != nil {
		return nil, errors.Validation("invalid form URL: " + formURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, formURL, nil)
	if err != nil {
		return nil, errors.Validation("invalid form URL: " + formURL)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Upstream("failed to fetch form", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, errors.Upstream("form host returned "+resp.Status, nil)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFormBytes))
}

// SubmitForm posts fields as multipart form data. The host's response is
// expected to carry a submission id under any of the shapes seen on the
// network.
func (f *formClient) SubmitForm(ctx context.Context, formURL string, fields map[string]string) (*ports.FormSubmission, error) {
	if _, err := url.ParseRequestURI(formURL); err != nil {
		return nil, errors.Validation("invalid form URL: " + formURL)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, errors.Internal("failed to encode form field " + k)
		}
	}
	if err := w.Close(); err != nil {
		return nil, errors.Internal("failed to finalize form body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, formURL, &buf)
	if err != nil {
		return nil, errors.Validation("invalid form URL: " + formURL)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Upstream("form submission failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFormBytes))
	if err != nil {
		return nil, errors.Upstream("failed to read form response", err)
	}
	if resp.StatusCode >= 300 {
		return nil, errors.Upstream("form host returned "+resp.Status, nil).
			WithContext("body", string(raw))
	}

	submissionID := extractSubmissionID(raw)
	if submissionID == "" {
		return nil, errors.MalformedUpstream("form_response", "submission_id")
	}
	return &ports.FormSubmission{SubmissionID: submissionID}, nil
}

// Form hosts answer with {"submission_id": ...}, sometimes nested under
// "data" or "form_response".
func extractSubmissionID(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, node := range []any{body, body["data"], body["form_response"]} {
		m, ok := node.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := m["submission_id"].(string); ok && id != "" {
			return id
		}
	}
	return ""
}
