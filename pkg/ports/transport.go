package ports

import "context"

// Response is what came back from a network participant. Non-JSON bodies are
// preserved as raw text so callers can report gateway error pages verbatim.
type Response struct {
	StatusCode int
	Body       []byte
	JSON       bool
}

// TransportPort delivers signed payloads to gateway and seller endpoints
type TransportPort interface {
	// Post sends body to url with the given headers and returns the
	// participant's response
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error)
}
