package ports

import "context"

// AnalyticsPort mirrors protocol traffic to observability sinks. Pushes are
// fire-and-forget: a sink failure never fails the protocol exchange.
type AnalyticsPort interface {
	// Push forwards one message body under a kind label ("search",
	// "on_select", ...)
	Push(ctx context.Context, kind string, body []byte)
}
