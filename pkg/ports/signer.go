package ports

// SignerPort produces network authorization headers over exact request
// bodies. The bytes handed to Sign must be the bytes sent on the wire.
type SignerPort interface {
	// Sign returns the Authorization header value for the given body
	Sign(body []byte) (string, error)

	// SubscriberID returns the registered subscriber this signer signs for
	SubscriberID() string

	// UniqueKeyID returns the registry key id embedded in signatures
	UniqueKeyID() string
}
