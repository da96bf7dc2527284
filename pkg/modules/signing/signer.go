// Package signing produces registry-verifiable authorization headers. The
// network verifies an ed25519 signature over a BLAKE-512 digest of the exact
// request body, so callers must sign the same bytes they put on the wire.
package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"fisbap/internal/errors"
	"fisbap/pkg/config"
	"fisbap/pkg/ports"
)

// Signature headers stay valid for this long once created
const signatureTTL = time.Hour

type signer struct {
	key          ed25519.PrivateKey
	subscriberID string
	uniqueKeyID  string
	now          func() time.Time
}

// NewSigner builds a signer from base64-encoded ed25519 key material
func NewSigner(cfg config.SigningConfig, subscriberID string) (ports.SignerPort, error) {
	raw, err := base64.StdEncoding.DecodeString(cfg.PrivateKeyBase64)
	if err != nil {
		return nil, errors.Configuration(fmt.Sprintf("signing key is not valid base64: %v", err))
	}

	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, errors.Configuration(fmt.Sprintf("signing key has invalid length %d", len(raw)))
	}

	return &signer{
		key:          key,
		subscriberID: subscriberID,
		uniqueKeyID:  cfg.UniqueKeyID,
		now:          time.Now,
	}, nil
}

func (s *signer) Sign(body []byte) (string, error) {
	created := s.now().Unix()
	expires := created + int64(signatureTTL.Seconds())

	digest := blake2b.Sum512(body)
	signingString := fmt.Sprintf("(created): %d\n(expires): %d\ndigest: BLAKE-512=%s",
		created, expires, base64.StdEncoding.EncodeToString(digest[:]))

	sig := ed25519.Sign(s.key, []byte(signingString))

	header := fmt.Sprintf(
		`Signature keyId="%s|%s|ed25519",algorithm="ed25519",created="%d",expires="%d",headers="(created) (expires) digest",signature="%s"`,
		s.subscriberID, s.uniqueKeyID, created, expires,
		base64.StdEncoding.EncodeToString(sig))
	return header, nil
}

func (s *signer) SubscriberID() string { return s.subscriberID }

func (s *signer) UniqueKeyID() string { return s.uniqueKeyID }

// Verify checks a detached signature against a public key and body. Used in
// tests and available for callback authentication.
func Verify(publicKeyBase64 string, body []byte, created, expires int64, signatureBase64 string) (bool, error) {
	pub, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false, errors.Validation("public key is not a valid ed25519 key")
	}
	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return false, errors.Validation("signature is not valid base64")
	}

	digest := blake2b.Sum512(body)
	signingString := fmt.Sprintf("(created): %d\n(expires): %d\ndigest: BLAKE-512=%s",
		created, expires, base64.StdEncoding.EncodeToString(digest[:]))
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(signingString), sig), nil
}
