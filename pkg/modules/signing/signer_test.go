package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisbap/pkg/config"
)

func newTestKeys(t *testing.T) (string, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(priv), base64.StdEncoding.EncodeToString(pub)
}

var headerPattern = regexp.MustCompile(
	`^Signature keyId="([^"]+)",algorithm="ed25519",created="(\d+)",expires="(\d+)",headers="\(created\) \(expires\) digest",signature="([^"]+)"$`)

func TestSignProducesVerifiableHeader(t *testing.T) {
	privB64, pubB64 := newTestKeys(t)

	s, err := NewSigner(config.SigningConfig{
		PrivateKeyBase64: privB64,
		UniqueKeyID:      "key-1",
	}, "investment.flashfund.in")
	require.NoError(t, err)

	body := []byte(`{"context":{"action":"search"},"message":{}}`)
	header, err := s.Sign(body)
	require.NoError(t, err)

	m := headerPattern.FindStringSubmatch(header)
	require.NotNil(t, m, "header %q did not match expected shape", header)
	assert.Equal(t, "investment.flashfund.in|key-1|ed25519", m[1])

	created, err := strconv.ParseInt(m[2], 10, 64)
	require.NoError(t, err)
	expires, err := strconv.ParseInt(m[3], 10, 64)
	require.NoError(t, err)
	assert.Greater(t, expires, created)

	ok, err := Verify(pubB64, body, created, expires, m[4])
	require.NoError(t, err)
	assert.True(t, ok)

	// Any change to the body invalidates the signature
	ok, err = Verify(pubB64, append(body, ' '), created, expires, m[4])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewSignerAcceptsSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	_, err := NewSigner(config.SigningConfig{
		PrivateKeyBase64: base64.StdEncoding.EncodeToString(seed),
		UniqueKeyID:      "key-1",
	}, "bap.example.com")
	assert.NoError(t, err)
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "not base64", key: "%%%"},
		{name: "wrong length", key: base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner(config.SigningConfig{PrivateKeyBase64: tt.key}, "bap.example.com")
			assert.Error(t, err)
		})
	}
}
