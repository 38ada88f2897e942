package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := []byte("shh")
	body := []byte(`{"ref":"refs/heads/main"}`)

	sig := Sign(secret, body)
	assert.True(t, strings.HasPrefix(sig, SignaturePrefix))
	assert.True(t, VerifySignature(secret, body, sig))
}

func TestVerifyRejectsMutatedBody(t *testing.T) {
	secret := []byte("shh")
	body := []byte(`{"ref":"refs/heads/main"}`)
	sig := Sign(secret, body)

	mutated := []byte(`{"ref":"refs/heads/maim"}`)
	assert.False(t, VerifySignature(secret, mutated, sig))
}

func TestVerifyRejectsMutatedSignature(t *testing.T) {
	secret := []byte("shh")
	body := []byte("payload")
	sig := Sign(secret, body)

	// Flip the last hex character.
	last := sig[len(sig)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	assert.False(t, VerifySignature(secret, body, sig[:len(sig)-1]+string(flipped)))
}

func TestVerifyFailsClosed(t *testing.T) {
	body := []byte("payload")
	sig := Sign([]byte("shh"), body)

	assert.False(t, VerifySignature(nil, body, sig), "missing secret")
	assert.False(t, VerifySignature([]byte("shh"), nil, sig), "missing body")
	assert.False(t, VerifySignature([]byte("shh"), body, ""), "missing signature")
	assert.False(t, VerifySignature([]byte("shh"), body, "sha1=deadbeef"), "wrong prefix")
}

func TestVerifyWrongSecret(t *testing.T) {
	body := []byte("payload")
	sig := Sign([]byte("right"), body)
	assert.False(t, VerifySignature([]byte("wrong"), body, sig))
}
