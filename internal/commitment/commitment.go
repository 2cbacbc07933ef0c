// Package commitment provides hash commitments with blinding nonces and a keyed
// MAC for signatures. These are the placeholder primitives every proof kind is
// built on; Scheme is the seam where a real proving backend plugs in.
package commitment

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// NonceSize is the length of generated nonces in bytes.
const NonceSize = 32

const minNonceSize = 16

var commitDomain = []byte("pidgate/commit/v1")

// ErrInvalidNonce is returned for nonces that are too short or not hex.
var ErrInvalidNonce = errors.New("invalid commitment nonce")

// Commitment binds to a value. Nonce is set only on the prover's copy;
// Public strips it before the commitment leaves the prover.
type Commitment struct {
	ValueHash string `json:"value_hash"`
	Nonce     string `json:"nonce,omitempty"`
}

// Public returns the commitment without its opening nonce.
func (c Commitment) Public() Commitment {
	return Commitment{ValueHash: c.ValueHash}
}

// Digest decodes the value hash.
func (c Commitment) Digest() ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(c.ValueHash)
	if err != nil || len(raw) != len(out) {
		return out, fmt.Errorf("invalid commitment hash %q", c.ValueHash)
	}
	copy(out[:], raw)
	return out, nil
}

// Scheme is implemented by commitment/signature backends.
type Scheme interface {
	Commit(value string, nonce []byte) (Commitment, error)
	Open(c Commitment, value string, nonce []byte) bool
	Sign(data, key []byte) []byte
	VerifySignature(data, signature, key []byte) bool
}

// HashScheme commits with SHA-256 over a length-prefixed value and nonce, and
// signs with HMAC-SHA256. It is hiding only as long as nonces stay secret.
type HashScheme struct{}

var _ Scheme = HashScheme{}

// Commit computes hash(value || nonce). A nil nonce generates a fresh random
// one, returned in the commitment so the caller can open it later.
func (HashScheme) Commit(value string, nonce []byte) (Commitment, error) {
	if nonce == nil {
		var err error
		nonce, err = NewNonce()
		if err != nil {
			return Commitment{}, err
		}
	}
	if len(nonce) < minNonceSize {
		return Commitment{}, ErrInvalidNonce
	}
	digest := digest(value, nonce)
	return Commitment{
		ValueHash: hex.EncodeToString(digest[:]),
		Nonce:     hex.EncodeToString(nonce),
	}, nil
}

// Open recomputes the commitment and compares in constant time.
func (HashScheme) Open(c Commitment, value string, nonce []byte) bool {
	want, err := c.Digest()
	if err != nil || len(nonce) < minNonceSize {
		return false
	}
	got := digest(value, nonce)
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

// Sign returns HMAC-SHA256(key, data).
func (HashScheme) Sign(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifySignature checks an HMAC-SHA256 signature in constant time.
func (s HashScheme) VerifySignature(data, signature, key []byte) bool {
	return hmac.Equal(signature, s.Sign(data, key))
}

func digest(value string, nonce []byte) [32]byte {
	h := sha256.New()
	h.Write(commitDomain)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(value)))
	h.Write(n[:])
	h.Write([]byte(value))
	h.Write(nonce)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// NewNonce returns NonceSize bytes from crypto/rand.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// DecodeNonce parses a hex nonce as carried in Commitment.Nonce.
func DecodeNonce(s string) ([]byte, error) {
	nonce, err := hex.DecodeString(s)
	if err != nil || len(nonce) < minNonceSize {
		return nil, ErrInvalidNonce
	}
	return nonce, nil
}

// Commit commits to value with a fresh random nonce using HashScheme.
func Commit(value string) (Commitment, error) {
	return HashScheme{}.Commit(value, nil)
}

// Open verifies a commitment whose nonce is hex-encoded in c.Nonce.
func Open(c Commitment, value string) bool {
	nonce, err := DecodeNonce(c.Nonce)
	if err != nil {
		return false
	}
	return HashScheme{}.Open(c, value, nonce)
}

// Sign signs data with HashScheme.
func Sign(data, key []byte) []byte {
	return HashScheme{}.Sign(data, key)
}

// VerifySignature verifies data with HashScheme.
func VerifySignature(data, signature, key []byte) bool {
	return HashScheme{}.VerifySignature(data, signature, key)
}
