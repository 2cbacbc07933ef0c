package proof

import (
	"encoding/binary"
	"encoding/hex"

	"pidgate/internal/commitment"
)

// Statement is what a backend attests to: a circuit and its canonical
// public inputs.
type Statement struct {
	CircuitID string
	Kind      Kind
	Public    [][]byte
}

func (s Statement) bytes() []byte {
	buf := make([]byte, 0, 128)
	for _, part := range append([][]byte{[]byte(s.CircuitID), []byte(s.Kind)}, s.Public...) {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(part)))
		buf = append(buf, part...)
	}
	return buf
}

// Backend produces and checks attestations over statements. It is the seam
// where a zero-knowledge proving system replaces the keyed-hash placeholder;
// the engine's inputs and outputs do not change when it is swapped.
type Backend interface {
	Name() string
	Attest(stmt Statement) (string, error)
	Check(stmt Statement, attestation string) bool
}

// HashBackend attests with HMAC-SHA256 under a circuit key. Attestations are
// binding but not zero-knowledge: hiding comes only from the commitments.
type HashBackend struct {
	key    []byte
	scheme commitment.Scheme
}

func NewHashBackend(key []byte) *HashBackend {
	return &HashBackend{key: key, scheme: commitment.HashScheme{}}
}

func (b *HashBackend) Name() string { return "hmac-sha256" }

func (b *HashBackend) Attest(stmt Statement) (string, error) {
	return hex.EncodeToString(b.scheme.Sign(stmt.bytes(), b.key)), nil
}

func (b *HashBackend) Check(stmt Statement, attestation string) bool {
	sig, err := hex.DecodeString(attestation)
	if err != nil || len(sig) == 0 {
		return false
	}
	return b.scheme.VerifySignature(stmt.bytes(), sig, b.key)
}
