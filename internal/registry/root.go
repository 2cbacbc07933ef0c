// Package registry maintains append-only Merkle registries of committed PIDs.
// Each registry has exactly one writer goroutine; readers see only fully
// published, signed roots.
package registry

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"pidgate/internal/commitment"
	"pidgate/internal/merkle"
)

// Scope prefixes for roots that are signed once and never enter a window.
const (
	ScopeSetPrefix    = "set:"
	ScopeLockerPrefix = "locker:"
)

var (
	// ErrBadRootSignature means the root was not signed by this deployment.
	ErrBadRootSignature = errors.New("root signature invalid")
	// ErrStaleRoot means the root fell out of the window or is past its max age.
	ErrStaleRoot = errors.New("root is no longer accepted")
	// ErrUnknownScope means no registry with that scope is tracked.
	ErrUnknownScope = errors.New("unknown registry scope")
)

// SignedRoot is one published root of a registry or of an ad hoc set.
type SignedRoot struct {
	Scope       string      `json:"scope"`
	Version     uint64      `json:"version"`
	Root        merkle.Hash `json:"root"`
	LeafCount   int         `json:"leaf_count"`
	PublishedAt time.Time   `json:"published_at"`
	Signature   string      `json:"signature"`
}

// Ephemeral reports whether the root belongs to an ad hoc set or locker
// facility rather than a long-lived registry.
func (r SignedRoot) Ephemeral() bool {
	return IsEphemeralScope(r.Scope)
}

func IsEphemeralScope(scope string) bool {
	return strings.HasPrefix(scope, ScopeSetPrefix) || strings.HasPrefix(scope, ScopeLockerPrefix)
}

// signingBytes is the canonical encoding covered by the signature.
func (r SignedRoot) signingBytes() []byte {
	buf := make([]byte, 0, 96+len(r.Scope))
	buf = append(buf, "pidgate/root/v1|"...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.Scope)))
	buf = append(buf, r.Scope...)
	buf = binary.BigEndian.AppendUint64(buf, r.Version)
	buf = append(buf, r.Root[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.LeafCount))
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.PublishedAt.UTC().UnixNano()))
	return buf
}

// RootSigner signs and checks roots with a keyed MAC from a commitment scheme.
type RootSigner struct {
	scheme commitment.Scheme
	key    []byte
}

func NewRootSigner(key []byte) *RootSigner {
	return &RootSigner{scheme: commitment.HashScheme{}, key: key}
}

// Sign fills in the signature of r.
func (s *RootSigner) Sign(r SignedRoot) SignedRoot {
	r.PublishedAt = r.PublishedAt.UTC()
	r.Signature = hex.EncodeToString(s.scheme.Sign(r.signingBytes(), s.key))
	return r
}

// Verify checks the signature of r.
func (s *RootSigner) Verify(r SignedRoot) error {
	sig, err := hex.DecodeString(r.Signature)
	if err != nil || len(sig) == 0 {
		return ErrBadRootSignature
	}
	if !s.scheme.VerifySignature(r.signingBytes(), sig, s.key) {
		return ErrBadRootSignature
	}
	return nil
}

// SetScope derives a stable scope name for an ad hoc membership set.
func SetScope(label string) string {
	return ScopeSetPrefix + label
}

// LockerScope names the locker set of a facility.
func LockerScope(facilityID string) string {
	return fmt.Sprintf("%s%s", ScopeLockerPrefix, facilityID)
}

// IsStale reports whether err rejects a root for age or window reasons.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleRoot) || errors.Is(err, ErrUnknownScope)
}
