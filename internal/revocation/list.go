// Package revocation tracks revoked PIDs and publishes them as a signed,
// append-only list. Checks against the list fail closed.
package revocation

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pidgate/internal/merkle"
)

// ErrBadListSignature means a list could not be authenticated.
var ErrBadListSignature = errors.New("revocation list signature invalid")

// Entry records the revocation of one PID. NewPID links to the successor
// address when the owner moved.
type Entry struct {
	PID            string    `json:"pid"`
	LeafHash       string    `json:"leaf_hash,omitempty"`
	Reason         string    `json:"reason"`
	NewPID         string    `json:"new_pid,omitempty"`
	RevokedBy      string    `json:"revoked_by"`
	Timestamp      time.Time `json:"timestamp"`
	LinkingProofID string    `json:"linking_proof_id,omitempty"`
}

// List is one published version. Entries are sorted by PID.
type List struct {
	Issuer    string    `json:"issuer"`
	Version   uint64    `json:"version"`
	Entries   []Entry   `json:"entries"`
	Timestamp time.Time `json:"timestamp"`
	Proof     string    `json:"proof"`

	leaves []merkle.Hash
}

// Publish signs entries as of ts. The input slice is not modified.
func Publish(issuerDID string, key ed25519.PrivateKey, version uint64, entries []Entry, ts time.Time) (*List, error) {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PID < sorted[j].PID })

	l := &List{
		Issuer:    issuerDID,
		Version:   version,
		Entries:   sorted,
		Timestamp: ts.UTC(),
	}
	digest, err := l.digest()
	if err != nil {
		return nil, err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, listClaims{
		Digest:  digest,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuerDID,
			IssuedAt: jwt.NewNumericDate(l.Timestamp),
		},
	})
	l.Proof, err = token.SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("sign revocation list: %w", err)
	}
	l.index()
	return l, nil
}

type listClaims struct {
	Digest  string `json:"list_digest"`
	Version uint64 `json:"version"`
	jwt.RegisteredClaims
}

func (l *List) digest() (string, error) {
	unsigned := struct {
		Issuer    string    `json:"issuer"`
		Version   uint64    `json:"version"`
		Entries   []Entry   `json:"entries"`
		Timestamp time.Time `json:"timestamp"`
	}{l.Issuer, l.Version, l.Entries, l.Timestamp}
	raw, err := json.Marshal(unsigned)
	if err != nil {
		return "", fmt.Errorf("encode revocation list: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Verify authenticates l against the issuer key and rebuilds its lookup
// index. A list that fails here must not be consulted.
func (l *List) Verify(issuerKey ed25519.PublicKey) error {
	if l == nil || l.Proof == "" {
		return ErrBadListSignature
	}
	claims := &listClaims{}
	_, err := jwt.ParseWithClaims(l.Proof, claims,
		func(*jwt.Token) (any, error) { return issuerKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadListSignature, err)
	}
	if !sort.SliceIsSorted(l.Entries, func(i, j int) bool { return l.Entries[i].PID < l.Entries[j].PID }) {
		return fmt.Errorf("%w: entries not sorted", ErrBadListSignature)
	}
	digest, err := l.digest()
	if err != nil {
		return err
	}
	if claims.Digest != digest || claims.Issuer != l.Issuer || claims.Version != l.Version {
		return fmt.Errorf("%w: contents do not match proof", ErrBadListSignature)
	}
	l.index()
	return nil
}

func (l *List) index() {
	leaves := make([]merkle.Hash, 0, len(l.Entries))
	for _, e := range l.Entries {
		if e.LeafHash == "" {
			continue
		}
		h, err := merkle.ParseHash(e.LeafHash)
		if err != nil {
			continue
		}
		leaves = append(leaves, h)
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i][:], leaves[j][:]) < 0 })
	l.leaves = leaves
}

// Lookup returns the entry for pid by binary search.
func (l *List) Lookup(pid string) (Entry, bool) {
	i := sort.Search(len(l.Entries), func(i int) bool { return l.Entries[i].PID >= pid })
	if i < len(l.Entries) && l.Entries[i].PID == pid {
		return l.Entries[i], true
	}
	return Entry{}, false
}

// Contains reports whether pid is revoked in this list.
func (l *List) Contains(pid string) bool {
	_, ok := l.Lookup(pid)
	return ok
}

// ContainsLeaf reports whether the registry leaf of a revoked PID is listed.
// Only valid on lists built by Publish or checked by Verify.
func (l *List) ContainsLeaf(leaf merkle.Hash) bool {
	i := sort.Search(len(l.leaves), func(i int) bool { return bytes.Compare(l.leaves[i][:], leaf[:]) >= 0 })
	return i < len(l.leaves) && l.leaves[i] == leaf
}

// IsRevoked reports whether pid appears in list. A nil list counts as
// revoked: without an authenticated list nothing may be assumed active.
func IsRevoked(pid string, list *List) bool {
	if list == nil {
		return true
	}
	return list.Contains(pid)
}
