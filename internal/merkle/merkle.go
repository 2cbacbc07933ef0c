// Package merkle builds power-of-two Merkle trees over leaf hashes and proves
// and verifies inclusion. Sibling pairs are hashed in sorted order, so a proof
// is a plain list of siblings and cannot be malleated by swapping children.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Hash is a SHA-256 node or leaf hash.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// MarshalText encodes the hash as lowercase hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex hash.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64-character hex hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(h) {
		return h, fmt.Errorf("invalid hash %q", s)
	}
	copy(h[:], raw)
	return h, nil
}

// HashLeaf hashes arbitrary leaf data with the leaf domain prefix.
func HashLeaf(data []byte) Hash {
	return sum(0x00, data)
}

// Sentinel pads the leaf level up to the next power of two.
var Sentinel = HashLeaf([]byte("pidgate/merkle/sentinel"))

func sum(prefix byte, parts ...[]byte) Hash {
	h := sha256.New()
	h.Write([]byte{prefix})
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// hashPair orders the children before hashing.
func hashPair(a, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return sum(0x01, a[:], b[:])
}

// Position says on which side of the path node a sibling sits.
type Position string

const (
	SiblingLeft  Position = "left"
	SiblingRight Position = "right"
)

// Proof is an inclusion path from Leaf to Root. Positions are informational;
// sorted pair hashing makes the root independent of them.
type Proof struct {
	Leaf      Hash       `json:"leaf"`
	Root      Hash       `json:"root"`
	Siblings  []Hash     `json:"siblings"`
	Positions []Position `json:"positions"`
}

// ErrLeafNotFound is returned when proving a leaf the tree does not hold.
var ErrLeafNotFound = errors.New("leaf not in tree")

// Tree is an immutable Merkle tree. Append returns a new tree.
type Tree struct {
	levels [][]Hash
	size   int
}

// Build constructs a tree over leaves, padding with Sentinel.
func Build(leaves []Hash) *Tree {
	width := nextPow2(len(leaves))
	base := make([]Hash, width)
	copy(base, leaves)
	for i := len(leaves); i < width; i++ {
		base[i] = Sentinel
	}
	t := &Tree{size: len(leaves)}
	t.rebuild(base)
	return t
}

func (t *Tree) rebuild(base []Hash) {
	levels := [][]Hash{base}
	for cur := base; len(cur) > 1; {
		next := make([]Hash, len(cur)/2)
		for i := range next {
			next[i] = hashPair(cur[2*i], cur[2*i+1])
		}
		levels = append(levels, next)
		cur = next
	}
	t.levels = levels
}

func nextPow2(n int) int {
	w := 1
	for w < n {
		w <<= 1
	}
	return w
}

// Root returns the tree root.
func (t *Tree) Root() Hash {
	return t.levels[len(t.levels)-1][0]
}

// Size is the number of real (non-sentinel) leaves.
func (t *Tree) Size() int { return t.size }

// Leaf returns the i-th leaf.
func (t *Tree) Leaf(i int) Hash { return t.levels[0][i] }

// Append returns a new tree with leaves added. Within the current capacity
// only the affected paths are recomputed; growing past it rebuilds once.
func (t *Tree) Append(leaves ...Hash) *Tree {
	if len(leaves) == 0 {
		return t
	}
	total := t.size + len(leaves)
	if total > len(t.levels[0]) {
		all := make([]Hash, 0, total)
		all = append(all, t.levels[0][:t.size]...)
		all = append(all, leaves...)
		return Build(all)
	}

	next := &Tree{size: total, levels: make([][]Hash, len(t.levels))}
	for i, lvl := range t.levels {
		next.levels[i] = append([]Hash(nil), lvl...)
	}
	for i, leaf := range leaves {
		idx := t.size + i
		next.levels[0][idx] = leaf
		for l := 1; l < len(next.levels); l++ {
			idx /= 2
			next.levels[l][idx] = hashPair(next.levels[l-1][2*idx], next.levels[l-1][2*idx+1])
		}
	}
	return next
}

// Prove returns the inclusion proof for the leaf at index.
func (t *Tree) Prove(index int) (Proof, error) {
	if index < 0 || index >= t.size {
		return Proof{}, fmt.Errorf("leaf index %d out of range [0,%d): %w", index, t.size, ErrLeafNotFound)
	}
	p := Proof{
		Leaf:      t.levels[0][index],
		Root:      t.Root(),
		Siblings:  make([]Hash, 0, len(t.levels)-1),
		Positions: make([]Position, 0, len(t.levels)-1),
	}
	idx := index
	for l := 0; l < len(t.levels)-1; l++ {
		sibling := idx ^ 1
		p.Siblings = append(p.Siblings, t.levels[l][sibling])
		if sibling < idx {
			p.Positions = append(p.Positions, SiblingLeft)
		} else {
			p.Positions = append(p.Positions, SiblingRight)
		}
		idx /= 2
	}
	return p, nil
}

// ProveLeaf finds leaf by linear scan and proves it.
func (t *Tree) ProveLeaf(leaf Hash) (Proof, error) {
	for i := 0; i < t.size; i++ {
		if t.levels[0][i] == leaf {
			return t.Prove(i)
		}
	}
	return Proof{}, ErrLeafNotFound
}

// VerifyInclusion recomputes the root from the leaf and siblings. It never
// panics and returns false for any malformed or non-matching proof.
func VerifyInclusion(p Proof) bool {
	if len(p.Siblings) != len(p.Positions) {
		return false
	}
	cur := p.Leaf
	for i, s := range p.Siblings {
		if p.Positions[i] != SiblingLeft && p.Positions[i] != SiblingRight {
			return false
		}
		cur = hashPair(cur, s)
	}
	return cur == p.Root
}
