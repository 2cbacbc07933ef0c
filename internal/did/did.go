// Package did implements self-certifying decentralized identifiers. A DID
// embeds its Ed25519 public key, so resolution never depends on a network
// lookup.
package did

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"pidgate/pkg/platform/sentinel"
)

const (
	Method = "pid"
	prefix = "did:" + Method + ":"

	KeyType      = "Ed25519VerificationKey2020"
	primaryKeyID = "#key-1"
)

var ErrInvalidDID = errors.New("invalid did")

// KeyPair is a principal's signing identity.
type KeyPair struct {
	DID     string
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Generate creates a fresh random key pair.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &KeyPair{DID: FromPublicKey(pub), Public: pub, Private: priv}, nil
}

// FromSeed derives a key pair deterministically from a 32-byte seed.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{DID: FromPublicKey(pub), Public: pub, Private: priv}, nil
}

// FromSecret derives a key pair from an arbitrary user secret with
// HKDF-SHA256.
func FromSecret(secret string) (*KeyPair, error) {
	if secret == "" {
		return nil, errors.New("secret is required")
	}
	seed := make([]byte, ed25519.SeedSize)
	r := hkdf.New(sha256.New, []byte(secret), []byte("pidgate/did"), []byte("ed25519 seed"))
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return FromSeed(seed)
}

// VerificationMethodID names the primary key of a DID.
func (k *KeyPair) VerificationMethodID() string {
	return k.DID + primaryKeyID
}

// FromPublicKey encodes pub as a DID.
func FromPublicKey(pub ed25519.PublicKey) string {
	return prefix + hex.EncodeToString(pub)
}

// PublicKey extracts the key embedded in a DID or one of its verification
// method ids.
func PublicKey(id string) (ed25519.PublicKey, error) {
	id, _, _ = strings.Cut(id, "#")
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDID, id)
	}
	raw, err := hex.DecodeString(rest)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDID, id)
	}
	return ed25519.PublicKey(raw), nil
}

// Valid reports whether id is a well-formed DID of this method.
func Valid(id string) bool {
	_, err := PublicKey(id)
	return err == nil
}

// VerificationMethod is one public key listed in a DID document.
type VerificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Controller   string `json:"controller"`
	PublicKeyHex string `json:"publicKeyHex"`
}

// Document is immutable once created.
type Document struct {
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Created            time.Time            `json:"created"`
}

// NewDocument builds the document for a key pair.
func NewDocument(k *KeyPair, created time.Time) Document {
	return documentFor(k.DID, k.Public, created)
}

func documentFor(id string, pub ed25519.PublicKey, created time.Time) Document {
	return Document{
		ID: id,
		VerificationMethod: []VerificationMethod{{
			ID:           id + primaryKeyID,
			Type:         KeyType,
			Controller:   id,
			PublicKeyHex: hex.EncodeToString(pub),
		}},
		Created: created.UTC(),
	}
}

// Key returns the public key of the verification method with the given id.
func (d Document) Key(methodID string) (ed25519.PublicKey, error) {
	for _, vm := range d.VerificationMethod {
		if vm.ID != methodID {
			continue
		}
		raw, err := hex.DecodeString(vm.PublicKeyHex)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("verification method %s: malformed key", methodID)
		}
		return ed25519.PublicKey(raw), nil
	}
	return nil, fmt.Errorf("verification method %s: %w", methodID, sentinel.ErrNotFound)
}

// Registry stores documents registered with this service.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]Document)}
}

// Register stores doc. Documents cannot be replaced.
func (r *Registry) Register(_ context.Context, doc Document) error {
	if !Valid(doc.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidDID, doc.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return fmt.Errorf("did document %s: %w", doc.ID, sentinel.ErrConflict)
	}
	r.docs[doc.ID] = doc
	return nil
}

// Resolve returns the registered document for id. A well-formed DID that was
// never registered is not trusted and resolves to sentinel.ErrNotFound.
func (r *Registry) Resolve(_ context.Context, id string) (Document, error) {
	r.mu.RLock()
	doc, ok := r.docs[id]
	r.mu.RUnlock()
	if !ok {
		return Document{}, fmt.Errorf("did document %s: %w", id, sentinel.ErrNotFound)
	}
	return doc, nil
}
