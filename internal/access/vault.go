package access

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/hkdf"

	"pidgate/pkg/domain"
	"pidgate/pkg/platform/sentinel"
)

// SealedStore keeps ciphertexts under opaque keys. Put never replaces an
// existing entry; it returns sentinel.ErrConflict instead.
type SealedStore interface {
	Put(ctx context.Context, key string, sealed []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Vault encrypts raw addresses with AES-256-GCM. The PID is bound as
// additional data, so a ciphertext moved to another PID fails to open.
// Storage keys are hashes of the PID.
type Vault struct {
	aead  cipher.AEAD
	store SealedStore
}

// NewVault derives the AES key from secret with HKDF-SHA256.
func NewVault(secret []byte, store SealedStore) (*Vault, error) {
	if len(secret) == 0 {
		return nil, errors.New("vault secret is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, []byte("pidgate/vault"), []byte("aes-256-gcm")), key); err != nil {
		return nil, fmt.Errorf("derive vault key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create vault cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create vault cipher: %w", err)
	}
	return &Vault{aead: aead, store: store}, nil
}

func storageKey(pid string) string {
	sum := sha256.Sum256([]byte("pidgate/vault|" + pid))
	return hex.EncodeToString(sum[:])
}

// Store seals addr under pid. An address already sealed under pid is kept and
// sentinel.ErrConflict is returned.
func (v *Vault) Store(ctx context.Context, pid string, addr domain.Address) error {
	plain, err := json.Marshal(addr)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("vault nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, plain, []byte(pid))
	return v.store.Put(ctx, storageKey(pid), sealed)
}

// Load opens the address stored for pid. Missing entries return
// sentinel.ErrNotFound.
func (v *Vault) Load(ctx context.Context, pid string) (domain.Address, error) {
	sealed, err := v.store.Get(ctx, storageKey(pid))
	if err != nil {
		return domain.Address{}, err
	}
	n := v.aead.NonceSize()
	if len(sealed) < n {
		return domain.Address{}, errors.New("sealed address truncated")
	}
	plain, err := v.aead.Open(nil, sealed[:n], sealed[n:], []byte(pid))
	if err != nil {
		return domain.Address{}, fmt.Errorf("open sealed address: %w", err)
	}
	var addr domain.Address
	if err := json.Unmarshal(plain, &addr); err != nil {
		return domain.Address{}, fmt.Errorf("decode address: %w", err)
	}
	return addr, nil
}

func (v *Vault) Forget(ctx context.Context, pid string) error {
	return v.store.Delete(ctx, storageKey(pid))
}

type InMemorySealedStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewInMemorySealedStore() *InMemorySealedStore {
	return &InMemorySealedStore{data: make(map[string][]byte)}
}

func (s *InMemorySealedStore) Put(_ context.Context, key string, sealed []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return sentinel.ErrConflict
	}
	s.data[key] = append([]byte(nil), sealed...)
	return nil
}

func (s *InMemorySealedStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sealed, ok := s.data[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), sealed...), nil
}

func (s *InMemorySealedStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// RedisSealedStore keeps ciphertexts in Redis under prefix:key.
type RedisSealedStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSealedStore(client *redis.Client, prefix string) *RedisSealedStore {
	if prefix == "" {
		prefix = "pidgate:vault"
	}
	return &RedisSealedStore{client: client, prefix: prefix}
}

func (s *RedisSealedStore) key(k string) string { return s.prefix + ":" + k }

func (s *RedisSealedStore) Put(ctx context.Context, key string, sealed []byte) error {
	ok, err := s.client.SetNX(ctx, s.key(key), sealed, 0).Result()
	if err != nil {
		return fmt.Errorf("put sealed address: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisSealedStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sealed address: %w", err)
	}
	return sealed, nil
}

func (s *RedisSealedStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete sealed address: %w", err)
	}
	return nil
}
