package revocation

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"pidgate/internal/merkle"
	"pidgate/internal/revocation/metrics"
	"pidgate/internal/snapshot"
)

// Source yields the current revocation list.
type Source interface {
	Latest(ctx context.Context) (*List, error)
}

// Checker answers revocation questions from an authenticated list. Any
// failure to fetch or authenticate the list is returned as *UntrustedError,
// never as "not revoked".
type Checker struct {
	source    Source
	issuerKey ed25519.PublicKey
	maxAge    time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics

	verified atomic.Pointer[verifiedList]
}

// verifiedList caches the authenticated copy of the last list seen, so an
// unchanged in-process list is not re-verified on every check.
type verifiedList struct {
	src  *List
	list *List
}

type CheckerOption func(*Checker)

// WithMaxAge rejects lists older than d. Zero disables the check.
func WithMaxAge(d time.Duration) CheckerOption {
	return func(c *Checker) {
		c.maxAge = d
	}
}

func WithCheckerClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		c.now = now
	}
}

func WithCheckerLogger(logger *slog.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

func WithCheckerMetrics(m *metrics.Metrics) CheckerOption {
	return func(c *Checker) {
		c.metrics = m
	}
}

func NewChecker(source Source, issuerKey ed25519.PublicKey, opts ...CheckerOption) *Checker {
	c := &Checker{
		source:    source,
		issuerKey: issuerKey,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the latest list after authenticating it.
func (c *Checker) Current(ctx context.Context) (*List, error) {
	list, err := c.source.Latest(ctx)
	if err != nil {
		return nil, c.untrusted(ctx, fmt.Errorf("fetch revocation list: %w", err))
	}
	if list == nil {
		return nil, c.untrusted(ctx, ErrBadListSignature)
	}
	if cached := c.verified.Load(); cached != nil && cached.src == list {
		list = cached.list
	} else {
		src := list
		authenticated := *list
		if err := authenticated.Verify(c.issuerKey); err != nil {
			return nil, c.untrusted(ctx, err)
		}
		list = &authenticated
		c.verified.Store(&verifiedList{src: src, list: list})
	}
	if c.maxAge > 0 && c.now().Sub(list.Timestamp) > c.maxAge {
		return nil, c.untrusted(ctx, fmt.Errorf("revocation list v%d is older than %s", list.Version, c.maxAge))
	}
	return list, nil
}

// IsRevoked reports whether pid is revoked.
func (c *Checker) IsRevoked(ctx context.Context, pid string) (bool, error) {
	list, err := c.Current(ctx)
	if err != nil {
		return true, err
	}
	return list.Contains(pid), nil
}

// IsLeafRevoked reports whether the registry leaf belongs to a revoked PID.
func (c *Checker) IsLeafRevoked(ctx context.Context, leaf merkle.Hash) (bool, error) {
	list, err := c.Current(ctx)
	if err != nil {
		return true, err
	}
	return list.ContainsLeaf(leaf), nil
}

func (c *Checker) untrusted(ctx context.Context, err error) error {
	if c.metrics != nil {
		c.metrics.IncrementUntrusted()
	}
	c.logger.WarnContext(ctx, "revocation list untrusted", "error", err)
	return &UntrustedError{Err: err}
}

// SnapshotSource reads the latest list straight from a snapshot store, as a
// verifier on another machine would.
type SnapshotSource struct {
	store     snapshot.Store
	issuerDID string
}

func NewSnapshotSource(store snapshot.Store, issuerDID string) *SnapshotSource {
	return &SnapshotSource{store: store, issuerDID: issuerDID}
}

func (s *SnapshotSource) Latest(ctx context.Context) (*List, error) {
	rec, err := s.store.Latest(ctx, snapshotKind(s.issuerDID))
	if err != nil {
		return nil, err
	}
	var list List
	if err := json.Unmarshal(rec.Payload, &list); err != nil {
		return nil, fmt.Errorf("decode revocation list: %w", err)
	}
	return &list, nil
}
