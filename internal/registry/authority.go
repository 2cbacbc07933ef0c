package registry

import (
	"errors"
	"sync"
	"time"

	"pidgate/internal/merkle"
	"pidgate/internal/registry/metrics"
)

const defaultEphemeralMaxAge = 5 * time.Minute

// Authority decides whether a presented root is still acceptable. Registry
// roots must sit in their registry's window; ad hoc set and locker roots must
// be younger than the max age.
type Authority struct {
	signer  *RootSigner
	maxAge  time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu      sync.RWMutex
	windows map[string]*Window
}

type AuthorityOption func(*Authority)

func WithEphemeralMaxAge(d time.Duration) AuthorityOption {
	return func(a *Authority) {
		if d > 0 {
			a.maxAge = d
		}
	}
}

func WithAuthorityClock(now func() time.Time) AuthorityOption {
	return func(a *Authority) {
		a.now = now
	}
}

func WithAuthorityMetrics(m *metrics.Metrics) AuthorityOption {
	return func(a *Authority) {
		a.metrics = m
	}
}

func NewAuthority(signer *RootSigner, opts ...AuthorityOption) *Authority {
	a := &Authority{
		signer:  signer,
		maxAge:  defaultEphemeralMaxAge,
		now:     time.Now,
		windows: make(map[string]*Window),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Track makes the registry's window authoritative for its scope.
func (a *Authority) Track(r *Registry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.windows[r.Scope()] = r.Window()
}

// SignEphemeral signs the root of an ad hoc tree under scope.
func (a *Authority) SignEphemeral(scope string, tree *merkle.Tree) SignedRoot {
	return a.signer.Sign(SignedRoot{
		Scope:       scope,
		Version:     1,
		Root:        tree.Root(),
		LeafCount:   tree.Size(),
		PublishedAt: a.now(),
	})
}

// CheckRoot returns nil if root is authentic and still accepted. Errors are
// ErrBadRootSignature, ErrStaleRoot or ErrUnknownScope.
func (a *Authority) CheckRoot(root SignedRoot) error {
	err := a.checkRoot(root)
	if err != nil && a.metrics != nil {
		a.metrics.IncrementRootRejection(rejectionReason(err))
	}
	return err
}

func (a *Authority) checkRoot(root SignedRoot) error {
	if err := a.signer.Verify(root); err != nil {
		return err
	}
	if root.Ephemeral() {
		age := a.now().Sub(root.PublishedAt)
		if age > a.maxAge || age < -a.maxAge {
			return ErrStaleRoot
		}
		return nil
	}

	a.mu.RLock()
	w, ok := a.windows[root.Scope]
	a.mu.RUnlock()
	if !ok {
		return ErrUnknownScope
	}
	accepted, ok := w.Find(root.Root)
	if !ok || accepted.Version != root.Version {
		return ErrStaleRoot
	}
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrBadRootSignature):
		return "bad_signature"
	case errors.Is(err, ErrUnknownScope):
		return "unknown_scope"
	default:
		return "stale"
	}
}
