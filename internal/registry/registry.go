package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pidgate/internal/commitment"
	"pidgate/internal/merkle"
	"pidgate/internal/registry/metrics"
	"pidgate/internal/snapshot"
	"pidgate/pkg/platform/sentinel"
)

// ErrNotRunning is returned when the writer loop has stopped.
var ErrNotRunning = errors.New("registry writer is not running")

// parallelCommitThreshold is the batch size above which commitments are
// computed concurrently.
const parallelCommitThreshold = 64

// Receipt is returned to the registrant. Commitment carries the opening
// nonce and must be kept by the prover to build membership proofs later.
type Receipt struct {
	PID        string                `json:"pid"`
	Index      int                   `json:"index"`
	Leaf       merkle.Hash           `json:"leaf"`
	Commitment commitment.Commitment `json:"commitment"`
	Root       SignedRoot            `json:"root"`
}

// state is one published version. It is never mutated after publication.
type state struct {
	tree  *merkle.Tree
	root  SignedRoot
	index map[string]int
}

type appendRequest struct {
	pids  []string
	reply chan appendResult
}

type appendResult struct {
	receipts []Receipt
	err      error
}

// Registry is an append-only Merkle registry with a single writer goroutine.
type Registry struct {
	scope   string
	signer  *RootSigner
	scheme  commitment.Scheme
	window  *Window
	store   snapshot.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	inbox   chan appendRequest
	done    chan struct{}
	current atomic.Pointer[state]
}

type Option func(*Registry)

func WithWindowSize(n int) Option {
	return func(r *Registry) {
		r.window = NewWindow(n)
	}
}

func WithSnapshotStore(store snapshot.Store) Option {
	return func(r *Registry) {
		r.store = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithScheme(scheme commitment.Scheme) Option {
	return func(r *Registry) {
		r.scheme = scheme
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates a registry for scope. Call Run to start its writer.
func New(scope string, signer *RootSigner, opts ...Option) *Registry {
	r := &Registry{
		scope:  scope,
		signer: signer,
		scheme: commitment.HashScheme{},
		window: NewWindow(defaultWindowSize),
		logger: slog.Default(),
		now:    time.Now,
		inbox:  make(chan appendRequest),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	empty := merkle.Build(nil)
	r.current.Store(&state{
		tree:  empty,
		root:  r.signer.Sign(SignedRoot{Scope: scope, Root: empty.Root(), PublishedAt: r.now()}),
		index: map[string]int{},
	})
	return r
}

// Scope names the registry in signed roots.
func (r *Registry) Scope() string { return r.scope }

// Window exposes the accepted-root window.
func (r *Registry) Window() *Window { return r.window }

// Roots returns the roots verifiers currently accept, newest first.
func (r *Registry) Roots() []SignedRoot { return r.window.Roots() }

func (r *Registry) snapshotKind() string { return "registry:" + r.scope }

// Restore reloads the most recent published roots into the window so proofs
// issued before a restart keep verifying. Leaves are not persisted.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	recs, err := r.store.List(ctx, r.snapshotKind(), r.window.Capacity())
	if err != nil {
		return fmt.Errorf("restore registry roots: %w", err)
	}
	for i := len(recs) - 1; i >= 0; i-- {
		var root SignedRoot
		if err := json.Unmarshal(recs[i].Payload, &root); err != nil {
			return fmt.Errorf("decode registry root v%d: %w", recs[i].Version, err)
		}
		if err := r.signer.Verify(root); err != nil {
			return fmt.Errorf("restored root v%d: %w", root.Version, err)
		}
		r.window.Push(root)
	}
	// The latest restored root is served as current until the next append,
	// which continues the version sequence from it.
	if latest, ok := r.window.Latest(); ok {
		cur := r.current.Load()
		next := *cur
		next.root = latest
		r.current.Store(&next)
	}
	r.logger.Info("registry roots restored", "scope", r.scope, "roots", len(recs))
	return nil
}

// Run applies queued appends one at a time until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-r.inbox:
			receipts, err := r.apply(ctx, req.pids)
			req.reply <- appendResult{receipts: receipts, err: err}
		}
	}
}

// Append queues pids for insertion and waits until the new root is
// published. All pids in one call land in the same version.
func (r *Registry) Append(ctx context.Context, pids ...string) ([]Receipt, error) {
	if len(pids) == 0 {
		return nil, nil
	}
	req := appendRequest{pids: pids, reply: make(chan appendResult, 1)}
	select {
	case r.inbox <- req:
	case <-r.done:
		return nil, ErrNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.receipts, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) apply(ctx context.Context, pids []string) ([]Receipt, error) {
	cur := r.current.Load()
	seen := make(map[string]struct{}, len(pids))
	for _, pid := range pids {
		if _, ok := cur.index[pid]; ok {
			return nil, fmt.Errorf("pid already registered: %w", sentinel.ErrConflict)
		}
		if _, ok := seen[pid]; ok {
			return nil, fmt.Errorf("duplicate pid in batch: %w", sentinel.ErrConflict)
		}
		seen[pid] = struct{}{}
	}

	commitments, err := r.commitAll(ctx, pids)
	if err != nil {
		return nil, err
	}
	leaves := make([]merkle.Hash, len(commitments))
	for i, c := range commitments {
		d, err := c.Digest()
		if err != nil {
			return nil, err
		}
		leaves[i] = merkle.Hash(d)
	}

	tree := cur.tree.Append(leaves...)
	root := r.signer.Sign(SignedRoot{
		Scope:       r.scope,
		Version:     cur.root.Version + 1,
		Root:        tree.Root(),
		LeafCount:   tree.Size(),
		PublishedAt: r.now(),
	})
	if err := r.persist(ctx, root); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(cur.index)+len(pids))
	for k, v := range cur.index {
		index[k] = v
	}
	receipts := make([]Receipt, len(pids))
	for i, pid := range pids {
		idx := cur.tree.Size() + i
		index[pid] = idx
		receipts[i] = Receipt{PID: pid, Index: idx, Leaf: leaves[i], Commitment: commitments[i], Root: root}
	}

	r.current.Store(&state{tree: tree, root: root, index: index})
	r.window.Push(root)
	if r.metrics != nil {
		r.metrics.ObservePublish(r.scope, len(pids), root.Version, root.LeafCount)
	}
	r.logger.Debug("registry root published",
		"scope", r.scope, "version", root.Version, "leaves", root.LeafCount)
	return receipts, nil
}

func (r *Registry) commitAll(ctx context.Context, pids []string) ([]commitment.Commitment, error) {
	out := make([]commitment.Commitment, len(pids))
	if len(pids) < parallelCommitThreshold {
		for i, pid := range pids {
			c, err := r.scheme.Commit(pid, nil)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, pid := range pids {
		g.Go(func() error {
			c, err := r.scheme.Commit(pid, nil)
			if err != nil {
				return err
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Registry) persist(ctx context.Context, root SignedRoot) error {
	if r.store == nil {
		return nil
	}
	payload, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("encode registry root: %w", err)
	}
	err = r.store.Put(ctx, snapshot.Record{
		Kind:      r.snapshotKind(),
		Version:   root.Version,
		Timestamp: root.PublishedAt,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("persist registry root v%d: %w", root.Version, err)
	}
	return nil
}

// Root returns the latest published root.
func (r *Registry) Root() SignedRoot {
	return r.current.Load().root
}

// Size returns the number of registered PIDs.
func (r *Registry) Size() int {
	return r.current.Load().tree.Size()
}

// Leaf returns the registered leaf for pid.
func (r *Registry) Leaf(pid string) (merkle.Hash, bool) {
	st := r.current.Load()
	idx, ok := st.index[pid]
	if !ok {
		return merkle.Hash{}, false
	}
	return st.tree.Leaf(idx), true
}

// Prove returns an inclusion proof for pid against the latest root, along
// with that root. Both come from the same published version.
func (r *Registry) Prove(pid string) (merkle.Proof, SignedRoot, error) {
	st := r.current.Load()
	idx, ok := st.index[pid]
	if !ok {
		return merkle.Proof{}, SignedRoot{}, fmt.Errorf("pid not registered: %w", merkle.ErrLeafNotFound)
	}
	p, err := st.tree.Prove(idx)
	if err != nil {
		return merkle.Proof{}, SignedRoot{}, err
	}
	return p, st.root, nil
}
