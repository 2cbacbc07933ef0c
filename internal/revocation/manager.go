package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"pidgate/internal/did"
	"pidgate/internal/merkle"
	"pidgate/internal/revocation/metrics"
	"pidgate/internal/snapshot"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/sentinel"
)

// ErrNotRunning is returned when the writer loop has stopped.
var ErrNotRunning = errors.New("revocation writer is not running")

// LeafLookup finds the registry leaf of a PID so membership proofs can be
// checked against the list without revealing the PID.
type LeafLookup interface {
	Leaf(pid string) (merkle.Hash, bool)
}

// Request asks for pid to be revoked.
type Request struct {
	PID            string
	Reason         string
	NewPID         string
	RevokedBy      string
	LinkingProofID string
}

type revokeCommand struct {
	req   Request
	reply chan revokeResult
}

type revokeResult struct {
	entry Entry
	err   error
}

// Manager owns the revocation list of one issuer. A single goroutine applies
// revocations; each applied revocation publishes a new signed version.
type Manager struct {
	issuer  *did.KeyPair
	leaves  LeafLookup
	store   snapshot.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	entries map[string]Entry // writer-owned
	inbox   chan revokeCommand
	done    chan struct{}
	latest  atomic.Pointer[List]
}

type Option func(*Manager)

func WithLeafLookup(l LeafLookup) Option {
	return func(m *Manager) {
		m.leaves = l
	}
}

func WithSnapshotStore(store snapshot.Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager publishing an empty version 0 list.
func NewManager(issuer *did.KeyPair, opts ...Option) (*Manager, error) {
	m := &Manager{
		issuer:  issuer,
		store:   snapshot.NewInMemoryStore(),
		logger:  slog.Default(),
		now:     time.Now,
		entries: make(map[string]Entry),
		inbox:   make(chan revokeCommand),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	empty, err := Publish(issuer.DID, issuer.Private, 0, nil, m.now())
	if err != nil {
		return nil, err
	}
	m.latest.Store(empty)
	return m, nil
}

// IssuerDID names the list signer.
func (m *Manager) IssuerDID() string { return m.issuer.DID }

func (m *Manager) snapshotKind() string { return snapshotKind(m.issuer.DID) }

func snapshotKind(issuerDID string) string { return "revocations:" + issuerDID }

// Restore loads the latest persisted list. Call before Run.
func (m *Manager) Restore(ctx context.Context) error {
	rec, err := m.store.Latest(ctx, m.snapshotKind())
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore revocation list: %w", err)
	}
	list, err := m.decode(rec)
	if err != nil {
		return err
	}
	for _, e := range list.Entries {
		m.entries[e.PID] = e
	}
	m.latest.Store(list)
	m.logger.Info("revocation list restored", "version", list.Version, "entries", len(list.Entries))
	return nil
}

// Run applies revocations one at a time until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-m.inbox:
			entry, err := m.apply(ctx, cmd.req)
			cmd.reply <- revokeResult{entry: entry, err: err}
		}
	}
}

// Revoke revokes a PID. Revoking an already revoked PID returns the
// existing entry and publishes nothing.
func (m *Manager) Revoke(ctx context.Context, req Request) (Entry, error) {
	if req.PID == "" {
		return Entry{}, dErrors.New(dErrors.CodeValidation, "pid is required")
	}
	if req.NewPID == req.PID {
		return Entry{}, dErrors.New(dErrors.CodeValidation, "new pid must differ from the revoked pid")
	}
	cmd := revokeCommand{req: req, reply: make(chan revokeResult, 1)}
	select {
	case m.inbox <- cmd:
	case <-m.done:
		return Entry{}, ErrNotRunning
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res.entry, res.err
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

func (m *Manager) apply(ctx context.Context, req Request) (Entry, error) {
	if existing, ok := m.entries[req.PID]; ok {
		return existing, nil
	}
	if req.NewPID != "" {
		if _, ok := m.entries[req.NewPID]; ok {
			return Entry{}, &ConflictError{PID: req.PID, NewPID: req.NewPID}
		}
	}

	entry := Entry{
		PID:            req.PID,
		Reason:         req.Reason,
		NewPID:         req.NewPID,
		RevokedBy:      req.RevokedBy,
		Timestamp:      m.now().UTC(),
		LinkingProofID: req.LinkingProofID,
	}
	if m.leaves != nil {
		if leaf, ok := m.leaves.Leaf(req.PID); ok {
			entry.LeafHash = leaf.String()
		}
	}

	m.entries[req.PID] = entry
	if _, err := m.publish(ctx); err != nil {
		delete(m.entries, req.PID)
		return Entry{}, err
	}
	if m.metrics != nil {
		m.metrics.IncrementRevocations()
	}
	m.logger.InfoContext(ctx, "pid revoked", "reason", req.Reason, "has_successor", req.NewPID != "")
	return entry, nil
}

func (m *Manager) publish(ctx context.Context) (*List, error) {
	entries := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	version := m.latest.Load().Version + 1
	list, err := Publish(m.issuer.DID, m.issuer.Private, version, entries, m.now())
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode revocation list: %w", err)
	}
	err = m.store.Put(ctx, snapshot.Record{
		Kind:      m.snapshotKind(),
		Version:   list.Version,
		Timestamp: list.Timestamp,
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("persist revocation list v%d: %w", version, err)
	}
	m.latest.Store(list)
	if m.metrics != nil {
		m.metrics.ObservePublish(list.Version, len(list.Entries))
	}
	return list, nil
}

// Latest returns the most recently published list.
func (m *Manager) Latest(context.Context) (*List, error) {
	return m.latest.Load(), nil
}

// Version returns a specific published version.
func (m *Manager) Version(ctx context.Context, version uint64) (*List, error) {
	rec, err := m.store.Get(ctx, m.snapshotKind(), version)
	if err != nil {
		return nil, err
	}
	return m.decode(rec)
}

// At returns the list that was in force at t.
func (m *Manager) At(ctx context.Context, t time.Time) (*List, error) {
	rec, err := m.store.AtOrBefore(ctx, m.snapshotKind(), t)
	if err != nil {
		return nil, err
	}
	return m.decode(rec)
}

func (m *Manager) decode(rec snapshot.Record) (*List, error) {
	var list List
	if err := json.Unmarshal(rec.Payload, &list); err != nil {
		return nil, fmt.Errorf("decode revocation list v%d: %w", rec.Version, err)
	}
	if err := list.Verify(m.issuer.Public); err != nil {
		return nil, &UntrustedError{Err: err}
	}
	return &list, nil
}
