// Package session runs the cross-device QR handshake: a desktop creates a
// session, a phone scans its challenge, and the owner approves or denies.
//
//	pending -> scanned -> approved | denied
//	any non-expired state -> expired (ttl elapsed)
//
// Each session owns an expiry timer bound to a cancellable context. Deleting
// or completing a session cancels the context so the timer goroutine exits
// and never touches a session that is gone. A session in a final state stays
// readable for the retention period and is then evicted.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pidgate/internal/session/metrics"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusScanned  Status = "scanned"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Complete reports whether the owner has decided.
func (s Status) Complete() bool {
	return s == StatusApproved || s == StatusDenied
}

// Final reports whether no further transition is possible.
func (s Status) Final() bool {
	return s.Complete() || s == StatusExpired
}

var transitions = map[Status][]Status{
	StatusPending: {StatusScanned, StatusExpired},
	StatusScanned: {StatusApproved, StatusDenied, StatusExpired},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is a snapshot of one handshake.
type Session struct {
	ID        domain.SessionID `json:"id"`
	Status    Status           `json:"status"`
	Challenge string           `json:"challenge,omitempty"`
	Subject   string           `json:"subject,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

type entry struct {
	session Session
	cancel  context.CancelFunc
	evict   context.CancelFunc
	changed chan struct{}
}

// Manager owns all live sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*entry
	timers   sync.WaitGroup
	live     int

	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithRetention sets how long approved, denied and expired sessions remain
// readable before they are evicted.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
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

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[domain.SessionID]*entry),
		ttl:       2 * time.Minute,
		retention: time.Minute,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a pending session and its expiry timer. The returned
// snapshot carries the challenge to encode in the QR code.
func (m *Manager) Create(ctx context.Context) (Session, error) {
	challenge := make([]byte, 16)
	if _, err := rand.Read(challenge); err != nil {
		return Session{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create challenge")
	}
	now := m.now().UTC()
	s := Session{
		ID:        domain.NewSessionID(),
		Status:    StatusPending,
		Challenge: hex.EncodeToString(challenge),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	timerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Lock()
	m.sessions[s.ID] = &entry{session: s, cancel: cancel, changed: make(chan struct{})}
	m.live++
	m.observeLocked(StatusPending)
	m.mu.Unlock()

	m.timers.Add(1)
	go m.expireAfter(timerCtx, s.ID, m.ttl)

	m.logger.InfoContext(ctx, "session created", "session_id", s.ID.String())
	return s, nil
}

func (m *Manager) expireAfter(ctx context.Context, id domain.SessionID, ttl time.Duration) {
	defer m.timers.Done()
	t := time.NewTimer(ttl)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
		m.mu.Lock()
		defer m.mu.Unlock()
		if e, ok := m.sessions[id]; ok && canTransition(e.session.Status, StatusExpired) {
			m.transitionLocked(e, StatusExpired)
			m.logger.Info("session expired", "session_id", id.String())
		}
	}
}

// Get returns the current snapshot. The challenge is omitted; only Create
// hands it out.
func (m *Manager) Get(_ context.Context, id domain.SessionID) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return Session{}, notFound(id)
	}
	s := e.session
	s.Challenge = ""
	return s, nil
}

// Scan binds the session to the scanning subject. The challenge must match
// the one issued at creation.
func (m *Manager) Scan(ctx context.Context, id domain.SessionID, challenge, subject string) (Session, error) {
	if subject == "" {
		return Session{}, dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	return m.update(ctx, id, StatusScanned, func(s *Session) error {
		if subtle.ConstantTimeCompare([]byte(s.Challenge), []byte(challenge)) != 1 {
			return dErrors.New(dErrors.CodeForbidden, "challenge does not match")
		}
		s.Subject = subject
		return nil
	})
}

// Approve completes the session. Only the subject that scanned may decide.
func (m *Manager) Approve(ctx context.Context, id domain.SessionID, subject string) (Session, error) {
	return m.update(ctx, id, StatusApproved, requireSubject(subject))
}

// Deny completes the session negatively.
func (m *Manager) Deny(ctx context.Context, id domain.SessionID, subject string) (Session, error) {
	return m.update(ctx, id, StatusDenied, requireSubject(subject))
}

func requireSubject(subject string) func(*Session) error {
	return func(s *Session) error {
		if subject == "" || s.Subject != subject {
			return dErrors.New(dErrors.CodeForbidden, "session was scanned by another subject")
		}
		return nil
	}
}

func (m *Manager) update(ctx context.Context, id domain.SessionID, to Status, check func(*Session) error) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return Session{}, notFound(id)
	}
	if !canTransition(e.session.Status, to) {
		return Session{}, dErrors.New(dErrors.CodeSessionStateTransition,
			fmt.Sprintf("cannot move session from %s to %s", e.session.Status, to))
	}
	if err := check(&e.session); err != nil {
		return Session{}, err
	}
	m.transitionLocked(e, to)
	m.logger.InfoContext(ctx, "session updated", "session_id", id.String(), "status", to)
	s := e.session
	s.Challenge = ""
	return s, nil
}

// Delete removes the session and cancels its expiry timer.
func (m *Manager) Delete(ctx context.Context, id domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return notFound(id)
	}
	m.removeLocked(id, e)
	m.logger.InfoContext(ctx, "session deleted", "session_id", id.String())
	return nil
}

// Wait blocks while the session is still in status since, then returns the
// latest snapshot. It returns at once if the status already differs.
func (m *Manager) Wait(ctx context.Context, id domain.SessionID, since Status) (Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return Session{}, notFound(id)
	}
	if e.session.Status != since {
		s := e.session
		s.Challenge = ""
		m.mu.Unlock()
		return s, nil
	}
	changed := e.changed
	m.mu.Unlock()

	select {
	case <-changed:
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
	return m.Get(ctx, id)
}

// Close cancels every timer and waits for the timer goroutines to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, e := range m.sessions {
		m.stopTimerLocked(e)
		if e.evict != nil {
			e.evict()
		}
	}
	m.mu.Unlock()
	m.timers.Wait()
}

// Timers returns how many expiry timers are still armed.
func (m *Manager) Timers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

func (m *Manager) transitionLocked(e *entry, to Status) {
	e.session.Status = to
	e.session.UpdatedAt = m.now().UTC()
	close(e.changed)
	e.changed = make(chan struct{})
	if to.Final() {
		m.stopTimerLocked(e)
		m.scheduleEvictionLocked(e)
	}
	m.observeLocked(to)
}

func (m *Manager) scheduleEvictionLocked(e *entry) {
	if e.evict != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.evict = cancel
	m.timers.Add(1)
	go m.evictAfter(ctx, e.session.ID, e, m.retention)
}

func (m *Manager) evictAfter(ctx context.Context, id domain.SessionID, e *entry, after time.Duration) {
	defer m.timers.Done()
	t := time.NewTimer(after)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[id]; ok && cur == e {
		m.removeLocked(id, e)
		m.logger.Info("session evicted", "session_id", id.String(), "status", e.session.Status)
	}
}

// removeLocked drops the session, stops its timers and wakes any waiter.
func (m *Manager) removeLocked(id domain.SessionID, e *entry) {
	m.stopTimerLocked(e)
	if e.evict != nil {
		e.evict()
		e.evict = nil
	}
	close(e.changed)
	delete(m.sessions, id)
}

// Len returns how many sessions are held, including final ones not yet evicted.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) stopTimerLocked(e *entry) {
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.cancel = nil
	m.live--
	if m.metrics != nil {
		m.metrics.SetActive(m.live)
	}
}

func (m *Manager) observeLocked(status Status) {
	if m.metrics == nil {
		return
	}
	m.metrics.IncrementTransition(string(status))
	m.metrics.SetActive(m.live)
}

func notFound(id domain.SessionID) error {
	return dErrors.New(dErrors.CodeNotFound, "session "+id.String()+" not found")
}
