package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
)

type ManagerSuite struct {
	suite.Suite
	ctx     context.Context
	manager *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.manager = NewManager(WithTTL(time.Hour), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *ManagerSuite) TearDownTest() {
	s.manager.Close()
}

func (s *ManagerSuite) TestApproveFlow() {
	created, err := s.manager.Create(s.ctx)
	s.Require().NoError(err)
	s.Equal(StatusPending, created.Status)
	s.NotEmpty(created.Challenge)
	s.Equal(1, s.manager.Timers())

	scanned, err := s.manager.Scan(s.ctx, created.ID, created.Challenge, "did:pid:owner")
	s.Require().NoError(err)
	s.Equal(StatusScanned, scanned.Status)
	s.Empty(scanned.Challenge)

	approved, err := s.manager.Approve(s.ctx, created.ID, "did:pid:owner")
	s.Require().NoError(err)
	s.Equal(StatusApproved, approved.Status)
	s.Equal(0, s.manager.Timers(), "completion cancels the expiry timer")

	got, err := s.manager.Get(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(StatusApproved, got.Status)
}

func (s *ManagerSuite) TestInvalidTransitions() {
	created, err := s.manager.Create(s.ctx)
	s.Require().NoError(err)

	_, err = s.manager.Approve(s.ctx, created.ID, "did:pid:owner")
	s.True(dErrors.HasCode(err, dErrors.CodeSessionStateTransition), "cannot approve before scan")

	_, err = s.manager.Scan(s.ctx, created.ID, "wrong", "did:pid:owner")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.manager.Scan(s.ctx, created.ID, created.Challenge, "did:pid:owner")
	s.Require().NoError(err)

	_, err = s.manager.Deny(s.ctx, created.ID, "did:pid:intruder")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.manager.Deny(s.ctx, created.ID, "did:pid:owner")
	s.Require().NoError(err)

	_, err = s.manager.Approve(s.ctx, created.ID, "did:pid:owner")
	s.True(dErrors.HasCode(err, dErrors.CodeSessionStateTransition), "denied is final")
}

func (s *ManagerSuite) TestDeleteCancelsTimer() {
	created, err := s.manager.Create(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, s.manager.Timers())

	s.Require().NoError(s.manager.Delete(s.ctx, created.ID))
	s.Equal(0, s.manager.Timers())

	_, err = s.manager.Get(s.ctx, created.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.True(dErrors.HasCode(s.manager.Delete(s.ctx, created.ID), dErrors.CodeNotFound))
}

func (s *ManagerSuite) TestUnknownSession() {
	_, err := s.manager.Get(s.ctx, domain.NewSessionID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestSessionExpires(t *testing.T) {
	m := NewManager(WithTTL(20*time.Millisecond), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer m.Close()
	ctx := context.Background()

	created, err := m.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := m.Wait(waitCtx, created.ID, StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	if m.Timers() != 0 {
		t.Fatalf("timers = %d after expiry", m.Timers())
	}
	if _, err := m.Scan(ctx, created.ID, created.Challenge, "did:pid:owner"); !dErrors.HasCode(err, dErrors.CodeSessionStateTransition) {
		t.Fatalf("scan after expiry: %v", err)
	}
}

func TestWaitWakesOnScan(t *testing.T) {
	m := NewManager(WithTTL(time.Hour))
	defer m.Close()
	ctx := context.Background()
	created, err := m.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}

	result := make(chan Session, 1)
	go func() {
		s, _ := m.Wait(ctx, created.ID, StatusPending)
		result <- s
	}()
	if _, err := m.Scan(ctx, created.ID, created.Challenge, "did:pid:owner"); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-result:
		if s.Status != StatusScanned {
			t.Fatalf("status = %s, want scanned", s.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken")
	}
}

func TestFinalSessionsAreEvicted(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("decided sessions leave after retention", func(t *testing.T) {
		m := NewManager(WithTTL(time.Hour), WithRetention(20*time.Millisecond), WithLogger(logger))
		defer m.Close()

		approved, err := m.Create(ctx)
		require.NoError(t, err)
		denied, err := m.Create(ctx)
		require.NoError(t, err)
		open, err := m.Create(ctx)
		require.NoError(t, err)

		for _, c := range []Session{approved, denied} {
			_, err := m.Scan(ctx, c.ID, c.Challenge, "did:pid:owner")
			require.NoError(t, err)
		}
		_, err = m.Approve(ctx, approved.ID, "did:pid:owner")
		require.NoError(t, err)
		_, err = m.Deny(ctx, denied.ID, "did:pid:owner")
		require.NoError(t, err)

		got, err := m.Get(ctx, approved.ID)
		require.NoError(t, err, "still readable inside the retention window")
		assert.Equal(t, StatusApproved, got.Status)

		require.Eventually(t, func() bool { return m.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
		_, err = m.Get(ctx, approved.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = m.Get(ctx, denied.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		pending, err := m.Get(ctx, open.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, pending.Status)
	})

	t.Run("abandoned sessions leave after expiry", func(t *testing.T) {
		m := NewManager(WithTTL(10*time.Millisecond), WithRetention(10*time.Millisecond), WithLogger(logger))
		defer m.Close()

		for range 50 {
			_, err := m.Create(ctx)
			require.NoError(t, err)
		}
		require.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
		assert.Zero(t, m.Timers())
	})

	t.Run("delete during retention stops the eviction", func(t *testing.T) {
		m := NewManager(WithTTL(time.Hour), WithRetention(time.Hour), WithLogger(logger))
		c, err := m.Create(ctx)
		require.NoError(t, err)
		_, err = m.Scan(ctx, c.ID, c.Challenge, "did:pid:owner")
		require.NoError(t, err)
		_, err = m.Deny(ctx, c.ID, "did:pid:owner")
		require.NoError(t, err)

		require.NoError(t, m.Delete(ctx, c.ID))
		done := make(chan struct{})
		go func() {
			m.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("eviction timer kept Close waiting")
		}
	})
}
