package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pidgate/internal/audit"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/middleware/metadata"
	"pidgate/pkg/platform/sentinel"
)

func TestAuthorize(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		policy    Policy
		principal string
		resource  string
		want      bool
	}{
		{"exact", Policy{Principal: "did:pid:carrier", Resource: "JP-13-113-01", Action: "resolve"}, "did:pid:carrier", "JP-13-113-01", true},
		{"resource glob", Policy{Principal: "did:pid:carrier", Resource: "JP-13-*", Action: "resolve"}, "did:pid:carrier", "JP-13-113-01", true},
		{"resource glob miss", Policy{Principal: "did:pid:carrier", Resource: "JP-14-*", Action: "resolve"}, "did:pid:carrier", "JP-13-113-01", false},
		{"principal glob", Policy{Principal: "did:pid:*", Resource: "*", Action: "*"}, "did:pid:carrier", "US-CA-075-SF-12B", true},
		{"other principal", Policy{Principal: "did:pid:carrier", Resource: "*", Action: "resolve"}, "did:pid:other", "JP-13-113-01", false},
		{"not yet expired", Policy{Principal: "*", Resource: "*", Action: "resolve", ExpiresAt: &future}, "did:pid:carrier", "JP-13-113-01", true},
		{"expired", Policy{Principal: "*", Resource: "*", Action: "resolve", ExpiresAt: &past}, "did:pid:carrier", "JP-13-113-01", false},
		{"expires exactly now", Policy{Principal: "*", Resource: "*", Action: "resolve", ExpiresAt: &now}, "did:pid:carrier", "JP-13-113-01", false},
		{"malformed pattern", Policy{Principal: "[", Resource: "*", Action: "resolve"}, "did:pid:carrier", "JP-13-113-01", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.policy, tt.principal, tt.resource, ActionResolve, now))
		})
	}
}

func TestVaultBindsCiphertextToPID(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySealedStore()
	vault, err := NewVault([]byte("vault-secret"), store)
	require.NoError(t, err)

	addr := domain.Address{Country: "JP", City: "Bunkyo", Street: "Hongo 7-3-1"}
	require.NoError(t, vault.Store(ctx, "JP-13-113-01", addr))

	got, err := vault.Load(ctx, "JP-13-113-01")
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	sealed, err := store.Get(ctx, storageKey("JP-13-113-01"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "Hongo")
	require.NoError(t, store.Put(ctx, storageKey("JP-13-113-02"), sealed))
	_, err = vault.Load(ctx, "JP-13-113-02")
	assert.Error(t, err, "ciphertext moved to another pid must not open")

	other, err := NewVault([]byte("other-secret"), store)
	require.NoError(t, err)
	_, err = other.Load(ctx, "JP-13-113-01")
	assert.Error(t, err)

	require.NoError(t, vault.Forget(ctx, "JP-13-113-01"))
	_, err = vault.Load(ctx, "JP-13-113-01")
	assert.Error(t, err)
}

func TestVaultKeepsFirstSealedAddress(t *testing.T) {
	ctx := context.Background()
	vault, err := NewVault([]byte("vault-secret"), NewInMemorySealedStore())
	require.NoError(t, err)

	first := domain.Address{Country: "JP", City: "Bunkyo", Street: "Hongo 7-3-1"}
	require.NoError(t, vault.Store(ctx, "JP-13-113-01", first))
	err = vault.Store(ctx, "JP-13-113-01", domain.Address{Country: "JP", City: "Bunkyo", Street: "Elsewhere 1"})
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	got, err := vault.Load(ctx, "JP-13-113-01")
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

type stubRevocations map[string]bool

func (s stubRevocations) IsRevoked(_ context.Context, pid string) (bool, error) {
	if s == nil {
		return false, errors.New("list unavailable")
	}
	return s[pid], nil
}

type failingAuditor struct{}

func (failingAuditor) Emit(context.Context, audit.Entry) (audit.Entry, error) {
	return audit.Entry{}, errors.New("audit store down")
}

type ResolverSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	vault    *Vault
	audits   *audit.InMemoryStore
	revoked  stubRevocations
	resolver *Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	var err error
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s.vault, err = NewVault([]byte("vault-secret"), NewInMemorySealedStore())
	s.Require().NoError(err)
	s.Require().NoError(s.vault.Store(s.ctx, "JP-13-113-01", domain.Address{Country: "JP", City: "Bunkyo"}))

	s.audits = audit.NewInMemoryStore()
	s.revoked = stubRevocations{}
	s.resolver = NewResolver(NewInMemoryPolicyStore(), s.vault, audit.NewPublisher(s.audits),
		WithRevocationChecker(s.revoked),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *ResolverSuite) grant(resource string, expiresAt *time.Time) {
	_, err := s.resolver.AddPolicy(s.ctx, Policy{Principal: "did:pid:carrier", Resource: resource, Action: ActionResolve, ExpiresAt: expiresAt})
	s.Require().NoError(err)
}

func (s *ResolverSuite) auditTrail(pid string) []audit.Entry {
	entries, err := s.audits.ListByPID(s.ctx, pid)
	s.Require().NoError(err)
	return entries
}

func (s *ResolverSuite) TestGranted() {
	s.grant("JP-13-*", nil)

	addr, err := s.resolver.Resolve(s.ctx, "did:pid:carrier", "JP-13-113-01")
	s.Require().NoError(err)
	s.Equal("Bunkyo", addr.City)

	trail := s.auditTrail("JP-13-113-01")
	s.Require().Len(trail, 1)
	s.Equal(audit.OutcomeGranted, trail[0].Outcome)
	s.Equal("did:pid:carrier", trail[0].Requestor)
}

func (s *ResolverSuite) TestAuditNamesClientDevice() {
	s.grant("JP-13-*", nil)
	ctx := metadata.WithClientMetadata(s.ctx, "203.0.113.8",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")

	_, err := s.resolver.Resolve(ctx, "did:pid:carrier", "JP-13-113-01")
	s.Require().NoError(err)

	trail := s.auditTrail("JP-13-113-01")
	s.Require().Len(trail, 1)
	s.Equal("203.0.113.8", trail[0].ClientIP)
	s.Contains(trail[0].Device, "Firefox")
	s.NotContains(trail[0].Device, "Mozilla/5.0", "raw header is not stored")
}

func (s *ResolverSuite) TestDeniedWithoutPolicy() {
	_, err := s.resolver.Resolve(s.ctx, "did:pid:carrier", "JP-13-113-01")
	var denied *DeniedError
	s.Require().ErrorAs(err, &denied)
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))

	trail := s.auditTrail("JP-13-113-01")
	s.Require().Len(trail, 1)
	s.Equal(audit.OutcomeDenied, trail[0].Outcome)
}

func (s *ResolverSuite) TestDeniedAfterExpiry() {
	expires := s.now.Add(time.Minute)
	s.grant("*", &expires)

	_, err := s.resolver.Resolve(s.ctx, "did:pid:carrier", "JP-13-113-01")
	s.Require().NoError(err)

	s.now = s.now.Add(2 * time.Minute)
	_, err = s.resolver.Resolve(s.ctx, "did:pid:carrier", "JP-13-113-01")
	var denied *DeniedError
	s.ErrorAs(err, &denied)
	s.Len(s.auditTrail("JP-13-113-01"), 2)
}

func (s *ResolverSuite) TestRevokedPIDIsDenied() {
	s.grant("*", nil)
	s.revoked["JP-13-113-01"] = true

	_, err := s.resolver.Resolve(s.ctx, "did:pid:carrier", "JP-13-113-01")
	var denied *DeniedError
	s.Require().ErrorAs(err, &denied)
	s.Equal("pid revoked", denied.Reason)
}

func (s *ResolverSuite) TestUntrustedRevocationStateFailsClosed() {
	s.grant("*", nil)
	resolver := NewResolver(NewInMemoryPolicyStore(), s.vault, audit.NewPublisher(s.audits), WithRevocationChecker(stubRevocations(nil)))
	_, err := resolver.AddPolicy(s.ctx, Policy{Principal: "*", Resource: "*", Action: "*"})
	s.Require().NoError(err)

	_, err = resolver.Resolve(s.ctx, "did:pid:carrier", "JP-13-113-01")
	var denied *DeniedError
	s.ErrorAs(err, &denied)
}

func (s *ResolverSuite) TestMissingAddressIsAudited() {
	s.grant("*", nil)
	_, err := s.resolver.Resolve(s.ctx, "did:pid:carrier", "JP-13-113-09")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	trail := s.auditTrail("JP-13-113-09")
	s.Require().Len(trail, 1)
	s.Equal(audit.OutcomeError, trail[0].Outcome)
}

func (s *ResolverSuite) TestAuditFailureWithholdsAddress() {
	resolver := NewResolver(NewInMemoryPolicyStore(), s.vault, failingAuditor{})
	_, err := resolver.AddPolicy(s.ctx, Policy{Principal: "*", Resource: "*", Action: "*"})
	s.Require().NoError(err)

	addr, err := resolver.Resolve(s.ctx, "did:pid:carrier", "JP-13-113-01")
	s.Require().Error(err)
	s.Equal(domain.Address{}, addr)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ResolverSuite) TestAddPolicyValidates() {
	_, err := s.resolver.AddPolicy(s.ctx, Policy{Principal: "[", Resource: "*", Action: "*"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.resolver.AddPolicy(s.ctx, Policy{Resource: "*", Action: "*"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
