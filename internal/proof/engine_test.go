package proof

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pidgate/internal/commitment"
	"pidgate/internal/did"
	"pidgate/internal/merkle"
	"pidgate/internal/pid"
	"pidgate/internal/registry"
	"pidgate/internal/revocation"
	"pidgate/pkg/domain"
	"pidgate/pkg/platform/sentinel"
)

type EngineSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	now       time.Time
	issuer    *did.KeyPair
	reg       *registry.Registry
	authority *registry.Authority
	manager   *revocation.Manager
	owners    ownerTable
	engine    *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	var err error
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.issuer, err = did.FromSecret("engine-suite-issuer")
	s.Require().NoError(err)

	signer := registry.NewRootSigner([]byte("engine-suite-root-key"))
	s.reg = registry.New(s.issuer.DID, signer, registry.WithWindowSize(2))
	s.authority = registry.NewAuthority(signer, registry.WithAuthorityClock(clock))
	s.authority.Track(s.reg)

	s.manager, err = revocation.NewManager(s.issuer, revocation.WithLeafLookup(s.reg))
	s.Require().NoError(err)
	checker := revocation.NewChecker(s.manager, s.issuer.Public)

	go func() { _ = s.reg.Run(s.ctx) }()
	go func() { _ = s.manager.Run(s.ctx) }()

	s.owners = ownerTable{}
	s.engine = NewEngine(s.authority, checker, NewHashBackend([]byte("engine-suite-circuit-key")),
		WithClock(clock),
		WithDirectory(s.reg),
		WithOwners(s.owners),
	)
}

func (s *EngineSuite) TearDownTest() {
	s.cancel()
}

func (s *EngineSuite) register(pids ...string) []registry.Receipt {
	receipts, err := s.reg.Append(s.ctx, pids...)
	s.Require().NoError(err)
	return receipts
}

func (s *EngineSuite) membership(receipt registry.Receipt) *MembershipProof {
	p, err := s.engine.GenerateMembership(s.ctx, MembershipInput{PID: receipt.PID, Opening: receipt.Commitment}, s.reg)
	s.Require().NoError(err)
	return p
}

func (s *EngineSuite) TestMembershipAgainstLargeRegistry() {
	pids := make([]string, 0, 1000)
	for i := range 1000 {
		pids = append(pids, fmt.Sprintf("JP-%02d-%03d-%02d", 1+i%47, i, i%100))
	}
	pids[500] = "JP-13-113-01"
	receipts := s.register(pids...)
	target := receipts[500]

	p := s.membership(target)
	s.Equal(Result{Valid: true}, s.engine.Verify(s.ctx, p, nil))

	s.Run("public signals hide the pid", func() {
		for _, v := range p.PublicSignals() {
			s.NotContains(v, "JP-13-113-01")
		}
		raw, err := json.Marshal(p)
		s.Require().NoError(err)
		s.NotContains(string(raw), "JP-13-113-01")
		s.NotContains(string(raw), target.Commitment.Nonce)
	})

	_, err := s.manager.Revoke(s.ctx, revocation.Request{PID: "JP-13-113-01", Reason: "moved"})
	s.Require().NoError(err)

	s.Equal(domain.ReasonRevoked, s.engine.Verify(s.ctx, p, nil).Reason)
}

func (s *EngineSuite) TestMembershipVerificationIsIdempotent() {
	p := s.membership(s.register("JP-13-113-01")[0])
	first := s.engine.Verify(s.ctx, p, nil)
	s.Equal(first, s.engine.Verify(s.ctx, p, nil))
	s.True(first.Valid)
}

func (s *EngineSuite) TestMembershipRejectsWrongOpening() {
	receipts := s.register("JP-13-113-01", "JP-13-113-02")

	_, err := s.engine.GenerateMembership(s.ctx, MembershipInput{PID: "JP-13-113-01", Opening: receipts[1].Commitment}, s.reg)
	var genErr *GenerationError
	s.ErrorAs(err, &genErr)

	_, err = s.engine.GenerateMembership(s.ctx, MembershipInput{PID: "JP-99-999-99", Opening: receipts[0].Commitment}, s.reg)
	s.ErrorAs(err, &genErr)
	s.ErrorIs(err, merkle.ErrLeafNotFound)
}

func (s *EngineSuite) TestMembershipTampering() {
	receipt := s.register("JP-13-113-01", "JP-13-113-02")[0]

	s.Run("foreign commitment", func() {
		p := s.membership(receipt)
		other := s.register("JP-13-113-03")[0]
		p.Commitment = other.Commitment.Public()
		s.Equal(domain.ReasonInvalid, s.engine.Verify(s.ctx, p, nil).Reason)
	})

	s.Run("forged root signature", func() {
		p := s.membership(receipt)
		p.Root.Signature = strings.Repeat("0", len(p.Root.Signature))
		s.Equal(domain.ReasonBadSignature, s.engine.Verify(s.ctx, p, nil).Reason)
	})

	s.Run("leaked nonce", func() {
		p := s.membership(receipt)
		p.Commitment = receipt.Commitment
		s.Equal(domain.ReasonInvalid, s.engine.Verify(s.ctx, p, nil).Reason)
	})

	s.Run("pinned root mismatch", func() {
		p := s.membership(receipt)
		res := s.engine.Verify(s.ctx, p, Signals{"root": merkle.HashLeaf([]byte("other")).String()})
		s.Equal(domain.ReasonInvalid, res.Reason)
	})

	s.Run("circuit mismatch", func() {
		p := s.membership(receipt)
		p.CircuitID = CircuitID(KindLocker)
		s.Equal(domain.ReasonInvalid, s.engine.Verify(s.ctx, p, nil).Reason)
	})
}

func (s *EngineSuite) TestMembershipStaleRoot() {
	receipt := s.register("JP-13-113-01")[0]
	p := s.membership(receipt)

	s.register("JP-13-113-02")
	s.True(s.engine.Verify(s.ctx, p, nil).Valid, "root still inside the window")

	s.register("JP-13-113-03")
	s.Equal(domain.ReasonStaleRoot, s.engine.Verify(s.ctx, p, nil).Reason)
}

func (s *EngineSuite) TestSetMembership() {
	s.register("JP-13-113-01", "JP-13-113-02", "JP-13-113-03")
	set := []string{"JP-13-113-03", "JP-13-113-01", "JP-13-113-02"}
	pinned := Signals{"scope": SetScope(set)}

	p, err := s.engine.GenerateSetMembership(s.ctx, "JP-13-113-01", set)
	s.Require().NoError(err)
	s.True(registry.IsEphemeralScope(p.Root.Scope))
	s.Equal(SetScope(set), p.Root.Scope)
	s.True(s.engine.Verify(s.ctx, p, pinned).Valid)

	again, err := s.engine.GenerateSetMembership(s.ctx, "JP-13-113-02", []string{"JP-13-113-01", "JP-13-113-02", "JP-13-113-03"})
	s.Require().NoError(err)
	s.Equal(p.Root.Scope, again.Root.Scope, "scope depends on set contents only")

	_, err = s.engine.GenerateSetMembership(s.ctx, "JP-13-113-09", set)
	var genErr *GenerationError
	s.ErrorAs(err, &genErr)

	_, err = s.engine.GenerateSetMembership(s.ctx, "JP-13-113-01", nil)
	s.ErrorAs(err, &genErr)

	s.now = s.now.Add(10 * time.Minute)
	s.Equal(domain.ReasonStaleRoot, s.engine.Verify(s.ctx, p, pinned).Reason)
}

func (s *EngineSuite) TestSetMembershipAdmitsOnlyRegisteredMembers() {
	s.register("JP-13-113-01", "JP-13-113-02")

	s.Run("unregistered member", func() {
		_, err := s.engine.GenerateSetMembership(s.ctx, "JP-99-999-99", []string{"JP-99-999-99", "JP-13-113-01"})
		var genErr *GenerationError
		s.Require().ErrorAs(err, &genErr)
		s.ErrorIs(err, merkle.ErrLeafNotFound)
	})

	s.Run("unregistered set entry", func() {
		_, err := s.engine.GenerateSetMembership(s.ctx, "JP-13-113-01", []string{"JP-13-113-01", "JP-99-999-99"})
		var genErr *GenerationError
		s.ErrorAs(err, &genErr)
	})

	s.Run("revoked member", func() {
		_, err := s.manager.Revoke(s.ctx, revocation.Request{PID: "JP-13-113-02", Reason: "moved"})
		s.Require().NoError(err)

		_, err = s.engine.GenerateSetMembership(s.ctx, "JP-13-113-02", []string{"JP-13-113-01", "JP-13-113-02"})
		var genErr *GenerationError
		s.ErrorAs(err, &genErr)
	})

	s.Run("no directory configured", func() {
		bare := NewEngine(s.authority, failingChecker{}, NewHashBackend([]byte("engine-suite-circuit-key")))
		_, err := bare.GenerateSetMembership(s.ctx, "JP-13-113-01", []string{"JP-13-113-01"})
		var untrusted *revocation.UntrustedError
		s.ErrorAs(err, &untrusted)
	})
}

func (s *EngineSuite) TestSetMembershipRequiresPinnedScope() {
	s.register("JP-13-113-01", "JP-13-113-02", "JP-13-113-03")
	mine := []string{"JP-13-113-01", "JP-13-113-02"}
	p, err := s.engine.GenerateSetMembership(s.ctx, "JP-13-113-01", mine)
	s.Require().NoError(err)

	s.Equal(domain.ReasonInvalid, s.engine.Verify(s.ctx, p, nil).Reason, "unpinned set scope")

	theirs := Signals{"scope": SetScope([]string{"JP-13-113-02", "JP-13-113-03"})}
	s.Equal(domain.ReasonInvalid, s.engine.Verify(s.ctx, p, theirs).Reason, "proof over a different set")

	s.True(s.engine.Verify(s.ctx, p, Signals{"scope": SetScope(mine)}).Valid)
}

func (s *EngineSuite) TestLocker() {
	lockers := []string{"L-01", "L-02", "L-03"}
	p, err := s.engine.GenerateLocker(s.ctx, "L-02", "FAC-9", lockers)
	s.Require().NoError(err)
	s.Equal("FAC-9", p.PublicSignals()["facilityId"])
	s.True(s.engine.Verify(s.ctx, p, Signals{"facilityId": "FAC-9"}).Valid)

	s.Run("facility swapped", func() {
		forged := *p
		forged.FacilityID = "FAC-1"
		s.Equal(domain.ReasonInvalid, s.engine.Verify(s.ctx, &forged, nil).Reason)
	})

	s.Run("unavailable locker", func() {
		_, err := s.engine.GenerateLocker(s.ctx, "L-09", "FAC-9", lockers)
		var genErr *GenerationError
		s.ErrorAs(err, &genErr)
	})
}

func (s *EngineSuite) TestStructure() {
	p, err := s.engine.GenerateStructure(s.ctx, "JP-13-113-01")
	s.Require().NoError(err)
	s.Equal(Signals{"countryCode": "JP", "hierarchyDepth": "4"}, p.PublicSignals())
	s.True(s.engine.Verify(s.ctx, p, Signals{"countryCode": "JP"}).Valid)

	raw, err := json.Marshal(p)
	s.Require().NoError(err)
	for _, secret := range []string{"\"113\"", "\"13\"", "\"01\""} {
		s.NotContains(string(raw), secret)
	}

	s.Run("country expectation", func() {
		s.Equal(domain.ReasonInvalid, s.engine.Verify(s.ctx, p, Signals{"countryCode": "US"}).Reason)
	})

	s.Run("depth tampered", func() {
		forged := *p
		forged.HierarchyDepth = 3
		forged.Segments = forged.Segments[:3]
		forged.LevelValidity = forged.LevelValidity[:3]
		s.Equal(domain.ReasonInvalid, s.engine.Verify(s.ctx, &forged, nil).Reason)
	})

	s.Run("attestation tampered", func() {
		forged := *p
		forged.Segments = append([]commitment.Commitment(nil), p.Segments...)
		forged.Segments[1], forged.Segments[2] = forged.Segments[2], forged.Segments[1]
		s.Equal(domain.ReasonBadSignature, s.engine.Verify(s.ctx, &forged, nil).Reason)
	})

	s.Run("malformed pid", func() {
		_, err := s.engine.GenerateStructure(s.ctx, "JP-1A-113-01")
		var malformed *pid.MalformedPIDError
		s.ErrorAs(err, &malformed)
	})
}

func (s *EngineSuite) TestSelectiveReveal() {
	addr := domain.Address{
		Country:    "JP",
		PostalCode: "113-0033",
		Province:   "Tokyo",
		City:       "Bunkyo",
		Street:     "Hongo 7-3-1",
		Building:   "Main",
		Room:       "201",
	}
	p, err := s.engine.GenerateSelectiveReveal(s.ctx, addr, []string{"city", "postal_code"})
	s.Require().NoError(err)

	res := s.engine.Verify(s.ctx, p, nil)
	s.Require().True(res.Valid)
	s.Equal(map[string]string{"city": "Bunkyo", "postal_code": "113-0033"}, res.RevealedData)
	s.Len(p.Hidden, len(domain.AddressFields)-2)

	raw, err := json.Marshal(p)
	s.Require().NoError(err)
	for _, secret := range []string{"Hongo", "Tokyo", "Main", "\"201\""} {
		s.NotContains(string(raw), secret)
	}

	s.Run("revealed value altered", func() {
		forged := *p
		forged.Revealed = map[string]string{"city": "Taito", "postal_code": "113-0033"}
		s.Equal(domain.ReasonBadSignature, s.engine.Verify(s.ctx, &forged, nil).Reason)
	})

	s.Run("field dropped", func() {
		forged := *p
		forged.Revealed = map[string]string{"city": "Bunkyo"}
		s.Equal(domain.ReasonInvalid, s.engine.Verify(s.ctx, &forged, nil).Reason)
	})

	s.Run("unknown field", func() {
		_, err := s.engine.GenerateSelectiveReveal(s.ctx, addr, []string{"planet"})
		var genErr *GenerationError
		s.ErrorAs(err, &genErr)
	})
}

func (s *EngineSuite) TestVersion() {
	owner, err := did.FromSecret("owner")
	s.Require().NoError(err)
	s.owners["JP-13-113-01"] = owner.DID
	s.owners["JP-13-113-02"] = owner.DID

	ab, err := s.engine.GenerateVersion(s.ctx, VersionInput{OldPID: "JP-13-113-01", NewPID: "JP-13-113-02", Owner: owner})
	s.Require().NoError(err)
	bc, err := s.engine.GenerateVersion(s.ctx, VersionInput{OldPID: "JP-13-113-02", NewPID: "JP-13-113-03", Owner: owner})
	s.Require().NoError(err)

	s.True(s.engine.Verify(s.ctx, ab, Signals{"oldPid": "JP-13-113-01", "newPid": "JP-13-113-02"}).Valid)
	s.True(s.engine.Verify(s.ctx, bc, nil).Valid)

	s.Run("links do not compose", func() {
		expected := Signals{"oldPid": "JP-13-113-01", "newPid": "JP-13-113-03"}
		s.False(s.engine.Verify(s.ctx, ab, expected).Valid)
		s.False(s.engine.Verify(s.ctx, bc, expected).Valid)
	})

	s.Run("endpoint rewritten", func() {
		forged := *ab
		forged.NewPID = "JP-13-113-03"
		s.Equal(domain.ReasonBadSignature, s.engine.Verify(s.ctx, &forged, nil).Reason)
	})

	s.Run("same endpoints", func() {
		_, err := s.engine.GenerateVersion(s.ctx, VersionInput{OldPID: "JP-13-113-01", NewPID: "JP-13-113-01", Owner: owner})
		var genErr *GenerationError
		s.ErrorAs(err, &genErr)
	})

	s.Run("revoked successor", func() {
		_, err := s.manager.Revoke(s.ctx, revocation.Request{PID: "JP-13-113-03"})
		s.Require().NoError(err)

		s.Equal(domain.ReasonRevoked, s.engine.Verify(s.ctx, bc, nil).Reason)
		_, err = s.engine.GenerateVersion(s.ctx, VersionInput{OldPID: "JP-13-113-02", NewPID: "JP-13-113-03", Owner: owner})
		var conflict *revocation.ConflictError
		s.ErrorAs(err, &conflict)
	})
}

func (s *EngineSuite) TestVersionBindsRegisteredOwner() {
	victim, err := did.FromSecret("victim")
	s.Require().NoError(err)
	stranger, err := did.FromSecret("stranger")
	s.Require().NoError(err)
	s.owners["JP-13-113-01"] = victim.DID

	_, err = s.engine.GenerateVersion(s.ctx, VersionInput{OldPID: "JP-13-113-01", NewPID: "JP-13-113-09", Owner: stranger})
	var genErr *GenerationError
	s.Require().ErrorAs(err, &genErr)
	s.ErrorIs(err, ErrNotOwner)

	s.Run("self-signed link by a stranger", func() {
		forged := &VersionProof{
			Header:    s.engine.newHeader(KindVersion),
			OldPID:    "JP-13-113-01",
			NewPID:    "JP-13-113-09",
			OwnerDID:  stranger.DID,
			Timestamp: s.now,
		}
		forged.Signature = hex.EncodeToString(ed25519.Sign(stranger.Private, versionStatement(forged)))
		s.Equal(domain.ReasonBadSignature, s.engine.Verify(s.ctx, forged, nil).Reason)
	})

	s.Run("unregistered old pid", func() {
		_, err := s.engine.GenerateVersion(s.ctx, VersionInput{OldPID: "JP-13-113-05", NewPID: "JP-13-113-09", Owner: victim})
		s.ErrorAs(err, &genErr)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	ok, err := s.engine.GenerateVersion(s.ctx, VersionInput{OldPID: "JP-13-113-01", NewPID: "JP-13-113-09", Owner: victim})
	s.Require().NoError(err)
	s.True(s.engine.Verify(s.ctx, ok, nil).Valid)
}

func (s *EngineSuite) TestUntrustedRevocationState() {
	receipt := s.register("JP-13-113-01")[0]
	p := s.membership(receipt)

	broken := NewEngine(s.authority, failingChecker{}, NewHashBackend([]byte("engine-suite-circuit-key")), WithClock(func() time.Time { return s.now }))
	s.Equal(domain.ReasonUntrusted, broken.Verify(s.ctx, p, nil).Reason)

	noChecker := NewEngine(s.authority, nil, NewHashBackend([]byte("engine-suite-circuit-key")))
	s.Equal(domain.ReasonUntrusted, noChecker.Verify(s.ctx, p, nil).Reason)
}

func (s *EngineSuite) TestEnvelopeRoundTrip() {
	p := s.membership(s.register("JP-13-113-01")[0])
	env, err := Encode(p)
	s.Require().NoError(err)
	s.Equal(KindMembership, env.ProofType)
	s.Equal(p.PublicSignals(), env.PublicSignals)

	raw, err := json.Marshal(env)
	s.Require().NoError(err)
	var decoded Envelope
	s.Require().NoError(json.Unmarshal(raw, &decoded))

	opened, err := decoded.Open()
	s.Require().NoError(err)
	s.True(s.engine.Verify(s.ctx, opened, nil).Valid)

	_, err = Decode(KindStructure, env.Proof)
	s.Error(err, "payload type must match the declared kind")
}

type ownerTable map[string]string

func (t ownerTable) OwnerOf(_ context.Context, pidValue string) (string, error) {
	subject, ok := t[pidValue]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return subject, nil
}

type failingChecker struct{}

func (failingChecker) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("list unavailable")
}

func (failingChecker) IsLeafRevoked(context.Context, merkle.Hash) (bool, error) {
	return false, errors.New("list unavailable")
}

func TestParseKind(t *testing.T) {
	for _, in := range []string{"selective-reveal", "selective_reveal", " locker "} {
		if _, err := ParseKind(in); err != nil {
			t.Errorf("ParseKind(%q): %v", in, err)
		}
	}
	if _, err := ParseKind("teleport"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
