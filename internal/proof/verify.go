package proof

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"maps"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pidgate/internal/did"
	"pidgate/internal/merkle"
	"pidgate/internal/pid"
	"pidgate/internal/registry"
	"pidgate/pkg/domain"
	"pidgate/pkg/platform/sentinel"
)

// Result is the outcome of verifying one proof.
type Result struct {
	Valid        bool              `json:"valid"`
	Reason       domain.Reason     `json:"reason,omitempty"`
	RevealedData map[string]string `json:"revealedData,omitempty"`
}

func valid() Result { return Result{Valid: true} }

func rejected(reason domain.Reason) Result { return Result{Reason: reason} }

// Err returns nil for a valid result and a *VerificationError otherwise.
func (r Result) Err(kind Kind) error {
	if r.Valid {
		return nil
	}
	return &VerificationError{Kind: kind, Reason: r.Reason}
}

// Verify checks p against the verifier's expectations. Every key in expected
// must equal the proof's public signal of the same name. Verification is a
// pure function of the proof, the expectations and the current trusted state.
func (e *Engine) Verify(ctx context.Context, p Proof, expected Signals) Result {
	if p == nil {
		return rejected(domain.ReasonInvalid)
	}
	kind := p.Kind()
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "proof.Verify",
		trace.WithAttributes(attribute.String("proof.kind", string(kind))))
	defer span.End()

	res := e.verify(ctx, p, expected)

	span.SetAttributes(attribute.Bool("proof.valid", res.Valid))
	if !res.Valid {
		span.SetAttributes(attribute.String("proof.reason", string(res.Reason)))
	}
	if e.metrics != nil {
		e.metrics.ObserveVerify(string(kind), string(res.Reason), start)
	}
	return res
}

func (e *Engine) verify(ctx context.Context, p Proof, expected Signals) Result {
	h := p.header()
	if h.Type != p.Kind() || h.CircuitID != CircuitID(p.Kind()) {
		return rejected(domain.ReasonInvalid)
	}
	signals := p.PublicSignals()
	for k, want := range expected {
		if got, ok := signals[k]; !ok || got != want {
			return rejected(domain.ReasonInvalid)
		}
	}
	return p.accept(&verifier{ctx: ctx, engine: e, expected: expected})
}

type verifier struct {
	ctx      context.Context
	engine   *Engine
	expected Signals
}

// VisitMembership only accepts an ad hoc set root when the caller pinned its
// scope, since anyone can have a set of their choosing signed.
func (v *verifier) VisitMembership(p *MembershipProof) Result {
	if strings.HasPrefix(p.Root.Scope, registry.ScopeSetPrefix) && v.expected["scope"] == "" {
		return rejected(domain.ReasonInvalid)
	}
	return v.inclusion(p.Inclusion)
}

func (v *verifier) VisitLocker(p *LockerProof) Result {
	if p.FacilityID == "" || p.Root.Scope != registry.LockerScope(p.FacilityID) {
		return rejected(domain.ReasonInvalid)
	}
	return v.inclusion(p.Inclusion)
}

// inclusion checks, in order: the path, the commitment's binding to the
// leaf, the root signature, revocation of registry leaves, then whether the
// root is still accepted.
func (v *verifier) inclusion(in Inclusion) Result {
	if in.Commitment.Nonce != "" {
		return rejected(domain.ReasonInvalid)
	}
	if !merkle.VerifyInclusion(in.Path) {
		return rejected(domain.ReasonInvalid)
	}
	leaf, err := in.Commitment.Digest()
	if err != nil || merkle.Hash(leaf) != in.Path.Leaf || in.Path.Root != in.Root.Root {
		return rejected(domain.ReasonInvalid)
	}

	rootErr := v.engine.roots.CheckRoot(in.Root)
	if errors.Is(rootErr, registry.ErrBadRootSignature) {
		return rejected(domain.ReasonBadSignature)
	}

	if !in.Root.Ephemeral() {
		if v.engine.revocations == nil {
			return rejected(domain.ReasonUntrusted)
		}
		revoked, err := v.engine.revocations.IsLeafRevoked(v.ctx, in.Path.Leaf)
		if err != nil {
			return rejected(domain.ReasonUntrusted)
		}
		if revoked {
			return rejected(domain.ReasonRevoked)
		}
	}

	if rootErr != nil {
		return rejected(domain.ReasonStaleRoot)
	}
	return valid()
}

func (v *verifier) VisitStructure(p *StructureProof) Result {
	schema, ok := v.engine.codec.Schema(p.CountryCode)
	if !ok || p.HierarchyDepth != schema.Depth() {
		return rejected(domain.ReasonInvalid)
	}
	if len(p.Segments) != p.HierarchyDepth || len(p.LevelValidity) != p.HierarchyDepth {
		return rejected(domain.ReasonInvalid)
	}
	for i, c := range p.Segments {
		if c.Nonce != "" || !p.LevelValidity[i] {
			return rejected(domain.ReasonInvalid)
		}
		if _, err := c.Digest(); err != nil {
			return rejected(domain.ReasonInvalid)
		}
	}
	if !v.engine.backend.Check(structureStatement(p), p.Attestation) {
		return rejected(domain.ReasonBadSignature)
	}
	return valid()
}

func (v *verifier) VisitSelectiveReveal(p *SelectiveRevealProof) Result {
	if len(p.Revealed)+len(p.Hidden) != len(domain.AddressFields) {
		return rejected(domain.ReasonInvalid)
	}
	for _, f := range domain.AddressFields {
		_, revealed := p.Revealed[string(f)]
		c, hidden := p.Hidden[string(f)]
		if revealed == hidden {
			return rejected(domain.ReasonInvalid)
		}
		if hidden {
			if _, err := c.Digest(); err != nil || c.Nonce != "" {
				return rejected(domain.ReasonInvalid)
			}
		}
	}
	if !v.engine.backend.Check(selectiveStatement(p), p.Attestation) {
		return rejected(domain.ReasonBadSignature)
	}
	return Result{Valid: true, RevealedData: maps.Clone(p.Revealed)}
}

// VisitVersion accepts only the exact OldPID -> NewPID link the owner
// signed. Chains are never composed, so A->B and B->C do not yield A->C.
func (v *verifier) VisitVersion(p *VersionProof) Result {
	oldSegs, err := v.engine.codec.Decode(p.OldPID)
	if err != nil {
		return rejected(domain.ReasonInvalid)
	}
	newSegs, err := v.engine.codec.Decode(p.NewPID)
	if err != nil || pid.Equal(oldSegs, newSegs) {
		return rejected(domain.ReasonInvalid)
	}
	pub, err := did.PublicKey(p.OwnerDID)
	if err != nil {
		return rejected(domain.ReasonInvalid)
	}
	sig, err := hex.DecodeString(p.Signature)
	if err != nil || !ed25519.Verify(pub, versionStatement(p), sig) {
		return rejected(domain.ReasonBadSignature)
	}
	if res := v.owner(p); !res.Valid {
		return res
	}

	if v.engine.revocations == nil {
		return rejected(domain.ReasonUntrusted)
	}
	revoked, err := v.engine.revocations.IsRevoked(v.ctx, p.NewPID)
	if err != nil {
		return rejected(domain.ReasonUntrusted)
	}
	if revoked {
		return rejected(domain.ReasonRevoked)
	}
	return valid()
}

// owner binds the signing DID to the subject OldPID was registered for.
func (v *verifier) owner(p *VersionProof) Result {
	if v.engine.owners == nil {
		return rejected(domain.ReasonUntrusted)
	}
	subject, err := v.engine.owners.OwnerOf(v.ctx, p.OldPID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return rejected(domain.ReasonInvalid)
	case err != nil:
		return rejected(domain.ReasonUntrusted)
	case subject != p.OwnerDID:
		return rejected(domain.ReasonBadSignature)
	}
	return valid()
}

var _ Visitor = (*verifier)(nil)
