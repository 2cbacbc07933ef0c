package credential

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"time"

	"pidgate/pkg/domain"
)

// RevocationChecker reports whether a PID is revoked. An error means the
// answer could not be trusted.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, pid string) (bool, error)
}

// Result is the outcome of verifying a credential.
type Result struct {
	Valid  bool          `json:"valid"`
	Reason domain.Reason `json:"reason,omitempty"`
}

// Verifier checks signature, then expiry, then revocation. Verification is
// re-evaluated on every call because revocation state changes.
type Verifier struct {
	revocations RevocationChecker
	now         func() time.Time
	logger      *slog.Logger
}

type VerifierOption func(*Verifier)

func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

func WithLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger
	}
}

func NewVerifier(revocations RevocationChecker, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		revocations: revocations,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks vc against the issuer's public key.
func (v *Verifier) Verify(ctx context.Context, vc *VerifiableCredential, issuerKey ed25519.PublicKey) Result {
	if vc == nil || vc.Claim.AddressPID == "" {
		return Result{Reason: domain.ReasonInvalid}
	}
	if err := checkSignature(vc, issuerKey); err != nil {
		v.logger.DebugContext(ctx, "credential signature rejected", "credential_id", vc.ID, "error", err)
		return Result{Reason: domain.ReasonBadSignature}
	}
	if !v.now().Before(vc.ExpirationDate) {
		return Result{Reason: domain.ReasonExpired}
	}
	if v.revocations == nil {
		return Result{Reason: domain.ReasonUntrusted}
	}
	revoked, err := v.revocations.IsRevoked(ctx, vc.Claim.AddressPID)
	if err != nil {
		v.logger.WarnContext(ctx, "revocation state unavailable, failing closed", "credential_id", vc.ID, "error", err)
		return Result{Reason: domain.ReasonUntrusted}
	}
	if revoked {
		return Result{Reason: domain.ReasonRevoked}
	}
	return Result{Valid: true}
}
