package credential

import (
	"context"
	"log/slog"
	"time"

	"pidgate/internal/did"
	"pidgate/pkg/domain"
)

const defaultCredentialTTL = 365 * 24 * time.Hour

// KeyResolver finds the DID document of a trusted issuer. Issuers it does not
// know must resolve to an error.
type KeyResolver interface {
	Resolve(ctx context.Context, id string) (did.Document, error)
}

// Service issues credentials under this deployment's issuer DID and verifies
// credentials from issuers registered with its KeyResolver.
type Service struct {
	issuer   *did.KeyPair
	keys     KeyResolver
	verifier *Verifier
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithServiceLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(issuer *did.KeyPair, keys KeyResolver, verifier *Verifier, opts ...Option) *Service {
	s := &Service{
		issuer:   issuer,
		keys:     keys,
		verifier: verifier,
		ttl:      defaultCredentialTTL,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssuerDID is the DID credentials are issued under.
func (s *Service) IssuerDID() string { return s.issuer.DID }

// IssueSigned issues and signs a credential for subject over pid.
func (s *Service) IssueSigned(ctx context.Context, subjectDID, pid, countryCode, admin1Code string) (*VerifiableCredential, error) {
	vc, err := Issue(subjectDID, s.issuer.DID, pid, countryCode, admin1Code, s.now().Add(s.ttl))
	if err != nil {
		return nil, err
	}
	signed, err := Sign(vc, s.issuer.Private, s.issuer.VerificationMethodID())
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "credential issued", "credential_id", signed.ID, "subject", subjectDID)
	return signed, nil
}

// Verify resolves the issuer's key from the credential's verification method
// and verifies the credential. Unregistered issuers fail with BAD_SIGNATURE.
func (s *Service) Verify(ctx context.Context, vc *VerifiableCredential) Result {
	if vc == nil || vc.Proof == nil {
		return Result{Reason: domain.ReasonInvalid}
	}
	doc, err := s.keys.Resolve(ctx, vc.Issuer)
	if err != nil {
		return Result{Reason: domain.ReasonBadSignature}
	}
	key, err := doc.Key(vc.Proof.VerificationMethod)
	if err != nil {
		return Result{Reason: domain.ReasonBadSignature}
	}
	return s.verifier.Verify(ctx, vc, key)
}
