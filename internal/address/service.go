package address

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pidgate/internal/commitment"
	"pidgate/internal/credential"
	"pidgate/internal/pid"
	"pidgate/internal/registry"
	"pidgate/internal/revocation"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/sentinel"
)

type Registrar interface {
	Append(ctx context.Context, pids ...string) ([]registry.Receipt, error)
}

type Issuer interface {
	IssuerDID() string
	IssueSigned(ctx context.Context, subjectDID, pid, countryCode, admin1Code string) (*credential.VerifiableCredential, error)
}

// Vault keeps raw addresses sealed under their PID.
type Vault interface {
	Store(ctx context.Context, pid string, addr domain.Address) error
	Forget(ctx context.Context, pid string) error
}

type Revoker interface {
	Revoke(ctx context.Context, req revocation.Request) (revocation.Entry, error)
}

// RegisterInput is one address provider registration.
type RegisterInput struct {
	SubjectDID     string
	PID            string
	CountryCode    string
	HierarchyDepth int
	Address        domain.Address
}

// Service registers PIDs with the registry, seals their raw addresses and
// issues the subject's credential.
type Service struct {
	codec     *pid.Codec
	registrar Registrar
	issuer    Issuer
	vault     Vault
	revoker   Revoker
	store     Store
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithCodec(c *pid.Codec) Option {
	return func(s *Service) {
		s.codec = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(registrar Registrar, issuer Issuer, vault Vault, revoker Revoker, store Store, opts ...Option) *Service {
	s := &Service{
		codec:     pid.Default(),
		registrar: registrar,
		issuer:    issuer,
		vault:     vault,
		revoker:   revoker,
		store:     store,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates the PID against its country schema, appends it to the
// registry and issues a credential binding it to the subject.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	segments, err := s.codec.Decode(in.PID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(segments[0].Value, in.CountryCode) {
		return nil, dErrors.New(dErrors.CodeValidation, "countryCode does not match pid")
	}
	if in.HierarchyDepth != 0 && in.HierarchyDepth != len(segments) {
		return nil, dErrors.New(dErrors.CodeValidation, "hierarchyDepth does not match pid")
	}
	if err := in.Address.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.Get(ctx, in.PID); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "pid already registered")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}

	// The vault keeps the first address sealed under a PID, so of two racing
	// registrations only the one whose seal landed reaches the registry.
	if err := s.vault.Store(ctx, in.PID, in.Address); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "pid already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal address")
	}
	receipts, err := s.registrar.Append(ctx, in.PID)
	if err != nil {
		if ferr := s.vault.Forget(ctx, in.PID); ferr != nil {
			s.logger.WarnContext(ctx, "failed to discard sealed address", "error", ferr)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "pid already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append to registry")
	}
	receipt := receipts[0]

	rec := Record{
		PID:          in.PID,
		SubjectDID:   in.SubjectDID,
		Index:        receipt.Index,
		Opening:      receipt.Commitment,
		RegisteredAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store registration")
	}

	var admin1 string
	if len(segments) > 1 {
		admin1 = segments[1].Value
	}
	vc, err := s.issuer.IssueSigned(ctx, in.SubjectDID, in.PID, segments[0].Value, admin1)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue credential")
	}
	rec.CredentialID = vc.ID
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store registration")
	}

	s.logger.InfoContext(ctx, "address registered",
		"leaf", receipt.Leaf.String()[:12],
		"index", receipt.Index,
		"root_version", receipt.Root.Version,
	)
	return &Registration{Credential: vc, Index: receipt.Index, Root: receipt.Root}, nil
}

// Revoke marks a registered PID as revoked, optionally naming its successor.
// Revoking an already revoked PID returns the existing entry.
func (s *Service) Revoke(ctx context.Context, pidValue, reason, newPID string) (revocation.Entry, error) {
	rec, err := s.store.Get(ctx, pidValue)
	if errors.Is(err, sentinel.ErrNotFound) {
		return revocation.Entry{}, dErrors.New(dErrors.CodeNotFound, "address not registered")
	}
	if err != nil {
		return revocation.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	if newPID != "" {
		if _, err := s.codec.Decode(newPID); err != nil {
			return revocation.Entry{}, err
		}
	}

	entry, err := s.revoker.Revoke(ctx, revocation.Request{
		PID:       pidValue,
		Reason:    reason,
		NewPID:    newPID,
		RevokedBy: s.issuer.IssuerDID(),
	})
	if err != nil {
		var coder dErrors.Coder
		if errors.As(err, &coder) {
			return revocation.Entry{}, err
		}
		return revocation.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke")
	}

	rec.Revoked = &entry
	if err := s.store.Update(ctx, rec); err != nil {
		return revocation.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store revocation")
	}
	s.logger.InfoContext(ctx, "address revoked", "index", rec.Index, "successor", newPID != "")
	return entry, nil
}

// Opening returns the commitment opening kept for a registered PID.
func (s *Service) Opening(ctx context.Context, pidValue string) (commitment.Commitment, error) {
	rec, err := s.store.Get(ctx, pidValue)
	if errors.Is(err, sentinel.ErrNotFound) {
		return commitment.Commitment{}, dErrors.New(dErrors.CodeNotFound, "address not registered")
	}
	if err != nil {
		return commitment.Commitment{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return rec.Opening, nil
}

// OwnerOf returns the subject DID a PID was registered for. Revoked PIDs keep
// their owner so a successor link can still be proven.
func (s *Service) OwnerOf(ctx context.Context, pidValue string) (string, error) {
	rec, err := s.store.Get(ctx, pidValue)
	if err != nil {
		return "", err
	}
	return rec.SubjectDID, nil
}
