package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pidgate/internal/access/metrics"
	"pidgate/internal/audit"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/middleware/metadata"
	"pidgate/pkg/platform/sentinel"
	"pidgate/pkg/requestcontext"
)

// DeniedError means no live policy allowed the request, or the PID is not
// currently resolvable.
type DeniedError struct {
	Principal string
	Action    string
	Reason    string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied for %s to %s: %s", e.Principal, e.Action, e.Reason)
}

func (e *DeniedError) DomainCode() dErrors.Code { return dErrors.CodeAccessDenied }

// Auditor appends audit entries.
type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) (audit.Entry, error)
}

// RevocationChecker reports whether a PID is revoked. Errors mean the answer
// could not be trusted.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, pid string) (bool, error)
}

// Resolver turns a PID into its raw address for an authorized principal.
// Every call, successful or not, writes exactly one audit entry, and a call
// whose audit entry cannot be written returns no address.
type Resolver struct {
	policies    PolicyStore
	vault       *Vault
	auditor     Auditor
	revocations RevocationChecker
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
}

type Option func(*Resolver)

// WithRevocationChecker makes revoked PIDs unresolvable.
func WithRevocationChecker(c RevocationChecker) Option {
	return func(r *Resolver) {
		r.revocations = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

func NewResolver(policies PolicyStore, vault *Vault, auditor Auditor, opts ...Option) *Resolver {
	r := &Resolver{
		policies: policies,
		vault:    vault,
		auditor:  auditor,
		logger:   slog.Default(),
		tracer:   otel.Tracer("pidgate/internal/access"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddPolicy validates and stores a policy, assigning its id.
func (r *Resolver) AddPolicy(ctx context.Context, p Policy) (Policy, error) {
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	if p.ID.IsNil() {
		p.ID = domain.NewPolicyID()
	}
	p.CreatedAt = r.now().UTC()
	if err := r.policies.Add(ctx, p); err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store policy")
	}
	if r.metrics != nil {
		if all, err := r.policies.List(ctx); err == nil {
			r.metrics.SetPolicies(len(all))
		}
	}
	return p, nil
}

func (r *Resolver) ListPolicies(ctx context.Context) ([]Policy, error) {
	return r.policies.List(ctx)
}

// Authorize returns the first live policy that allows the request.
func (r *Resolver) Authorize(ctx context.Context, principal, pid, action string) (Policy, bool, error) {
	policies, err := r.policies.List(ctx)
	if err != nil {
		return Policy{}, false, err
	}
	now := r.now()
	for _, p := range policies {
		if Authorize(p, principal, pid, action, now) {
			return p, true, nil
		}
	}
	return Policy{}, false, nil
}

// Resolve returns the raw address behind pid if principal is authorized.
func (r *Resolver) Resolve(ctx context.Context, principal, pid string) (domain.Address, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "access.Resolve")
	defer span.End()

	addr, outcome, reason, resolveErr := r.resolve(ctx, principal, pid)

	entry := audit.Entry{
		PID:       pid,
		Requestor: principal,
		Action:    audit.ActionResolve,
		Outcome:   outcome,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  metadata.GetClientIP(ctx),
		Device:    metadata.GetDevice(ctx),
	}
	if _, auditErr := r.auditor.Emit(ctx, entry); auditErr != nil {
		r.logger.ErrorContext(ctx, "audit append failed, withholding resolution",
			"request_id", entry.RequestID,
			"outcome", outcome,
			"error", auditErr,
		)
		outcome, resolveErr = audit.OutcomeError, dErrors.Wrap(auditErr, dErrors.CodeInternal, "audit log unavailable")
		addr = domain.Address{}
	}

	span.SetAttributes(attribute.String("access.outcome", string(outcome)))
	if resolveErr != nil {
		span.SetStatus(codes.Error, string(outcome))
	}
	if r.metrics != nil {
		r.metrics.ObserveResolution(string(outcome), start)
	}
	return addr, resolveErr
}

func (r *Resolver) resolve(ctx context.Context, principal, pid string) (domain.Address, audit.Outcome, string, error) {
	deny := func(reason string) (domain.Address, audit.Outcome, string, error) {
		return domain.Address{}, audit.OutcomeDenied, reason, &DeniedError{Principal: principal, Action: ActionResolve, Reason: reason}
	}

	if principal == "" || pid == "" {
		return deny("principal and pid are required")
	}
	_, ok, err := r.Authorize(ctx, principal, pid, ActionResolve)
	if err != nil {
		return domain.Address{}, audit.OutcomeError, "policy store unavailable", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policies")
	}
	if !ok {
		return deny("no live policy matches")
	}

	if r.revocations != nil {
		revoked, err := r.revocations.IsRevoked(ctx, pid)
		if err != nil {
			return deny("revocation state untrusted")
		}
		if revoked {
			return deny("pid revoked")
		}
	}

	addr, err := r.vault.Load(ctx, pid)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.Address{}, audit.OutcomeError, "address not found", dErrors.New(dErrors.CodeNotFound, "no address stored for pid")
	}
	if err != nil {
		return domain.Address{}, audit.OutcomeError, "vault unavailable", dErrors.Wrap(err, dErrors.CodeInternal, "failed to open address")
	}
	return addr, audit.OutcomeGranted, "", nil
}
