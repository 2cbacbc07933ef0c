// Package access gates PID to raw-address resolution behind glob policies and
// records every attempt in the audit log.
package access

import (
	"context"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
)

// ActionResolve is the only action gated today.
const ActionResolve = "resolve"

// Policy grants Principal the Action on every PID matching Resource. Both
// Principal and Resource are path.Match globs, e.g. "JP-13-*".
type Policy struct {
	ID        domain.PolicyID `json:"id"`
	Principal string          `json:"principal"`
	Resource  string          `json:"resource"`
	Action    string          `json:"action"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Validate checks the globs compile.
func (p Policy) Validate() error {
	for name, pattern := range map[string]string{"principal": p.Principal, "resource": p.Resource, "action": p.Action} {
		if strings.TrimSpace(pattern) == "" {
			return dErrors.New(dErrors.CodeValidation, name+" is required")
		}
		if _, err := path.Match(pattern, ""); err != nil {
			return dErrors.New(dErrors.CodeValidation, name+" is not a valid pattern")
		}
	}
	return nil
}

// Expired reports whether the policy no longer applies at now.
func (p Policy) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Authorize reports whether policy lets principal perform action on resource
// at now. Malformed patterns never match.
func Authorize(policy Policy, principal, resource, action string, now time.Time) bool {
	if policy.Expired(now) {
		return false
	}
	return match(policy.Principal, principal) && match(policy.Resource, resource) && match(policy.Action, action)
}

func match(pattern, value string) bool {
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}

// PolicyStore holds access policies.
type PolicyStore interface {
	Add(ctx context.Context, p Policy) error
	List(ctx context.Context) ([]Policy, error)
}

type InMemoryPolicyStore struct {
	mu       sync.RWMutex
	policies []Policy
}

func NewInMemoryPolicyStore() *InMemoryPolicyStore {
	return &InMemoryPolicyStore{}
}

func (s *InMemoryPolicyStore) Add(_ context.Context, p Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = append(s.policies, p)
	return nil
}

func (s *InMemoryPolicyStore) List(context.Context) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.policies), nil
}
