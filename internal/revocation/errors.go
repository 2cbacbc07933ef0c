package revocation

import (
	"fmt"

	dErrors "pidgate/pkg/domain-errors"
)

// ConflictError is returned when a PID would be linked to a successor that
// is itself revoked.
type ConflictError struct {
	PID    string
	NewPID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot link %s to revoked pid %s", e.PID, e.NewPID)
}

func (e *ConflictError) DomainCode() dErrors.Code { return dErrors.CodeRevocationConflict }

// UntrustedError means the revocation state could not be authenticated or
// fetched. Callers must deny.
type UntrustedError struct {
	Err error
}

func (e *UntrustedError) Error() string {
	return "revocation state untrusted: " + e.Err.Error()
}

func (e *UntrustedError) Unwrap() error { return e.Err }

func (e *UntrustedError) DomainCode() dErrors.Code { return dErrors.CodeUntrustedState }
