package proof

import (
	"fmt"

	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
)

// GenerationError means the prover's secret inputs were missing or did not
// support the requested statement.
type GenerationError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generate %s proof: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("generate %s proof: %s", e.Kind, e.Msg)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) DomainCode() dErrors.Code { return dErrors.CodeProofGeneration }

func generationError(kind Kind, msg string, err error) error {
	return &GenerationError{Kind: kind, Msg: msg, Err: err}
}

// VerificationError carries the reason a proof was rejected.
type VerificationError struct {
	Kind   Kind
	Reason domain.Reason
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s proof rejected: %s", e.Kind, e.Reason)
}

func (e *VerificationError) DomainCode() dErrors.Code { return dErrors.CodeProofVerification }
