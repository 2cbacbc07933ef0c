package domain

// Reason explains why a credential or proof did not verify. Callers branch on
// it: EXPIRED prompts re-issuance, REVOKED is a hard reject, INVALID means a
// malformed or forged request.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonInvalid      Reason = "INVALID"
	ReasonExpired      Reason = "EXPIRED"
	ReasonRevoked      Reason = "REVOKED"
	ReasonStaleRoot    Reason = "STALE_ROOT"
	ReasonBadSignature Reason = "BAD_SIGNATURE"
	// ReasonUntrusted is returned when the revocation list or root needed to
	// decide could not be authenticated or fetched.
	ReasonUntrusted Reason = "UNTRUSTED"
)

func (r Reason) String() string { return string(r) }
