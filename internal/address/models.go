package address

import (
	"time"

	"pidgate/internal/commitment"
	"pidgate/internal/credential"
	"pidgate/internal/registry"
	"pidgate/internal/revocation"
)

// Registration is the outcome of registering a PID.
type Registration struct {
	Credential *credential.VerifiableCredential `json:"credential"`
	Index      int                              `json:"index"`
	Root       registry.SignedRoot              `json:"root"`
}

// Record is what the provider keeps per registered PID. Opening is the
// commitment opening needed to prove registry membership later; it is never
// returned over the wire.
type Record struct {
	PID          string
	SubjectDID   string
	CredentialID string
	Index        int
	Opening      commitment.Commitment
	RegisteredAt time.Time
	Revoked      *revocation.Entry
}
