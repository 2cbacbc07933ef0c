package audit

import (
	"time"

	"pidgate/pkg/domain"
)

// Outcome is the result recorded for a resolution attempt.
type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// ActionResolve is the action audited when a principal asks for the raw
// address behind a PID.
const ActionResolve = "resolve"

// Entry is one append-only audit record. Entries are never updated or
// deleted once written.
type Entry struct {
	ID        domain.AuditEntryID `json:"id"`
	PID       string              `json:"pid"`
	Requestor string              `json:"requestor"`
	Action    string              `json:"action"`
	Outcome   Outcome             `json:"outcome"`
	Timestamp time.Time           `json:"timestamp"`
	Reason    string              `json:"reason,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
	ClientIP  string              `json:"clientIp,omitempty"`
	Device    string              `json:"device,omitempty"`
}
