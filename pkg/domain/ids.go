package domain

import (
	"github.com/google/uuid"

	dErrors "pidgate/pkg/domain-errors"
)

// Typed identifiers keep session, policy and audit ids from being mixed up.
// Construct them via the Parse functions at trust boundaries.
type (
	SessionID    uuid.UUID
	PolicyID     uuid.UUID
	AuditEntryID uuid.UUID
)

func (id SessionID) String() string    { return uuid.UUID(id).String() }
func (id PolicyID) String() string     { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string { return uuid.UUID(id).String() }

func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id PolicyID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func NewSessionID() SessionID       { return SessionID(uuid.New()) }
func NewPolicyID() PolicyID         { return PolicyID(uuid.New()) }
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }

func (id SessionID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id PolicyID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func ParseSessionID(s string) (SessionID, error) {
	id, err := parseUUID(s, "session ID")
	return SessionID(id), err
}

func ParsePolicyID(s string) (PolicyID, error) {
	id, err := parseUUID(s, "policy ID")
	return PolicyID(id), err
}

func ParseAuditEntryID(s string) (AuditEntryID, error) {
	id, err := parseUUID(s, "audit entry ID")
	return AuditEntryID(id), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
