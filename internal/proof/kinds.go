// Package proof generates and verifies address proofs. The five proof kinds
// form a closed set: each is a concrete type implementing the sealed Proof
// interface, and verification dispatches through Visitor so a new kind does
// not compile until every visitor handles it.
package proof

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pidgate/internal/commitment"
	"pidgate/internal/merkle"
	"pidgate/internal/registry"
)

// Kind discriminates proof payloads on the wire.
type Kind string

const (
	KindMembership      Kind = "membership"
	KindStructure       Kind = "structure"
	KindSelectiveReveal Kind = "selective_reveal"
	KindVersion         Kind = "version"
	KindLocker          Kind = "locker"
)

// Kinds lists every proof kind.
var Kinds = []Kind{KindMembership, KindStructure, KindSelectiveReveal, KindVersion, KindLocker}

// ParseKind accepts the wire names, tolerating "selective-reveal".
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown proof type %q", s)
}

// Signals are the public inputs of a proof. They never include secrets.
type Signals map[string]string

// Header is common to every proof.
type Header struct {
	ID        string    `json:"id"`
	CircuitID string    `json:"circuitId"`
	Type      Kind      `json:"proofType"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h Header) header() Header { return h }

// Proof is implemented only by the proof types in this package.
type Proof interface {
	Kind() Kind
	PublicSignals() Signals
	header() Header
	accept(v Visitor) Result
}

// Visitor has one method per proof kind.
type Visitor interface {
	VisitMembership(p *MembershipProof) Result
	VisitStructure(p *StructureProof) Result
	VisitSelectiveReveal(p *SelectiveRevealProof) Result
	VisitVersion(p *VersionProof) Result
	VisitLocker(p *LockerProof) Result
}

// Inclusion is the payload shared by membership and locker proofs: a
// commitment to the secret member and its Merkle path to a signed root.
type Inclusion struct {
	Root       registry.SignedRoot   `json:"root"`
	Commitment commitment.Commitment `json:"commitment"`
	Path       merkle.Proof          `json:"path"`
}

func (in Inclusion) signals() Signals {
	return Signals{
		"root":       in.Root.Root.String(),
		"scope":      in.Root.Scope,
		"version":    strconv.FormatUint(in.Root.Version, 10),
		"commitment": in.Commitment.ValueHash,
	}
}

// MembershipProof shows a committed PID is a leaf of a registry or ad hoc
// set without revealing it.
type MembershipProof struct {
	Header
	Inclusion
}

func (p *MembershipProof) Kind() Kind              { return KindMembership }
func (p *MembershipProof) PublicSignals() Signals  { return p.Inclusion.signals() }
func (p *MembershipProof) accept(v Visitor) Result { return v.VisitMembership(p) }

// LockerProof is a membership proof over a facility's locker ids.
type LockerProof struct {
	Header
	Inclusion
	FacilityID string `json:"facilityId"`
}

func (p *LockerProof) Kind() Kind { return KindLocker }

func (p *LockerProof) PublicSignals() Signals {
	s := p.Inclusion.signals()
	s["facilityId"] = p.FacilityID
	return s
}

func (p *LockerProof) accept(v Visitor) Result { return v.VisitLocker(p) }

// StructureProof reveals only the country and hierarchy depth. Each segment
// is committed, and the verifier sees one format-validity bit per level.
type StructureProof struct {
	Header
	CountryCode    string                  `json:"countryCode"`
	HierarchyDepth int                     `json:"hierarchyDepth"`
	Segments       []commitment.Commitment `json:"segments"`
	LevelValidity  []bool                  `json:"levelValidity"`
	Attestation    string                  `json:"attestation"`
}

func (p *StructureProof) Kind() Kind { return KindStructure }

func (p *StructureProof) PublicSignals() Signals {
	return Signals{
		"countryCode":    p.CountryCode,
		"hierarchyDepth": strconv.Itoa(p.HierarchyDepth),
	}
}

func (p *StructureProof) accept(v Visitor) Result { return v.VisitStructure(p) }

// SelectiveRevealProof discloses some address fields verbatim and commits
// to all others.
type SelectiveRevealProof struct {
	Header
	Revealed    map[string]string                `json:"revealed"`
	Hidden      map[string]commitment.Commitment `json:"hidden"`
	Attestation string                           `json:"attestation"`
}

func (p *SelectiveRevealProof) Kind() Kind { return KindSelectiveReveal }

func (p *SelectiveRevealProof) PublicSignals() Signals {
	s := make(Signals, len(p.Revealed))
	for k, v := range p.Revealed {
		s[k] = v
	}
	return s
}

func (p *SelectiveRevealProof) accept(v Visitor) Result { return v.VisitSelectiveReveal(p) }

// VersionProof is the owner's signed statement that NewPID continues OldPID.
// It links exactly these two endpoints and nothing else.
type VersionProof struct {
	Header
	OldPID    string    `json:"oldPid"`
	NewPID    string    `json:"newPid"`
	OwnerDID  string    `json:"ownerDid"`
	Timestamp time.Time `json:"timestamp"`
	Signature string    `json:"signature"`
}

func (p *VersionProof) Kind() Kind { return KindVersion }

func (p *VersionProof) PublicSignals() Signals {
	return Signals{
		"oldPid":    p.OldPID,
		"newPid":    p.NewPID,
		"ownerDid":  p.OwnerDID,
		"timestamp": p.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func (p *VersionProof) accept(v Visitor) Result { return v.VisitVersion(p) }

var (
	_ Proof = (*MembershipProof)(nil)
	_ Proof = (*LockerProof)(nil)
	_ Proof = (*StructureProof)(nil)
	_ Proof = (*SelectiveRevealProof)(nil)
	_ Proof = (*VersionProof)(nil)
)
