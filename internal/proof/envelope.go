package proof

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of a proof: its kind, the kind-specific payload
// and the public signals a verifier may pin.
type Envelope struct {
	ProofType     Kind            `json:"proofType"`
	Proof         json.RawMessage `json:"proof"`
	PublicSignals Signals         `json:"publicSignals"`
}

var decoders = map[Kind]func() Proof{
	KindMembership:      func() Proof { return &MembershipProof{} },
	KindStructure:       func() Proof { return &StructureProof{} },
	KindSelectiveReveal: func() Proof { return &SelectiveRevealProof{} },
	KindVersion:         func() Proof { return &VersionProof{} },
	KindLocker:          func() Proof { return &LockerProof{} },
}

// Encode wraps p in an envelope.
func Encode(p Proof) (Envelope, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s proof: %w", p.Kind(), err)
	}
	return Envelope{ProofType: p.Kind(), Proof: raw, PublicSignals: p.PublicSignals()}, nil
}

// Decode parses a payload of the given kind. The payload's own type field
// must agree with kind.
func Decode(kind Kind, raw json.RawMessage) (Proof, error) {
	newProof, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown proof type %q", kind)
	}
	p := newProof()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s proof: %w", kind, err)
	}
	if p.header().Type != kind {
		return nil, fmt.Errorf("decode %s proof: payload declares %q", kind, p.header().Type)
	}
	return p, nil
}

// Open decodes the proof carried by an envelope.
func (env Envelope) Open() (Proof, error) {
	return Decode(env.ProofType, env.Proof)
}
