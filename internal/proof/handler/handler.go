package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pidgate/internal/commitment"
	"pidgate/internal/did"
	"pidgate/internal/proof"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
	pstrings "pidgate/pkg/platform/strings"
	"pidgate/pkg/requestcontext"
)

type Engine interface {
	GenerateMembership(ctx context.Context, in proof.MembershipInput, reg proof.RegistryProver) (*proof.MembershipProof, error)
	GenerateSetMembership(ctx context.Context, member string, set []string) (*proof.MembershipProof, error)
	GenerateLocker(ctx context.Context, lockerID, facilityID string, available []string) (*proof.LockerProof, error)
	GenerateStructure(ctx context.Context, pid string) (*proof.StructureProof, error)
	GenerateSelectiveReveal(ctx context.Context, addr domain.Address, revealFields []string) (*proof.SelectiveRevealProof, error)
	GenerateVersion(ctx context.Context, in proof.VersionInput) (*proof.VersionProof, error)
	Verify(ctx context.Context, p proof.Proof, expected proof.Signals) proof.Result
}

// Openings looks up the commitment opening kept for a registered PID.
type Openings interface {
	Opening(ctx context.Context, pid string) (commitment.Commitment, error)
}

type Handler struct {
	engine   Engine
	registry proof.RegistryProver
	openings Openings
	logger   *slog.Logger
}

func New(engine Engine, registry proof.RegistryProver, openings Openings, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, registry: registry, openings: openings, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/proofs", func(r chi.Router) {
		r.Post("/membership", h.HandleMembership)
		r.Post("/structure", h.HandleStructure)
		r.Post("/selective-reveal", h.HandleSelectiveReveal)
		r.Post("/locker", h.HandleLocker)
		r.Post("/version", h.HandleVersion)
		r.Post("/verify", h.HandleVerify)
	})
}

// Response is a generated proof in its wire envelope.
type Response struct {
	proof.Envelope
	RevealedData map[string]string `json:"revealedData,omitempty"`
}

type MembershipRequest struct {
	PID         string   `json:"pid"`
	ValidPIDSet []string `json:"validPidSet"`
}

func (r *MembershipRequest) Validate() error {
	r.PID = strings.TrimSpace(r.PID)
	if r.PID == "" {
		return dErrors.New(dErrors.CodeValidation, "pid is required")
	}
	r.ValidPIDSet = pstrings.DedupeAndTrim(r.ValidPIDSet)
	return nil
}

type StructureRequest struct {
	PID string `json:"pid"`
}

func (r *StructureRequest) Validate() error {
	r.PID = strings.TrimSpace(r.PID)
	if r.PID == "" {
		return dErrors.New(dErrors.CodeValidation, "pid is required")
	}
	return nil
}

type SelectiveRevealRequest struct {
	FullAddress  domain.Address `json:"fullAddress"`
	RevealFields []string       `json:"revealFields"`
}

func (r *SelectiveRevealRequest) Validate() error {
	r.RevealFields = pstrings.DedupeAndTrimLower(r.RevealFields)
	for _, f := range r.RevealFields {
		if _, err := domain.ParseAddressField(f); err != nil {
			return err
		}
	}
	return nil
}

type LockerRequest struct {
	LockerID         string   `json:"lockerId"`
	FacilityID       string   `json:"facilityId"`
	AvailableLockers []string `json:"availableLockers"`
}

func (r *LockerRequest) Validate() error {
	r.LockerID = strings.TrimSpace(r.LockerID)
	r.FacilityID = strings.TrimSpace(r.FacilityID)
	if r.LockerID == "" || r.FacilityID == "" {
		return dErrors.New(dErrors.CodeValidation, "lockerId and facilityId are required")
	}
	r.AvailableLockers = pstrings.DedupeAndTrim(r.AvailableLockers)
	if len(r.AvailableLockers) == 0 {
		return dErrors.New(dErrors.CodeValidation, "availableLockers is required")
	}
	return nil
}

type VersionRequest struct {
	OldPID     string `json:"oldPid"`
	NewPID     string `json:"newPid"`
	UserSecret string `json:"userSecret"`
}

func (r *VersionRequest) Validate() error {
	r.OldPID = strings.TrimSpace(r.OldPID)
	r.NewPID = strings.TrimSpace(r.NewPID)
	if r.OldPID == "" || r.NewPID == "" {
		return dErrors.New(dErrors.CodeValidation, "oldPid and newPid are required")
	}
	if r.UserSecret == "" {
		return dErrors.New(dErrors.CodeValidation, "userSecret is required")
	}
	return nil
}

type VerifyRequest struct {
	Proof         json.RawMessage `json:"proof"`
	PublicSignals proof.Signals   `json:"publicSignals"`
	ProofType     string          `json:"proofType"`
	// ValidPIDSet pins a set membership proof to the set the verifier asked about.
	ValidPIDSet []string `json:"validPidSet,omitempty"`

	kind proof.Kind
}

func (r *VerifyRequest) Validate() error {
	kind, err := proof.ParseKind(r.ProofType)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "unknown proofType")
	}
	if len(r.Proof) == 0 {
		return dErrors.New(dErrors.CodeValidation, "proof is required")
	}
	r.ValidPIDSet = pstrings.DedupeAndTrim(r.ValidPIDSet)
	r.kind = kind
	return nil
}

// HandleMembership handles POST /proofs/membership. Without validPidSet the
// proof is against the registry, using the opening kept at registration.
func (h *Handler) HandleMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[MembershipRequest](w, r, h.logger)
	if !ok {
		return
	}

	var (
		p   *proof.MembershipProof
		err error
	)
	if len(req.ValidPIDSet) > 0 {
		p, err = h.engine.GenerateSetMembership(ctx, req.PID, req.ValidPIDSet)
	} else {
		var opening commitment.Commitment
		opening, err = h.openings.Opening(ctx, req.PID)
		if err == nil {
			p, err = h.engine.GenerateMembership(ctx, proof.MembershipInput{PID: req.PID, Opening: opening}, h.registry)
		}
	}
	h.respond(w, r, p, err, nil)
}

// HandleStructure handles POST /proofs/structure.
func (h *Handler) HandleStructure(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[StructureRequest](w, r, h.logger)
	if !ok {
		return
	}
	p, err := h.engine.GenerateStructure(r.Context(), req.PID)
	h.respond(w, r, p, err, nil)
}

// HandleSelectiveReveal handles POST /proofs/selective-reveal.
func (h *Handler) HandleSelectiveReveal(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[SelectiveRevealRequest](w, r, h.logger)
	if !ok {
		return
	}
	p, err := h.engine.GenerateSelectiveReveal(r.Context(), req.FullAddress, req.RevealFields)
	var revealed map[string]string
	if err == nil {
		revealed = p.Revealed
	}
	h.respond(w, r, p, err, revealed)
}

// HandleLocker handles POST /proofs/locker.
func (h *Handler) HandleLocker(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[LockerRequest](w, r, h.logger)
	if !ok {
		return
	}
	p, err := h.engine.GenerateLocker(r.Context(), req.LockerID, req.FacilityID, req.AvailableLockers)
	h.respond(w, r, p, err, nil)
}

// HandleVersion handles POST /proofs/version. The owner key is derived from
// userSecret and never stored.
func (h *Handler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[VersionRequest](w, r, h.logger)
	if !ok {
		return
	}
	owner, err := did.FromSecret(req.UserSecret)
	if err != nil {
		httputil.WriteError(ctx, w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid userSecret"))
		return
	}
	p, err := h.engine.GenerateVersion(ctx, proof.VersionInput{OldPID: req.OldPID, NewPID: req.NewPID, Owner: owner})
	h.respond(w, r, p, err, nil)
}

// HandleVerify handles POST /proofs/verify. Rejections are results, not
// errors: the response is 200 with valid=false and the reason.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	p, err := proof.Decode(req.kind, req.Proof)
	if err != nil {
		h.logger.InfoContext(ctx, "undecodable proof payload",
			"request_id", requestcontext.RequestID(ctx),
			"proof_type", req.kind,
		)
		httputil.WriteJSON(ctx, w, http.StatusOK, proof.Result{Reason: domain.ReasonInvalid})
		return
	}
	expected := req.PublicSignals
	if len(req.ValidPIDSet) > 0 {
		expected = maps.Clone(expected)
		if expected == nil {
			expected = proof.Signals{}
		}
		expected["scope"] = proof.SetScope(req.ValidPIDSet)
	}
	httputil.WriteJSON(ctx, w, http.StatusOK, h.engine.Verify(ctx, p, expected))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, p proof.Proof, err error, revealed map[string]string) {
	ctx := r.Context()
	if err != nil {
		h.logger.WarnContext(ctx, "proof generation failed",
			"request_id", requestcontext.RequestID(ctx),
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(ctx, w, err)
		return
	}
	env, err := proof.Encode(p)
	if err != nil {
		httputil.WriteError(ctx, w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode proof"))
		return
	}
	httputil.WriteJSON(ctx, w, http.StatusOK, Response{Envelope: env, RevealedData: revealed})
}
