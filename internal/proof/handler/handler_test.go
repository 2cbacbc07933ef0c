package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pidgate/internal/commitment"
	"pidgate/internal/did"
	"pidgate/internal/proof"
	"pidgate/internal/proof/handler/mocks"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Engine,Openings
type ProofHandlerSuite struct {
	suite.Suite
	engine   *mocks.MockEngine
	openings *mocks.MockOpenings
	router   chi.Router
}

func TestProofHandlerSuite(t *testing.T) {
	suite.Run(t, new(ProofHandlerSuite))
}

func (s *ProofHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.engine = mocks.NewMockEngine(ctrl)
	s.openings = mocks.NewMockOpenings(ctrl)
	s.router = chi.NewRouter()
	New(s.engine, nil, s.openings, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *ProofHandlerSuite) do(target string, body any) (*httptest.ResponseRecorder, httputil.Envelope) {
	var buf bytes.Buffer
	s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, &buf))

	var env httputil.Envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (s *ProofHandlerSuite) decode(env httputil.Envelope, out any) {
	raw, err := json.Marshal(env.Data)
	s.Require().NoError(err)
	s.Require().NoError(json.Unmarshal(raw, out))
}

func membershipProof() *proof.MembershipProof {
	return &proof.MembershipProof{
		Header: proof.Header{ID: "p-1", CircuitID: proof.CircuitID(proof.KindMembership), Type: proof.KindMembership},
	}
}

func (s *ProofHandlerSuite) TestMembershipAgainstSet() {
	set := []string{"JP-13-113-01", "JP-13-113-02"}
	s.engine.EXPECT().GenerateSetMembership(gomock.Any(), "JP-13-113-01", set).Return(membershipProof(), nil)

	w, env := s.do("/proofs/membership", MembershipRequest{PID: "JP-13-113-01", ValidPIDSet: set})
	s.Require().Equal(http.StatusOK, w.Code)

	var resp Response
	s.decode(env, &resp)
	s.Equal(proof.KindMembership, resp.ProofType)
	p, err := resp.Envelope.Open()
	s.Require().NoError(err)
	s.Equal("p-1", p.(*proof.MembershipProof).ID)
}

func (s *ProofHandlerSuite) TestMembershipAgainstRegistry() {
	opening := commitment.Commitment{ValueHash: "ab", Nonce: "cd"}
	s.openings.EXPECT().Opening(gomock.Any(), "JP-13-113-01").Return(opening, nil)
	s.engine.EXPECT().GenerateMembership(gomock.Any(), proof.MembershipInput{PID: "JP-13-113-01", Opening: opening}, nil).
		Return(membershipProof(), nil)

	w, _ := s.do("/proofs/membership", MembershipRequest{PID: "JP-13-113-01"})
	s.Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), `"cd"`)
}

func (s *ProofHandlerSuite) TestMembershipUnregistered() {
	s.openings.EXPECT().Opening(gomock.Any(), "JP-13-113-09").
		Return(commitment.Commitment{}, dErrors.New(dErrors.CodeNotFound, "address not registered"))

	w, env := s.do("/proofs/membership", MembershipRequest{PID: "JP-13-113-09"})
	s.Equal(http.StatusNotFound, w.Code)
	s.False(env.Success)
}

func (s *ProofHandlerSuite) TestSelectiveRevealReturnsRevealedData() {
	addr := domain.Address{Country: "JP", PostalCode: "113-0033", City: "Bunkyo"}
	fields := []string{"city", "postal_code"}
	s.engine.EXPECT().GenerateSelectiveReveal(gomock.Any(), addr, fields).Return(&proof.SelectiveRevealProof{
		Header:   proof.Header{Type: proof.KindSelectiveReveal},
		Revealed: map[string]string{"city": "Bunkyo", "postal_code": "113-0033"},
	}, nil)

	w, env := s.do("/proofs/selective-reveal", SelectiveRevealRequest{FullAddress: addr, RevealFields: fields})
	s.Require().Equal(http.StatusOK, w.Code)
	var resp Response
	s.decode(env, &resp)
	s.Equal(map[string]string{"city": "Bunkyo", "postal_code": "113-0033"}, resp.RevealedData)
}

func (s *ProofHandlerSuite) TestSelectiveRevealRejectsUnknownField() {
	w, _ := s.do("/proofs/selective-reveal", SelectiveRevealRequest{
		FullAddress:  domain.Address{Country: "JP", City: "Bunkyo"},
		RevealFields: []string{"phone"},
	})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ProofHandlerSuite) TestLocker() {
	s.engine.EXPECT().GenerateLocker(gomock.Any(), "L-7", "F-1", []string{"L-1", "L-7"}).
		Return(&proof.LockerProof{Header: proof.Header{Type: proof.KindLocker}, FacilityID: "F-1"}, nil)

	w, _ := s.do("/proofs/locker", LockerRequest{LockerID: "L-7", FacilityID: "F-1", AvailableLockers: []string{"L-1", "L-7"}})
	s.Equal(http.StatusOK, w.Code)

	w, _ = s.do("/proofs/locker", LockerRequest{LockerID: "L-7", FacilityID: "F-1"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ProofHandlerSuite) TestStructureMalformed() {
	s.engine.EXPECT().GenerateStructure(gomock.Any(), "JP-13").
		Return(nil, dErrors.New(dErrors.CodeMalformedPID, "malformed PID"))

	w, env := s.do("/proofs/structure", StructureRequest{PID: "JP-13"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(string(dErrors.CodeMalformedPID), env.Error.Code)
}

func (s *ProofHandlerSuite) TestVersionDerivesOwnerFromSecret() {
	owner, err := did.FromSecret("correct horse")
	s.Require().NoError(err)

	s.engine.EXPECT().GenerateVersion(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, in proof.VersionInput) (*proof.VersionProof, error) {
			s.Equal(owner.DID, in.Owner.DID)
			return &proof.VersionProof{Header: proof.Header{Type: proof.KindVersion}, OwnerDID: owner.DID}, nil
		})

	w, _ := s.do("/proofs/version", VersionRequest{OldPID: "JP-13-113-01", NewPID: "JP-13-113-02", UserSecret: "correct horse"})
	s.Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "correct horse")
}

func (s *ProofHandlerSuite) TestVerify() {
	env, err := proof.Encode(membershipProof())
	s.Require().NoError(err)

	s.Run("passes the decoded proof and pinned signals to the engine", func() {
		pinned := proof.Signals{"root": "abc"}
		s.engine.EXPECT().Verify(gomock.Any(), gomock.Any(), pinned).Return(proof.Result{Reason: domain.ReasonStaleRoot})

		w, resp := s.do("/proofs/verify", VerifyRequest{Proof: env.Proof, PublicSignals: pinned, ProofType: "membership"})
		s.Require().Equal(http.StatusOK, w.Code)
		var result proof.Result
		s.decode(resp, &result)
		s.Equal(proof.Result{Reason: domain.ReasonStaleRoot}, result)
	})

	s.Run("valid pid set pins the set scope", func() {
		set := []string{"JP-13-113-02", " JP-13-113-01"}
		want := proof.Signals{"root": "abc", "scope": proof.SetScope([]string{"JP-13-113-01", "JP-13-113-02"})}
		s.engine.EXPECT().Verify(gomock.Any(), gomock.Any(), want).Return(proof.Result{Valid: true})

		w, _ := s.do("/proofs/verify", VerifyRequest{
			Proof:         env.Proof,
			PublicSignals: proof.Signals{"root": "abc"},
			ProofType:     "membership",
			ValidPIDSet:   set,
		})
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("payload of another kind is invalid", func() {
		w, resp := s.do("/proofs/verify", VerifyRequest{Proof: env.Proof, ProofType: "locker"})
		s.Require().Equal(http.StatusOK, w.Code)
		var result proof.Result
		s.decode(resp, &result)
		s.Equal(proof.Result{Reason: domain.ReasonInvalid}, result)
	})

	s.Run("unknown proof type is a bad request", func() {
		w, _ := s.do("/proofs/verify", VerifyRequest{Proof: env.Proof, ProofType: "telepathy"})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *ProofHandlerSuite) TestMembershipSetIsCleaned() {
	s.engine.EXPECT().
		GenerateSetMembership(gomock.Any(), "JP-13-113-01", []string{"JP-13-113-01", "JP-13-113-02"}).
		Return(membershipProof(), nil)

	w, _ := s.do("/proofs/membership", MembershipRequest{
		PID:         "JP-13-113-01",
		ValidPIDSet: []string{" JP-13-113-01", "JP-13-113-02", "", "JP-13-113-01 "},
	})
	s.Equal(http.StatusOK, w.Code)
}
