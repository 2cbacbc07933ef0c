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

	"pidgate/internal/address"
	"pidgate/internal/address/handler/mocks"
	"pidgate/internal/credential"
	"pidgate/internal/did"
	"pidgate/internal/pid"
	"pidgate/internal/revocation"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type AddressHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	user    string
}

func TestAddressHandlerSuite(t *testing.T) {
	suite.Run(t, new(AddressHandlerSuite))
}

func (s *AddressHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)

	kp, err := did.Generate()
	s.Require().NoError(err)
	s.user = kp.DID
}

func (s *AddressHandlerSuite) do(method, target string, body any) (*httptest.ResponseRecorder, httputil.Envelope) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, target, &buf))

	var env httputil.Envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (s *AddressHandlerSuite) request() RegisterRequest {
	return RegisterRequest{
		UserDID:        s.user,
		PID:            "JP-13-113-01",
		CountryCode:    "jp",
		HierarchyDepth: 4,
		FullAddress:    domain.Address{Country: "JP", City: "Bunkyo", Street: "Hongo 7-3-1"},
	}
}

func (s *AddressHandlerSuite) TestRegister() {
	s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, in address.RegisterInput) (*address.Registration, error) {
			s.Equal("JP", in.CountryCode)
			s.Equal("Hongo 7-3-1", in.Address.Street)
			return &address.Registration{
				Credential: &credential.VerifiableCredential{ID: "urn:uuid:1", Claim: credential.Claim{AddressPID: in.PID}},
				Index:      3,
			}, nil
		})

	w, env := s.do(http.MethodPost, "/addresses", s.request())
	s.Equal(http.StatusCreated, w.Code)
	s.True(env.Success)
	s.Contains(w.Body.String(), `"credential"`)
	s.Contains(w.Body.String(), `"index":3`)
	s.NotContains(w.Body.String(), "Hongo")
}

func (s *AddressHandlerSuite) TestRegisterValidation() {
	cases := []struct {
		name   string
		mutate func(*RegisterRequest)
	}{
		{"bad user did", func(r *RegisterRequest) { r.UserDID = "user-1" }},
		{"missing pid", func(r *RegisterRequest) { r.PID = " " }},
		{"missing country", func(r *RegisterRequest) { r.CountryCode = "" }},
		{"missing city", func(r *RegisterRequest) { r.FullAddress.City = "" }},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := s.request()
			tc.mutate(&req)
			w, env := s.do(http.MethodPost, "/addresses", req)
			s.Equal(http.StatusBadRequest, w.Code)
			s.False(env.Success)
		})
	}
}

func (s *AddressHandlerSuite) TestRegisterMalformedPID() {
	s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
		Return(nil, &pid.MalformedPIDError{PID: "JP-13", Reason: "wrong depth"})

	req := s.request()
	req.PID = "JP-13"
	w, env := s.do(http.MethodPost, "/addresses", req)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(string(dErrors.CodeMalformedPID), env.Error.Code)
}

func (s *AddressHandlerSuite) TestRevoke() {
	s.service.EXPECT().Revoke(gomock.Any(), "JP-13-113-01", "moved", "JP-13-113-02").
		Return(revocation.Entry{PID: "JP-13-113-01", Reason: "moved", NewPID: "JP-13-113-02"}, nil)

	w, env := s.do(http.MethodDelete, "/addresses/JP-13-113-01", RevokeRequest{Reason: "moved", NewPID: "JP-13-113-02"})
	s.Equal(http.StatusOK, w.Code)
	s.True(env.Success)
}

func (s *AddressHandlerSuite) TestRevokeRequiresReason() {
	w, _ := s.do(http.MethodDelete, "/addresses/JP-13-113-01", RevokeRequest{})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *AddressHandlerSuite) TestRevokeConflict() {
	s.service.EXPECT().Revoke(gomock.Any(), "JP-13-113-01", "moved", "JP-13-113-02").
		Return(revocation.Entry{}, &revocation.ConflictError{PID: "JP-13-113-01", NewPID: "JP-13-113-02"})

	w, env := s.do(http.MethodDelete, "/addresses/JP-13-113-01", RevokeRequest{Reason: "moved", NewPID: "JP-13-113-02"})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(string(dErrors.CodeRevocationConflict), env.Error.Code)
}
