package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pidgate/internal/did"
	"pidgate/internal/session"
	"pidgate/internal/session/handler/mocks"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type SessionHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	subject string
}

func TestSessionHandlerSuite(t *testing.T) {
	suite.Run(t, new(SessionHandlerSuite))
}

func (s *SessionHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)

	kp, err := did.Generate()
	s.Require().NoError(err)
	s.subject = kp.DID
}

func (s *SessionHandlerSuite) do(method, target string, body any) (*httptest.ResponseRecorder, httputil.Envelope) {
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

func (s *SessionHandlerSuite) TestCreate() {
	id := domain.NewSessionID()
	s.service.EXPECT().Create(gomock.Any()).
		Return(session.Session{ID: id, Status: session.StatusPending, Challenge: "c0ffee"}, nil)

	w, env := s.do(http.MethodPost, "/sessions", nil)
	s.Equal(http.StatusCreated, w.Code)
	s.True(env.Success)
	s.Contains(w.Body.String(), `"challenge":"c0ffee"`)
	s.Contains(w.Body.String(), id.String())
}

func (s *SessionHandlerSuite) TestGet() {
	id := domain.NewSessionID()
	s.service.EXPECT().Get(gomock.Any(), id).
		Return(session.Session{ID: id, Status: session.StatusScanned}, nil)

	w, _ := s.do(http.MethodGet, "/sessions/"+id.String(), nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"scanned"`)
}

func (s *SessionHandlerSuite) TestGetRejectsBadID() {
	w, env := s.do(http.MethodGet, "/sessions/not-a-uuid", nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.False(env.Success)
}

func (s *SessionHandlerSuite) TestLongPoll() {
	id := domain.NewSessionID()

	s.Run("returns the changed status", func() {
		s.service.EXPECT().Wait(gomock.Any(), id, session.StatusPending).
			Return(session.Session{ID: id, Status: session.StatusScanned}, nil)

		w, _ := s.do(http.MethodGet, "/sessions/"+id.String()+"?since=pending", nil)
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"status":"scanned"`)
	})

	s.Run("falls back to the current snapshot on timeout", func() {
		s.service.EXPECT().Wait(gomock.Any(), id, session.StatusPending).
			Return(session.Session{}, context.DeadlineExceeded)
		s.service.EXPECT().Get(gomock.Any(), id).
			Return(session.Session{ID: id, Status: session.StatusPending}, nil)

		w, _ := s.do(http.MethodGet, "/sessions/"+id.String()+"?since=pending", nil)
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"status":"pending"`)
	})
}

func (s *SessionHandlerSuite) TestScan() {
	id := domain.NewSessionID()

	s.Run("scans with a valid challenge", func() {
		s.service.EXPECT().Scan(gomock.Any(), id, "c0ffee", s.subject).
			Return(session.Session{ID: id, Status: session.StatusScanned, Subject: s.subject}, nil)

		w, _ := s.do(http.MethodPost, "/sessions/"+id.String()+"/scan",
			ScanRequest{Challenge: "c0ffee", Subject: s.subject})
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("rejects a subject that is not a DID", func() {
		w, env := s.do(http.MethodPost, "/sessions/"+id.String()+"/scan",
			ScanRequest{Challenge: "c0ffee", Subject: "alice"})
		s.Equal(http.StatusBadRequest, w.Code)
		s.Require().NotNil(env.Error)
		s.Equal(string(dErrors.CodeValidation), env.Error.Code)
	})

	s.Run("maps a challenge mismatch to forbidden", func() {
		s.service.EXPECT().Scan(gomock.Any(), id, "bad", s.subject).
			Return(session.Session{}, dErrors.New(dErrors.CodeForbidden, "challenge mismatch"))

		w, _ := s.do(http.MethodPost, "/sessions/"+id.String()+"/scan",
			ScanRequest{Challenge: "bad", Subject: s.subject})
		s.Equal(http.StatusForbidden, w.Code)
	})
}

func (s *SessionHandlerSuite) TestDecisions() {
	id := domain.NewSessionID()

	s.service.EXPECT().Approve(gomock.Any(), id, s.subject).
		Return(session.Session{ID: id, Status: session.StatusApproved}, nil)
	w, _ := s.do(http.MethodPost, "/sessions/"+id.String()+"/approve", DecisionRequest{Subject: s.subject})
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"approved"`)

	s.service.EXPECT().Deny(gomock.Any(), id, s.subject).
		Return(session.Session{}, dErrors.New(dErrors.CodeSessionStateTransition, "approved -> denied"))
	w, env := s.do(http.MethodPost, "/sessions/"+id.String()+"/deny", DecisionRequest{Subject: s.subject})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(string(dErrors.CodeSessionStateTransition), env.Error.Code)
}

func (s *SessionHandlerSuite) TestDelete() {
	id := domain.NewSessionID()
	s.service.EXPECT().Delete(gomock.Any(), id).Return(nil)

	w, _ := s.do(http.MethodDelete, "/sessions/"+id.String(), nil)
	s.Equal(http.StatusOK, w.Code)

	s.service.EXPECT().Delete(gomock.Any(), id).Return(dErrors.New(dErrors.CodeNotFound, "session not found"))
	w, _ = s.do(http.MethodDelete, "/sessions/"+id.String(), nil)
	s.Equal(http.StatusNotFound, w.Code)
}
