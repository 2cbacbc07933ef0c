package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pidgate/internal/did"
	"pidgate/internal/session"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
	"pidgate/pkg/requestcontext"
)

const maxWait = 25 * time.Second

type Service interface {
	Create(ctx context.Context) (session.Session, error)
	Get(ctx context.Context, id domain.SessionID) (session.Session, error)
	Wait(ctx context.Context, id domain.SessionID, since session.Status) (session.Session, error)
	Scan(ctx context.Context, id domain.SessionID, challenge, subject string) (session.Session, error)
	Approve(ctx context.Context, id domain.SessionID, subject string) (session.Session, error)
	Deny(ctx context.Context, id domain.SessionID, subject string) (session.Session, error)
	Delete(ctx context.Context, id domain.SessionID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.HandleCreate)
	r.Get("/sessions/{id}", h.HandleGet)
	r.Post("/sessions/{id}/scan", h.HandleScan)
	r.Post("/sessions/{id}/approve", h.HandleApprove)
	r.Post("/sessions/{id}/deny", h.HandleDeny)
	r.Delete("/sessions/{id}", h.HandleDelete)
}

type ScanRequest struct {
	Challenge string `json:"challenge"`
	Subject   string `json:"subject"`
}

func (r *ScanRequest) Validate() error {
	r.Challenge = strings.TrimSpace(r.Challenge)
	if r.Challenge == "" {
		return dErrors.New(dErrors.CodeValidation, "challenge is required")
	}
	return validateSubject(&r.Subject)
}

type DecisionRequest struct {
	Subject string `json:"subject"`
}

func (r *DecisionRequest) Validate() error {
	return validateSubject(&r.Subject)
}

func validateSubject(subject *string) error {
	*subject = strings.TrimSpace(*subject)
	if !did.Valid(*subject) {
		return dErrors.New(dErrors.CodeValidation, "subject must be a did:pid identifier")
	}
	return nil
}

func sessionID(w http.ResponseWriter, r *http.Request) (domain.SessionID, bool) {
	id, err := domain.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(r.Context(), w, err)
		return domain.SessionID{}, false
	}
	return id, true
}

// HandleCreate handles POST /sessions.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.service.Create(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create session",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(ctx, w, err)
		return
	}
	httputil.WriteJSON(ctx, w, http.StatusCreated, s)
}

// HandleGet handles GET /sessions/{id}. With ?since=<status> it long-polls
// until the status changes or the wait limit passes.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	since := session.Status(r.URL.Query().Get("since"))
	if since == "" {
		s, err := h.service.Get(ctx, id)
		h.write(w, r, s, err)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()
	s, err := h.service.Wait(waitCtx, id, since)
	if errors.Is(err, context.DeadlineExceeded) {
		s, err = h.service.Get(ctx, id)
	}
	h.write(w, r, s, err)
}

// HandleScan handles POST /sessions/{id}/scan.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ScanRequest](w, r, h.logger)
	if !ok {
		return
	}
	s, err := h.service.Scan(r.Context(), id, req.Challenge, req.Subject)
	h.write(w, r, s, err)
}

// HandleApprove handles POST /sessions/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

// HandleDeny handles POST /sessions/{id}/deny.
func (h *Handler) HandleDeny(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Deny)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.SessionID, string) (session.Session, error)) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger)
	if !ok {
		return
	}
	s, err := fn(r.Context(), id, req.Subject)
	h.write(w, r, s, err)
}

// HandleDelete handles DELETE /sessions/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		httputil.WriteError(ctx, w, err)
		return
	}
	httputil.WriteJSON(ctx, w, http.StatusOK, map[string]string{"id": id.String(), "status": "deleted"})
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, s session.Session, err error) {
	ctx := r.Context()
	if err != nil {
		h.logger.WarnContext(ctx, "session request failed",
			"request_id", requestcontext.RequestID(ctx),
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(ctx, w, err)
		return
	}
	httputil.WriteJSON(ctx, w, http.StatusOK, s)
}
