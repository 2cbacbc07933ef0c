package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pidgate/internal/address"
	"pidgate/internal/did"
	"pidgate/internal/revocation"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
	"pidgate/pkg/requestcontext"
)

type Service interface {
	Register(ctx context.Context, in address.RegisterInput) (*address.Registration, error)
	Revoke(ctx context.Context, pid, reason, newPID string) (revocation.Entry, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the address provider routes. The router guards them with
// provider bearer tokens.
func (h *Handler) Register(r chi.Router) {
	r.Post("/addresses", h.HandleRegister)
	r.Delete("/addresses/{pid}", h.HandleRevoke)
}

type RegisterRequest struct {
	UserDID        string         `json:"userDid"`
	PID            string         `json:"pid"`
	CountryCode    string         `json:"countryCode"`
	HierarchyDepth int            `json:"hierarchyDepth"`
	FullAddress    domain.Address `json:"fullAddress"`
}

func (r *RegisterRequest) Validate() error {
	r.UserDID = strings.TrimSpace(r.UserDID)
	r.PID = strings.TrimSpace(r.PID)
	r.CountryCode = strings.ToUpper(strings.TrimSpace(r.CountryCode))
	if !did.Valid(r.UserDID) {
		return dErrors.New(dErrors.CodeValidation, "userDid must be a did:pid identifier")
	}
	if r.PID == "" {
		return dErrors.New(dErrors.CodeValidation, "pid is required")
	}
	if r.CountryCode == "" {
		return dErrors.New(dErrors.CodeValidation, "countryCode is required")
	}
	if r.HierarchyDepth < 0 {
		return dErrors.New(dErrors.CodeValidation, "hierarchyDepth must not be negative")
	}
	return r.FullAddress.Validate()
}

type RevokeRequest struct {
	Reason string `json:"reason"`
	NewPID string `json:"newPid,omitempty"`
}

func (r *RevokeRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	r.NewPID = strings.TrimSpace(r.NewPID)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// HandleRegister handles POST /addresses.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger)
	if !ok {
		return
	}

	reg, err := h.service.Register(ctx, address.RegisterInput{
		SubjectDID:     req.UserDID,
		PID:            req.PID,
		CountryCode:    req.CountryCode,
		HierarchyDepth: req.HierarchyDepth,
		Address:        req.FullAddress,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "address registration failed",
			"request_id", requestcontext.RequestID(ctx),
			"provider", requestcontext.Principal(ctx),
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(ctx, w, err)
		return
	}
	httputil.WriteJSON(ctx, w, http.StatusCreated, reg)
}

// HandleRevoke handles DELETE /addresses/{pid}.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid := chi.URLParam(r, "pid")
	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger)
	if !ok {
		return
	}

	entry, err := h.service.Revoke(ctx, pid, req.Reason, req.NewPID)
	if err != nil {
		h.logger.WarnContext(ctx, "address revocation failed",
			"request_id", requestcontext.RequestID(ctx),
			"provider", requestcontext.Principal(ctx),
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(ctx, w, err)
		return
	}
	httputil.WriteJSON(ctx, w, http.StatusOK, entry)
}
