package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pidgate/internal/access"
	"pidgate/internal/audit"
	"pidgate/pkg/domain"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
	"pidgate/pkg/requestcontext"
)

const defaultAuditLimit = 100

// Service resolves PIDs and manages policies.
type Service interface {
	Resolve(ctx context.Context, principal, pid string) (domain.Address, error)
	AddPolicy(ctx context.Context, p access.Policy) (access.Policy, error)
	ListPolicies(ctx context.Context) ([]access.Policy, error)
}

// AuditReader reads the audit log.
type AuditReader interface {
	ListByPID(ctx context.Context, pid string) ([]audit.Entry, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Entry, error)
}

type Handler struct {
	service Service
	audits  AuditReader
	logger  *slog.Logger
}

func New(service Service, audits AuditReader, logger *slog.Logger) *Handler {
	return &Handler{service: service, audits: audits, logger: logger}
}

// Register mounts the carrier-facing resolution endpoint. The router must
// authenticate the principal first.
func (h *Handler) Register(r chi.Router) {
	r.Post("/resolve", h.HandleResolve)
}

// RegisterAdmin mounts policy and audit endpoints behind the admin guard.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/policies", h.HandleAddPolicy)
	r.Get("/policies", h.HandleListPolicies)
	r.Get("/audit", h.HandleListAudit)
}

type ResolveRequest struct {
	PID string `json:"pid"`
}

func (r *ResolveRequest) Validate() error {
	r.PID = strings.TrimSpace(r.PID)
	if r.PID == "" {
		return dErrors.New(dErrors.CodeValidation, "pid is required")
	}
	return nil
}

type ResolveResponse struct {
	PID     string         `json:"pid"`
	Address domain.Address `json:"address"`
}

// HandleResolve handles POST /resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	principal := requestcontext.Principal(ctx)
	if principal == "" {
		httputil.WriteError(ctx, w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger)
	if !ok {
		return
	}

	addr, err := h.service.Resolve(ctx, principal, req.PID)
	if err != nil {
		h.logger.WarnContext(ctx, "resolution refused",
			"request_id", requestID,
			"principal", principal,
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(ctx, w, err)
		return
	}
	h.logger.InfoContext(ctx, "address resolved",
		"request_id", requestID,
		"principal", principal,
	)
	httputil.WriteJSON(ctx, w, http.StatusOK, ResolveResponse{PID: req.PID, Address: addr})
}

type PolicyRequest struct {
	Principal string     `json:"principal"`
	Resource  string     `json:"resource"`
	Action    string     `json:"action"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (r *PolicyRequest) Validate() error {
	r.Principal = strings.TrimSpace(r.Principal)
	r.Resource = strings.TrimSpace(r.Resource)
	r.Action = strings.TrimSpace(r.Action)
	if r.Action == "" {
		r.Action = access.ActionResolve
	}
	return access.Policy{Principal: r.Principal, Resource: r.Resource, Action: r.Action}.Validate()
}

// HandleAddPolicy handles POST /policies.
func (h *Handler) HandleAddPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[PolicyRequest](w, r, h.logger)
	if !ok {
		return
	}
	policy, err := h.service.AddPolicy(ctx, access.Policy{
		Principal: req.Principal,
		Resource:  req.Resource,
		Action:    req.Action,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to add policy",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(ctx, w, err)
		return
	}
	h.logger.InfoContext(ctx, "policy added",
		"request_id", requestcontext.RequestID(ctx),
		"policy_id", policy.ID.String(),
		"principal", policy.Principal,
		"resource", policy.Resource,
	)
	httputil.WriteJSON(ctx, w, http.StatusCreated, policy)
}

// HandleListPolicies handles GET /policies.
func (h *Handler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policies, err := h.service.ListPolicies(ctx)
	if err != nil {
		httputil.WriteError(ctx, w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list policies"))
		return
	}
	httputil.WriteJSON(ctx, w, http.StatusOK, map[string]any{"policies": policies})
}

// HandleListAudit handles GET /audit?pid=&limit=.
func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		entries []audit.Entry
		err     error
	)
	if pid := strings.TrimSpace(r.URL.Query().Get("pid")); pid != "" {
		entries, err = h.audits.ListByPID(ctx, pid)
	} else {
		limit := defaultAuditLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				httputil.WriteError(ctx, w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
				return
			}
		}
		entries, err = h.audits.ListRecent(ctx, limit)
	}
	if err != nil {
		httputil.WriteError(ctx, w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log"))
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(ctx, w, http.StatusOK, map[string]any{"entries": entries})
}
