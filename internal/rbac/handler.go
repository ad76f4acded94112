package rbac

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-hr/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Handler exposes grant management and checks as JSON endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	checker *Checker
	rbac    Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, checker *Checker, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, checker: checker, rbac: rbac}
}

// MountRoutes registers grant and check routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(CapRolesGrant, WithDecisionLogging()))
		r.Post("/grants", h.grant)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(CapRolesRevoke, WithDecisionLogging()))
		r.Delete("/grants/{identifier}/{role}", h.revoke)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(CapRolesView))
		r.Get("/identities/{identifier}/roles", h.listRoles)
		r.Get("/identities/{identifier}/capabilities", h.listCapabilities)
		r.Post("/authz/check", h.check)
	})
}

type grantRequest struct {
	Identifier string     `json:"identifier"`
	Role       string     `json:"role"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type checkRequest struct {
	Identifier  string `json:"identifier"`
	Capability  string `json:"capability"`
	LogDecision bool   `json:"log_decision"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	role, err := ParseRoleName(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := h.service.Grant(r.Context(), actor, req.Identifier, role, req.ExpiresAt)
	if err != nil {
		h.logger.Error("grant role", slog.String("identifier", req.Identifier), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"grant_id": id})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRoleName(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	identifier := chi.URLParam(r, "identifier")
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Revoke(r.Context(), actor, identifier, role, r.URL.Query().Get("reason")); err != nil {
		h.logger.Error("revoke role", slog.String("identifier", identifier), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	roles, err := h.service.ListActiveRoles(r.Context(), identifier)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"identifier": identifier, "roles": roles})
}

func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	caps, err := h.service.EffectiveCapabilities(r.Context(), identifier)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"identifier": identifier, "capabilities": caps})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	var opts []CheckOption
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		opts = append(opts, WithActor(actor))
	}
	if req.LogDecision {
		opts = append(opts, WithDecisionLogging())
	}
	decision, err := h.checker.Check(r.Context(), req.Identifier, Capability(req.Capability), opts...)
	if err != nil {
		h.logger.Error("authz check", slog.String("identifier", req.Identifier), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"outcome":    decision.Outcome,
		"capability": decision.Capability,
		"roles":      decision.Roles,
		"reason":     decision.Reason,
	})
}
