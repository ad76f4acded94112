package users

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-hr/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Handler exposes account endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(rbac.CapAccountsProvision, rbac.WithDecisionLogging()))
		r.Post("/accounts", h.provision)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(rbac.CapAccountsView))
		r.Get("/accounts/{identifier}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireCapability(rbac.CapAccountsDeactivate, rbac.WithDecisionLogging()))
		r.Post("/accounts/{identifier}/deactivate", h.deactivate)
	})
	r.Post("/accounts/{identifier}/credential", h.rotate)
}

type identityResponse struct {
	Identifier       string    `json:"identifier"`
	DisplayName      string    `json:"display_name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	Active           bool      `json:"active"`
	RotationRequired bool      `json:"rotation_required"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type provisionResponse struct {
	Identity identityResponse `json:"identity"`
	Delivery struct {
		Status string `json:"status"`
		Reason string `json:"reason,omitempty"`
	} `json:"delivery"`
	GrantIDs []string `json:"grant_ids,omitempty"`
	// Only set when the notice was not delivered, so an administrator can hand it over.
	TemporaryCredential string `json:"temporary_credential,omitempty"`
	Warning             string `json:"warning,omitempty"`
}

type deactivateRequest struct {
	Reason string `json:"reason"`
}

type rotateRequest struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

func toIdentityResponse(i Identity) identityResponse {
	return identityResponse{
		Identifier:       i.Identifier,
		DisplayName:      i.DisplayName,
		Email:            i.Email,
		Phone:            i.Phone,
		Active:           i.Active,
		RotationRequired: i.RotationRequired,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
	}
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	var profile Profile
	if err := httpx.DecodeJSON(r, &profile); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.Provision(r.Context(), actor, profile)
	if err != nil && result.Identity.Identifier == "" {
		h.logger.Warn("provision account", slog.String("actor", actor), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := provisionResponse{Identity: toIdentityResponse(result.Identity), GrantIDs: result.GrantIDs}
	resp.Delivery.Status = string(result.Delivery.Status)
	resp.Delivery.Reason = result.Delivery.Reason
	if result.Delivery.Status != Delivered {
		resp.TemporaryCredential = result.TemporaryCredential
	}
	if err != nil {
		h.logger.Error("provision account follow-up", slog.String("identifier", result.Identity.Identifier), slog.Any("error", err))
		resp.Warning = "account created with incomplete follow-up steps"
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.Get(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toIdentityResponse(identity))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	var req deactivateRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
			return
		}
	}
	identifier := chi.URLParam(r, "identifier")
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Deactivate(r.Context(), actor, identifier, req.Reason); err != nil {
		h.logger.Error("deactivate account", slog.String("identifier", identifier), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rotate lets an identity replace its own credential.
func (h *Handler) rotate(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if actor != identifier {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	var req rotateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.service.RotateCredential(r.Context(), identifier, req.Current, req.Next); err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("rotate credential", slog.String("identifier", identifier), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
