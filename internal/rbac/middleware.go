package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Authorizer is satisfied by *Checker.
type Authorizer interface {
	Check(ctx context.Context, identifier string, capability Capability, opts ...CheckOption) (Decision, error)
}

// Middleware wires authorization checks into HTTP handlers.
type Middleware struct {
	Checker Authorizer
	Logger  *slog.Logger
}

// RequireCapability rejects requests whose actor does not hold capability.
func (m Middleware) RequireCapability(capability Capability, opts ...CheckOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			decision, err := m.Checker.Check(r.Context(), actor, capability, opts...)
			if err != nil && m.Logger != nil {
				m.Logger.Error("rbac check",
					slog.String("actor", actor),
					slog.String("capability", string(capability)),
					slog.Any("error", err),
				)
			}
			if err != nil && decision.Reason == ReasonLookupFailed {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if err != nil || !decision.Allowed() {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
