package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
	"github.com/odyssey-erp/odyssey-hr/internal/users"
)

// BootstrapResult reports what BootstrapAdmin did.
type BootstrapResult struct {
	Created bool
	Result  users.ProvisionResult
}

// BootstrapAdmin provisions the initial super-admin described by cfg. It is a
// no-op when an identity already holds the admin's base identifier.
func BootstrapAdmin(ctx context.Context, accounts *users.Service, cfg *Config) (BootstrapResult, error) {
	if accounts == nil || cfg == nil {
		return BootstrapResult{}, errors.New("app: bootstrap requires accounts and config")
	}
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPhone == "" {
		return BootstrapResult{}, errors.New("app: BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PHONE are required")
	}
	base := users.BaseIdentifier(cfg.BootstrapAdminFirstName, cfg.BootstrapAdminLastName)
	existing, err := accounts.Get(ctx, base)
	switch {
	case err == nil:
		return BootstrapResult{Result: users.ProvisionResult{Identity: existing}}, nil
	case !errors.Is(err, shared.ErrNotFound):
		return BootstrapResult{}, fmt.Errorf("app: lookup bootstrap admin: %w", err)
	}

	result, err := accounts.Provision(ctx, shared.SystemActor, users.Profile{
		FirstName:    cfg.BootstrapAdminFirstName,
		LastName:     cfg.BootstrapAdminLastName,
		Email:        cfg.BootstrapAdminEmail,
		Phone:        cfg.BootstrapAdminPhone,
		InitialRoles: []rbac.RoleName{rbac.RoleSuperAdmin},
	})
	if result.Identity.Identifier == "" {
		return BootstrapResult{}, err
	}
	return BootstrapResult{Created: true, Result: result}, err
}
