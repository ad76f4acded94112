package rbac

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

var (
	// ErrNotFound indicates that the identity or active grant does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", shared.ErrNotFound)
	// ErrUnknownRole is returned for names outside the role enumeration.
	ErrUnknownRole = fmt.Errorf("rbac: %w: unknown role", shared.ErrInvalidInput)
	// ErrUnknownCapability is returned for tokens outside the capability enumeration.
	ErrUnknownCapability = fmt.Errorf("rbac: %w: unknown capability", shared.ErrInvalidInput)
	// ErrInvalidExpiry rejects expiry timestamps that are not in the future.
	ErrInvalidExpiry = fmt.Errorf("rbac: %w: expiry must be in the future", shared.ErrInvalidInput)
	// ErrGrantExists is returned by the store when an active grant already exists for the pair.
	ErrGrantExists = fmt.Errorf("rbac: %w: active grant exists", shared.ErrConflict)
	// ErrIdentityInactive rejects grants to deactivated identities.
	ErrIdentityInactive = fmt.Errorf("rbac: %w: identity inactive", shared.ErrConflict)
)

// RoleName is drawn from a closed, application-defined enumeration.
type RoleName string

// Roles known to the platform.
const (
	RoleSuperAdmin     RoleName = "super-admin"
	RoleHRManager      RoleName = "hr-manager"
	RoleDepartmentHead RoleName = "department-head"
	RoleEmployee       RoleName = "employee"
)

// AllRoles lists every role in display order.
func AllRoles() []RoleName {
	return []RoleName{RoleSuperAdmin, RoleHRManager, RoleDepartmentHead, RoleEmployee}
}

// Valid reports whether r belongs to the enumeration.
func (r RoleName) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleHRManager, RoleDepartmentHead, RoleEmployee:
		return true
	}
	return false
}

// ParseRoleName normalises and validates a role name.
func ParseRoleName(raw string) (RoleName, error) {
	r := RoleName(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return r, nil
}

// GrantState is the lifecycle state of a role grant.
type GrantState string

// Grant states. Expired and Revoked are terminal.
const (
	GrantActive  GrantState = "active"
	GrantExpired GrantState = "expired"
	GrantRevoked GrantState = "revoked"
)

// CanTransition reports whether from -> to is a legal grant transition.
func (s GrantState) CanTransition(to GrantState) bool {
	return s == GrantActive && (to == GrantExpired || to == GrantRevoked)
}

// Grant links one identity to one role.
type Grant struct {
	ID         string
	Identifier string
	Role       RoleName
	GrantedAt  time.Time
	ExpiresAt  *time.Time
	GrantedBy  string
	State      GrantState
	EndedAt    *time.Time
	EndReason  string
}

// Permanent reports whether the grant has no expiry.
func (g Grant) Permanent() bool {
	return g.ExpiresAt == nil
}

// EffectiveAt reports whether the grant confers capabilities at now. A grant past its
// expiry is not effective even before the sweeper marks it expired.
func (g Grant) EffectiveAt(now time.Time) bool {
	if g.State != GrantActive {
		return false
	}
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}

// Subject is the identity view needed for grants and checks.
type Subject struct {
	Identifier string
	Active     bool
}
