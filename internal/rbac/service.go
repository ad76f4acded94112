package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-hr/internal/audit"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Repository is the grant side of the identity store.
type Repository interface {
	FindSubject(ctx context.Context, identifier string) (Subject, error)
	FindActiveGrant(ctx context.Context, identifier string, role RoleName) (Grant, error)
	InsertGrant(ctx context.Context, grant Grant) error
	TransitionGrant(ctx context.Context, grantID string, from, to GrantState, at time.Time, reason string) (bool, error)
	ListActiveGrants(ctx context.Context, identifier string) ([]Grant, error)
	ListExpiredActiveGrants(ctx context.Context, now time.Time, limit int) ([]Grant, error)
}

// Auditor appends audit entries.
type Auditor interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// Service orchestrates role grants.
type Service struct {
	repo    Repository
	catalog *Catalog
	audit   Auditor
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a Service. The catalog is fixed for the lifetime of the service.
func NewService(repo Repository, catalog *Catalog, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, audit: auditor, logger: logger, now: time.Now}
}

// Catalog exposes the role configuration.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Grant creates the active grant for (identifier, role) or returns the existing one.
func (s *Service) Grant(ctx context.Context, actor, identifier string, role RoleName, expiresAt *time.Time) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	now := s.now().UTC()
	if expiresAt != nil {
		if !expiresAt.After(now) {
			return "", ErrInvalidExpiry
		}
		utc := expiresAt.UTC()
		expiresAt = &utc
	}
	subject, err := s.repo.FindSubject(ctx, identifier)
	if err != nil {
		return "", s.notFound(err, "find identity")
	}
	if !subject.Active {
		return "", ErrIdentityInactive
	}

	existing, live, err := s.liveGrant(ctx, identifier, role, now)
	if err != nil {
		return "", err
	}
	if live {
		return existing.ID, nil
	}

	grant := Grant{
		ID:         uuid.NewString(),
		Identifier: identifier,
		Role:       role,
		GrantedAt:  now,
		ExpiresAt:  expiresAt,
		GrantedBy:  actor,
		State:      GrantActive,
	}
	if err := s.repo.InsertGrant(ctx, grant); err != nil {
		if !errors.Is(err, ErrGrantExists) {
			return "", fmt.Errorf("rbac: insert grant: %w", err)
		}
		// lost the race to a concurrent grant for the same pair
		existing, live, findErr := s.liveGrant(ctx, identifier, role, now)
		if findErr != nil {
			return "", fmt.Errorf("rbac: find grant after conflict: %w", findErr)
		}
		if live {
			return existing.ID, nil
		}
		if err := s.repo.InsertGrant(ctx, grant); err != nil {
			return "", fmt.Errorf("rbac: insert grant: %w", err)
		}
	}

	meta := map[string]string{"role": string(role), "grant_id": grant.ID}
	if expiresAt != nil {
		meta["expires_at"] = expiresAt.Format(time.RFC3339)
	}
	if err := s.audit.Append(ctx, audit.Entry{
		Actor:   actor,
		Action:  audit.ActionRoleGranted,
		Target:  identifier,
		Outcome: audit.OutcomeSuccess,
		Meta:    meta,
		At:      now,
	}); err != nil {
		return grant.ID, err
	}
	return grant.ID, nil
}

// liveGrant returns the effective active grant for the pair. An active grant already past
// its expiry is expired here, with its role_expired entry, so a fresh grant can replace it.
func (s *Service) liveGrant(ctx context.Context, identifier string, role RoleName, now time.Time) (Grant, bool, error) {
	existing, err := s.repo.FindActiveGrant(ctx, identifier, role)
	if err != nil {
		if isNotFound(err) {
			return Grant{}, false, nil
		}
		return Grant{}, false, fmt.Errorf("rbac: find grant: %w", err)
	}
	if existing.EffectiveAt(now) {
		return existing, true, nil
	}
	changed, err := s.repo.TransitionGrant(ctx, existing.ID, GrantActive, GrantExpired, now, expiredGrantEndReason)
	if err != nil {
		return Grant{}, false, fmt.Errorf("rbac: expire lapsed grant: %w", err)
	}
	if changed {
		if err := s.audit.Append(ctx, expiryEntry(existing, now)); err != nil {
			return Grant{}, false, err
		}
	}
	return Grant{}, false, nil
}

// Revoke transitions the active grant for (identifier, role) to revoked.
func (s *Service) Revoke(ctx context.Context, actor, identifier string, role RoleName, reason string) error {
	identifier = strings.TrimSpace(identifier)
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	grant, err := s.repo.FindActiveGrant(ctx, identifier, role)
	if err != nil {
		return s.notFound(err, "find grant")
	}
	now := s.now().UTC()
	changed, err := s.repo.TransitionGrant(ctx, grant.ID, GrantActive, GrantRevoked, now, reason)
	if err != nil {
		return fmt.Errorf("rbac: revoke grant: %w", err)
	}
	if !changed {
		s.logger.Info("revoke skipped, grant already ended",
			slog.String("grant_id", grant.ID),
			slog.String("identifier", identifier),
		)
		return nil
	}
	return s.audit.Append(ctx, audit.Entry{
		Actor:   actor,
		Action:  audit.ActionRoleRevoked,
		Target:  identifier,
		Outcome: audit.OutcomeSuccess,
		Reason:  reason,
		Meta:    map[string]string{"role": string(role), "grant_id": grant.ID},
		At:      now,
	})
}

// ListActiveRoles returns the roles the identity currently holds, in enumeration order.
func (s *Service) ListActiveRoles(ctx context.Context, identifier string) ([]RoleName, error) {
	grants, err := s.effectiveGrants(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return rolesOf(grants), nil
}

// EffectiveCapabilities returns the union of capabilities over effective grants.
func (s *Service) EffectiveCapabilities(ctx context.Context, identifier string) ([]Capability, error) {
	grants, err := s.effectiveGrants(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return capabilitiesOf(s.catalog, grants), nil
}

func (s *Service) effectiveGrants(ctx context.Context, identifier string) ([]Grant, error) {
	identifier = strings.TrimSpace(identifier)
	if _, err := s.repo.FindSubject(ctx, identifier); err != nil {
		return nil, s.notFound(err, "find identity")
	}
	grants, err := s.repo.ListActiveGrants(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("rbac: list grants: %w", err)
	}
	now := s.now()
	effective := grants[:0:0]
	for _, g := range grants {
		if g.EffectiveAt(now) {
			effective = append(effective, g)
		}
	}
	return effective, nil
}

func (s *Service) notFound(err error, op string) error {
	if isNotFound(err) {
		return ErrNotFound
	}
	return fmt.Errorf("rbac: %s: %w", op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}

func rolesOf(grants []Grant) []RoleName {
	held := make(map[RoleName]struct{}, len(grants))
	for _, g := range grants {
		held[g.Role] = struct{}{}
	}
	roles := make([]RoleName, 0, len(held))
	for _, r := range AllRoles() {
		if _, ok := held[r]; ok {
			roles = append(roles, r)
		}
	}
	return roles
}

func capabilitiesOf(catalog *Catalog, grants []Grant) []Capability {
	caps := make([]Capability, 0)
	seen := make(map[Capability]struct{})
	for _, role := range rolesOf(grants) {
		for _, c := range catalog.Capabilities(role) {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			caps = append(caps, c)
		}
	}
	slices.Sort(caps)
	return caps
}
