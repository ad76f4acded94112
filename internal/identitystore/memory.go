package identitystore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/audit"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
	"github.com/odyssey-erp/odyssey-hr/internal/users"
)

// Memory is an in-process store with the same uniqueness and conditional-update rules as
// Postgres. It backs tests and APP_ENV=test runs.
type Memory struct {
	mu         sync.RWMutex
	identities map[string]users.Identity
	grants     map[string]rbac.Grant
	grantOrder []string
	entries    []audit.Entry
}

var (
	_ users.Repository = (*Memory)(nil)
	_ rbac.Repository  = (*Memory)(nil)
	_ audit.Repository = (*Memory)(nil)
)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		identities: make(map[string]users.Identity),
		grants:     make(map[string]rbac.Grant),
	}
}

func (m *Memory) FindByIdentifier(ctx context.Context, identifier string) (users.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.identities[identifier]
	if !ok {
		return users.Identity{}, shared.ErrNotFound
	}
	return i, nil
}

func (m *Memory) InsertIdentity(ctx context.Context, identity users.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[identity.Identifier]; ok {
		return fmt.Errorf("%w: %s", shared.ErrDuplicateIdentifier, identity.Identifier)
	}
	m.identities[identity.Identifier] = identity
	return nil
}

func (m *Memory) UpdateCredential(ctx context.Context, identifier, credentialHash string, rotationRequired bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.identities[identifier]
	if !ok {
		return shared.ErrNotFound
	}
	i.CredentialHash = credentialHash
	i.RotationRequired = rotationRequired
	i.UpdatedAt = at
	m.identities[identifier] = i
	return nil
}

func (m *Memory) SetActive(ctx context.Context, identifier string, active bool, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.identities[identifier]
	if !ok {
		return false, shared.ErrNotFound
	}
	if i.Active == active {
		return false, nil
	}
	i.Active = active
	i.UpdatedAt = at
	m.identities[identifier] = i
	return true, nil
}

func (m *Memory) FindSubject(ctx context.Context, identifier string) (rbac.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.identities[identifier]
	if !ok {
		return rbac.Subject{}, shared.ErrNotFound
	}
	return rbac.Subject{Identifier: i.Identifier, Active: i.Active}, nil
}

func (m *Memory) FindActiveGrant(ctx context.Context, identifier string, role rbac.RoleName) (rbac.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.grantOrder {
		g := m.grants[id]
		if g.Identifier == identifier && g.Role == role && g.State == rbac.GrantActive {
			return cloneGrant(g), nil
		}
	}
	return rbac.Grant{}, shared.ErrNotFound
}

func (m *Memory) InsertGrant(ctx context.Context, grant rbac.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[grant.Identifier]; !ok {
		return rbac.ErrNotFound
	}
	if _, ok := m.grants[grant.ID]; ok {
		return fmt.Errorf("%w: grant id %s", shared.ErrConflict, grant.ID)
	}
	if grant.State == rbac.GrantActive {
		for _, g := range m.grants {
			if g.Identifier == grant.Identifier && g.Role == grant.Role && g.State == rbac.GrantActive {
				return rbac.ErrGrantExists
			}
		}
	}
	m.grants[grant.ID] = cloneGrant(grant)
	m.grantOrder = append(m.grantOrder, grant.ID)
	return nil
}

func (m *Memory) TransitionGrant(ctx context.Context, grantID string, from, to rbac.GrantState, at time.Time, reason string) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("%w: grant transition %s -> %s", shared.ErrInvalidInput, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[grantID]
	if !ok || g.State != from {
		return false, nil
	}
	g.State = to
	g.EndedAt = &at
	g.EndReason = reason
	m.grants[grantID] = g
	return true, nil
}

func (m *Memory) ListActiveGrants(ctx context.Context, identifier string) ([]rbac.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []rbac.Grant
	for _, id := range m.grantOrder {
		g := m.grants[id]
		if g.Identifier == identifier && g.State == rbac.GrantActive {
			out = append(out, cloneGrant(g))
		}
	}
	return out, nil
}

func (m *Memory) ListExpiredActiveGrants(ctx context.Context, now time.Time, limit int) ([]rbac.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []rbac.Grant
	for _, id := range m.grantOrder {
		g := m.grants[id]
		if g.State == rbac.GrantActive && g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
			out = append(out, cloneGrant(g))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(*out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Grants returns every grant of identifier in any state, oldest first.
func (m *Memory) Grants(identifier string) []rbac.Grant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []rbac.Grant
	for _, id := range m.grantOrder {
		if g := m.grants[id]; g.Identifier == identifier {
			out = append(out, cloneGrant(g))
		}
	}
	return out
}

func (m *Memory) AppendEntry(ctx context.Context, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Meta = maps.Clone(entry.Meta)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *Memory) ListEntries(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]audit.Entry, 0)
	for _, e := range m.entries {
		if f.Actor != "" && e.Actor != f.Actor {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Target != "" && e.Target != f.Target {
			continue
		}
		if !f.From.IsZero() && e.At.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !e.At.Before(f.To) {
			continue
		}
		e.Meta = maps.Clone(e.Meta)
		matched = append(matched, e)
	}
	slices.SortStableFunc(matched, func(a, b audit.Entry) int {
		if c := b.At.Compare(a.At); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []audit.Entry{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func cloneGrant(g rbac.Grant) rbac.Grant {
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		g.ExpiresAt = &t
	}
	if g.EndedAt != nil {
		t := *g.EndedAt
		g.EndedAt = &t
	}
	return g
}
