package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/audit"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

type memRepo struct {
	mu         sync.Mutex
	identities map[string]Identity
}

func newMemRepo(identifiers ...string) *memRepo {
	r := &memRepo{identities: map[string]Identity{}}
	for _, id := range identifiers {
		r.identities[id] = Identity{Identifier: id, Active: true}
	}
	return r
}

func (r *memRepo) FindByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[identifier]
	if !ok {
		return Identity{}, shared.ErrNotFound
	}
	return identity, nil
}

func (r *memRepo) InsertIdentity(ctx context.Context, identity Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.identities[identity.Identifier]; ok {
		return shared.ErrDuplicateIdentifier
	}
	r.identities[identity.Identifier] = identity
	return nil
}

func (r *memRepo) UpdateCredential(ctx context.Context, identifier, hash string, rotationRequired bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[identifier]
	if !ok {
		return shared.ErrNotFound
	}
	identity.CredentialHash = hash
	identity.RotationRequired = rotationRequired
	identity.UpdatedAt = at
	r.identities[identifier] = identity
	return nil
}

func (r *memRepo) SetActive(ctx context.Context, identifier string, active bool, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[identifier]
	if !ok {
		return false, shared.ErrNotFound
	}
	if identity.Active == active {
		return false, nil
	}
	identity.Active = active
	identity.UpdatedAt = at
	r.identities[identifier] = identity
	return true, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identities)
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (a *recordingAuditor) Append(ctx context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAuditor) byAction(action string) []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Entry
	for _, e := range a.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type stubNotifier struct {
	err        error
	calls      int
	credential string
	ctxErr     error
	deadline   bool
}

func (n *stubNotifier) SendProvisioningNotice(ctx context.Context, identity Identity, credential string) error {
	n.calls++
	n.credential = credential
	n.ctxErr = ctx.Err()
	_, n.deadline = ctx.Deadline()
	return n.err
}

type stubGranter struct {
	granted []rbac.RoleName
}

func (g *stubGranter) Grant(ctx context.Context, actor, identifier string, role rbac.RoleName, expiresAt *time.Time) (string, error) {
	if role == rbac.RoleSuperAdmin {
		return "", errors.New("grant refused")
	}
	g.granted = append(g.granted, role)
	return "grant-" + string(role), nil
}
