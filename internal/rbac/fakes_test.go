package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/audit"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

type memRepo struct {
	mu       sync.Mutex
	subjects map[string]Subject
	grants   map[string]Grant
	order    []string
	err      error
}

func newMemRepo(subjects ...Subject) *memRepo {
	r := &memRepo{subjects: map[string]Subject{}, grants: map[string]Grant{}}
	for _, s := range subjects {
		r.subjects[s.Identifier] = s
	}
	return r
}

func (r *memRepo) FindSubject(ctx context.Context, identifier string) (Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Subject{}, r.err
	}
	s, ok := r.subjects[identifier]
	if !ok {
		return Subject{}, shared.ErrNotFound
	}
	return s, nil
}

func (r *memRepo) FindActiveGrant(ctx context.Context, identifier string, role RoleName) (Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		g := r.grants[id]
		if g.Identifier == identifier && g.Role == role && g.State == GrantActive {
			return g, nil
		}
	}
	return Grant{}, shared.ErrNotFound
}

func (r *memRepo) InsertGrant(ctx context.Context, grant Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.Identifier == grant.Identifier && g.Role == grant.Role && g.State == GrantActive {
			return ErrGrantExists
		}
	}
	r.grants[grant.ID] = grant
	r.order = append(r.order, grant.ID)
	return nil
}

func (r *memRepo) TransitionGrant(ctx context.Context, grantID string, from, to GrantState, at time.Time, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[grantID]
	if !ok || g.State != from {
		return false, nil
	}
	g.State = to
	g.EndedAt = &at
	g.EndReason = reason
	r.grants[grantID] = g
	return true, nil
}

func (r *memRepo) ListActiveGrants(ctx context.Context, identifier string) ([]Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []Grant
	for _, id := range r.order {
		g := r.grants[id]
		if g.Identifier == identifier && g.State == GrantActive {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *memRepo) ListExpiredActiveGrants(ctx context.Context, now time.Time, limit int) ([]Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Grant
	for _, id := range r.order {
		g := r.grants[id]
		if g.State == GrantActive && g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) countState(identifier string, role RoleName, state GrantState) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, g := range r.grants {
		if g.Identifier == identifier && g.Role == role && g.State == state {
			n++
		}
	}
	return n
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

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
