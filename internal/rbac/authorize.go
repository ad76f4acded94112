package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/audit"
)

// Outcome is the result of an authorization check.
type Outcome string

// Check outcomes. Denied is a normal result, not an error.
const (
	Allowed Outcome = "allowed"
	Denied  Outcome = "denied"
)

// Reasons attached to denied decisions.
const (
	ReasonUnknownCapability = "unknown capability"
	ReasonNotGranted        = "capability not granted"
	ReasonUnknownIdentity   = "unknown identity"
	ReasonInactiveIdentity  = "identity inactive"
	ReasonLookupFailed      = "lookup failed"
	ReasonAuditUnavailable  = "audit unavailable"
)

// Decision describes the outcome of a check and the roles it was based on.
type Decision struct {
	Outcome    Outcome
	Capability Capability
	Roles      []RoleName
	Reason     string
}

// Allowed reports whether the decision permits the action.
func (d Decision) Allowed() bool {
	return d.Outcome == Allowed
}

// Evaluate decides whether grants confer capability at now. Identities without
// effective grants hold no capabilities.
func Evaluate(catalog *Catalog, grants []Grant, capability Capability, now time.Time) Decision {
	effective := make([]Grant, 0, len(grants))
	for _, g := range grants {
		if g.EffectiveAt(now) {
			effective = append(effective, g)
		}
	}
	roles := rolesOf(effective)
	decision := Decision{Outcome: Denied, Capability: capability, Roles: roles}
	if !capability.Valid() {
		decision.Reason = ReasonUnknownCapability
		return decision
	}
	for _, role := range roles {
		if catalog.Has(role, capability) {
			decision.Outcome = Allowed
			return decision
		}
	}
	decision.Reason = ReasonNotGranted
	return decision
}

// DecisionRecorder observes decisions, typically for metrics.
type DecisionRecorder interface {
	ObserveDecision(capability string, outcome string)
}

type checkOptions struct {
	logAllowed bool
	actor      string
}

// CheckOption tunes a single check.
type CheckOption func(*checkOptions)

// WithDecisionLogging also audits allowed outcomes, for sensitive operations.
func WithDecisionLogging() CheckOption {
	return func(o *checkOptions) { o.logAllowed = true }
}

// WithActor records a different actor than the checked identity on audit entries.
func WithActor(actor string) CheckOption {
	return func(o *checkOptions) { o.actor = actor }
}

// Checker answers "does identity X currently hold capability Y" and audits denials.
type Checker struct {
	repo     Repository
	catalog  *Catalog
	audit    Auditor
	recorder DecisionRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewChecker builds a Checker. recorder may be nil.
func NewChecker(repo Repository, catalog *Catalog, auditor Auditor, recorder DecisionRecorder, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{repo: repo, catalog: catalog, audit: auditor, recorder: recorder, logger: logger, now: time.Now}
}

// Check evaluates identifier against capability. Unknown and deactivated identities are
// denied. A non-nil error accompanies a Denied decision when the store or the audit write
// failed; callers must treat any error as a denial.
func (c *Checker) Check(ctx context.Context, identifier string, capability Capability, opts ...CheckOption) (Decision, error) {
	var o checkOptions
	for _, opt := range opts {
		opt(&o)
	}
	identifier = strings.TrimSpace(identifier)
	if o.actor == "" {
		o.actor = identifier
	}

	decision, err := c.decide(ctx, identifier, capability)
	if err != nil {
		decision = Decision{Outcome: Denied, Capability: capability, Reason: ReasonLookupFailed}
		if c.recorder != nil {
			c.recorder.ObserveDecision(string(capability), string(decision.Outcome))
		}
		if auditErr := c.audit.Append(ctx, deniedEntry(o.actor, identifier, decision)); auditErr != nil {
			err = errors.Join(err, auditErr)
		}
		return decision, err
	}
	if c.recorder != nil {
		c.recorder.ObserveDecision(string(capability), string(decision.Outcome))
	}
	if decision.Allowed() && !o.logAllowed {
		return decision, nil
	}

	entry := deniedEntry(o.actor, identifier, decision)
	if decision.Allowed() {
		entry.Action = audit.ActionAccessGranted
		entry.Outcome = audit.OutcomeSuccess
	}
	if err := c.audit.Append(ctx, entry); err != nil {
		if decision.Allowed() {
			// logged decisions fail closed without their entry
			decision = Decision{Outcome: Denied, Capability: capability, Roles: decision.Roles, Reason: ReasonAuditUnavailable}
		}
		return decision, err
	}
	return decision, nil
}

func deniedEntry(actor, identifier string, decision Decision) audit.Entry {
	if actor == "" {
		actor = "anonymous"
	}
	return audit.Entry{
		Actor:   actor,
		Action:  audit.ActionAccessDenied,
		Target:  identifier,
		Outcome: audit.OutcomeDenied,
		Reason:  decision.Reason,
		Meta: map[string]string{
			"capability": string(decision.Capability),
			"roles":      joinRoles(decision.Roles),
		},
	}
}

func (c *Checker) decide(ctx context.Context, identifier string, capability Capability) (Decision, error) {
	subject, err := c.repo.FindSubject(ctx, identifier)
	if err != nil {
		if isNotFound(err) {
			return Decision{Outcome: Denied, Capability: capability, Roles: []RoleName{}, Reason: ReasonUnknownIdentity}, nil
		}
		return Decision{}, fmt.Errorf("rbac: find identity: %w", err)
	}
	grants, err := c.repo.ListActiveGrants(ctx, identifier)
	if err != nil {
		return Decision{}, fmt.Errorf("rbac: list grants: %w", err)
	}
	decision := Evaluate(c.catalog, grants, capability, c.now())
	if !subject.Active {
		decision.Outcome = Denied
		decision.Reason = ReasonInactiveIdentity
	}
	return decision, nil
}

func joinRoles(roles []RoleName) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
