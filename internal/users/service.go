package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-hr/internal/audit"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/security"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// DefaultNotifyTimeout bounds the provisioning notice hand-off.
const DefaultNotifyTimeout = 10 * time.Second

// Repository defines identity persistence.
type Repository interface {
	Lookup
	InsertIdentity(ctx context.Context, identity Identity) error
	UpdateCredential(ctx context.Context, identifier, credentialHash string, rotationRequired bool, at time.Time) error
	SetActive(ctx context.Context, identifier string, active bool, at time.Time) (bool, error)
}

// Auditor appends audit entries.
type Auditor interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// RoleGranter grants initial roles to new identities.
type RoleGranter interface {
	Grant(ctx context.Context, actor, identifier string, role rbac.RoleName, expiresAt *time.Time) (string, error)
}

// ServiceConfig tunes provisioning.
type ServiceConfig struct {
	MaxAttempts   int
	NotifyTimeout time.Duration
	Policy        *security.Policy
}

// Service provisions and maintains identities.
type Service struct {
	repo          Repository
	audit         Auditor
	granter       RoleGranter
	notifier      Notifier
	generator     *Generator
	policy        *security.Policy
	notifyTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewService builds Service instance. granter may be nil when initial roles are not used.
func NewService(repo Repository, auditor Auditor, granter RoleGranter, notifier Notifier, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Policy == nil {
		cfg.Policy = security.DefaultPolicy()
	}
	return &Service{
		repo:          repo,
		audit:         auditor,
		granter:       granter,
		notifier:      notifier,
		generator:     NewGenerator(repo, cfg.MaxAttempts),
		policy:        cfg.Policy,
		notifyTimeout: cfg.NotifyTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

// Provision creates a new identity with a temporary credential and hands the credential to
// the notifier. Once the identity is stored the result is always populated; errors from
// the audit trail or initial grants are returned alongside it. A failed notice never
// undoes the account.
func (s *Service) Provision(ctx context.Context, actor string, profile Profile) (ProvisionResult, error) {
	profile = normaliseProfile(profile)
	if err := validateProfile(profile); err != nil {
		return ProvisionResult{}, err
	}

	credential, err := security.GenerateTemporaryCredential(s.policy)
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("users: generate credential: %w", err)
	}
	hash, err := security.HashCredential(credential)
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("users: hash credential: %w", err)
	}

	now := s.now().UTC()
	identity := Identity{
		ID:               uuid.NewString(),
		DisplayName:      profile.DisplayName,
		Email:            profile.Email,
		Phone:            profile.Phone,
		CredentialHash:   hash,
		Active:           true,
		RotationRequired: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	identifier, err := s.generator.Generate(ctx, profile.FirstName, profile.LastName, func(ctx context.Context, candidate string) error {
		attempt := identity
		attempt.Identifier = candidate
		if attempt.DisplayName == "" {
			attempt.DisplayName = candidate
		}
		return s.repo.InsertIdentity(ctx, attempt)
	})
	if err != nil {
		return ProvisionResult{}, err
	}
	identity.Identifier = identifier
	if identity.DisplayName == "" {
		identity.DisplayName = identifier
	}

	result := ProvisionResult{Identity: identity, TemporaryCredential: credential}
	var errs []error
	if err := s.audit.Append(ctx, audit.Entry{
		Actor:   actor,
		Action:  audit.ActionAccountCreated,
		Target:  identifier,
		Outcome: audit.OutcomeSuccess,
		At:      now,
	}); err != nil {
		errs = append(errs, err)
	}

	for _, role := range profile.InitialRoles {
		if s.granter == nil {
			errs = append(errs, fmt.Errorf("users: no role granter for initial role %s", role))
			break
		}
		id, err := s.granter.Grant(ctx, actor, identifier, role, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("users: grant initial role %s: %w", role, err))
		}
		if id != "" {
			result.GrantIDs = append(result.GrantIDs, id)
		}
	}

	result.Delivery = s.deliver(ctx, actor, identity, credential)
	if err := s.recordDelivery(ctx, actor, identifier, result.Delivery); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("identity provisioned",
		slog.String("identifier", identifier),
		slog.String("actor", actor),
		slog.String("delivery", string(result.Delivery.Status)),
	)
	return result, errors.Join(errs...)
}

func (s *Service) deliver(ctx context.Context, actor string, identity Identity, credential string) DeliveryOutcome {
	if s.notifier == nil {
		return DeliveryOutcome{Status: DeliveryFailed, Reason: "notifier not configured"}
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.SendProvisioningNotice(nctx, identity, credential); err != nil {
		s.logger.Warn("provisioning notice failed",
			slog.String("identifier", identity.Identifier),
			slog.String("actor", actor),
			slog.Any("error", fmt.Errorf("%w: %w", shared.ErrDeliveryFailed, err)),
		)
		return DeliveryOutcome{Status: DeliveryFailed, Reason: err.Error()}
	}
	return DeliveryOutcome{Status: Delivered}
}

func (s *Service) recordDelivery(ctx context.Context, actor, identifier string, outcome DeliveryOutcome) error {
	entry := audit.Entry{
		Actor:   actor,
		Action:  audit.ActionProvisioningNotice,
		Target:  identifier,
		Outcome: audit.OutcomeSuccess,
		Meta:    map[string]string{"status": string(outcome.Status)},
	}
	if outcome.Status != Delivered {
		entry.Outcome = audit.OutcomeFailure
		entry.Reason = outcome.Reason
	}
	return s.audit.Append(ctx, entry)
}

// Get returns the identity for identifier.
func (s *Service) Get(ctx context.Context, identifier string) (Identity, error) {
	identity, err := s.repo.FindByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// RotateCredential replaces the credential after verifying the current one and clears the
// rotation requirement.
func (s *Service) RotateCredential(ctx context.Context, identifier, current, next string) error {
	identity, err := s.repo.FindByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrInvalidCredentials
		}
		return fmt.Errorf("users: find identity: %w", err)
	}
	if !identity.Active {
		return shared.ErrInvalidCredentials
	}
	if err := security.CompareCredential(identity.CredentialHash, current); err != nil {
		return shared.ErrInvalidCredentials
	}
	if next == current {
		return shared.NewFormatError("credential", "new credential must differ from the current one")
	}
	if err := s.policy.Validate(next); err != nil {
		return shared.NewFormatError("credential", err.Error())
	}
	hash, err := security.HashCredential(next)
	if err != nil {
		return fmt.Errorf("users: hash credential: %w", err)
	}
	now := s.now().UTC()
	if err := s.repo.UpdateCredential(ctx, identity.Identifier, hash, false, now); err != nil {
		return fmt.Errorf("users: update credential: %w", err)
	}
	return s.audit.Append(ctx, audit.Entry{
		Actor:   identity.Identifier,
		Action:  audit.ActionCredentialRotated,
		Target:  identity.Identifier,
		Outcome: audit.OutcomeSuccess,
		At:      now,
	})
}

// Deactivate soft-deactivates an identity. Deactivating an inactive identity is a no-op.
func (s *Service) Deactivate(ctx context.Context, actor, identifier, reason string) error {
	identifier = strings.TrimSpace(identifier)
	now := s.now().UTC()
	changed, err := s.repo.SetActive(ctx, identifier, false, now)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return err
		}
		return fmt.Errorf("users: deactivate: %w", err)
	}
	if !changed {
		return nil
	}
	return s.audit.Append(ctx, audit.Entry{
		Actor:   actor,
		Action:  audit.ActionAccountDeactivated,
		Target:  identifier,
		Outcome: audit.OutcomeSuccess,
		Reason:  reason,
		At:      now,
	})
}

func normaliseProfile(p Profile) Profile {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.DisplayName == "" {
		p.DisplayName = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	return p
}

func validateProfile(p Profile) error {
	if err := validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return shared.NewFormatError(strings.ToLower(fe.Field()), "failed "+fe.Tag()+" check")
		}
		return shared.NewFormatError("profile", err.Error())
	}
	if err := ValidateEmail(p.Email); err != nil {
		return err
	}
	if err := ValidatePhone(p.Phone); err != nil {
		return err
	}
	for _, role := range p.InitialRoles {
		if !role.Valid() {
			return fmt.Errorf("%w: %q", rbac.ErrUnknownRole, role)
		}
	}
	return nil
}
