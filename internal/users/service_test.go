package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-hr/internal/audit"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/security"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

func johnDoe() Profile {
	return Profile{FirstName: "John", LastName: "Doe", Email: "john.doe@example.com", Phone: "+91 9876543210"}
}

func newTestService(repo *memRepo, auditor *recordingAuditor, notifier Notifier, granter RoleGranter) *Service {
	return NewService(repo, auditor, granter, notifier, nil, ServiceConfig{NotifyTimeout: time.Second})
}

func TestProvisionCreatesIdentity(t *testing.T) {
	repo := newMemRepo()
	auditor := &recordingAuditor{}
	notifier := &stubNotifier{}
	svc := newTestService(repo, auditor, notifier, nil)

	result, err := svc.Provision(context.Background(), "hr.admin", johnDoe())
	require.NoError(t, err)
	require.Equal(t, "john.doe", result.Identity.Identifier)
	require.Equal(t, "John Doe", result.Identity.DisplayName)
	require.GreaterOrEqual(t, len(result.TemporaryCredential), 12)
	require.Equal(t, Delivered, result.Delivery.Status)

	stored, err := repo.FindByIdentifier(context.Background(), "john.doe")
	require.NoError(t, err)
	require.True(t, stored.Active)
	require.True(t, stored.RotationRequired)
	require.NotEqual(t, result.TemporaryCredential, stored.CredentialHash)
	require.NoError(t, security.CompareCredential(stored.CredentialHash, result.TemporaryCredential))

	created := auditor.byAction(audit.ActionAccountCreated)
	require.Len(t, created, 1)
	require.Equal(t, "hr.admin", created[0].Actor)
	require.Equal(t, "john.doe", created[0].Target)

	notices := auditor.byAction(audit.ActionProvisioningNotice)
	require.Len(t, notices, 1)
	require.Equal(t, audit.OutcomeSuccess, notices[0].Outcome)
	require.Equal(t, 1, notifier.calls)
	require.Equal(t, result.TemporaryCredential, notifier.credential)
	for _, e := range auditor.entries {
		for _, v := range e.Meta {
			require.NotContains(t, v, result.TemporaryCredential)
		}
		require.NotContains(t, e.Reason, result.TemporaryCredential)
	}
}

func TestProvisionSecondSameNameGetsSuffix(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &recordingAuditor{}, &stubNotifier{}, nil)

	first, err := svc.Provision(context.Background(), "hr.admin", johnDoe())
	require.NoError(t, err)
	second, err := svc.Provision(context.Background(), "hr.admin", johnDoe())
	require.NoError(t, err)
	require.Equal(t, "john.doe", first.Identity.Identifier)
	require.Equal(t, "john.doe2", second.Identity.Identifier)
	require.NotEqual(t, first.Identity.ID, second.Identity.ID)
}

func TestProvisionDeliveryFailureKeepsAccount(t *testing.T) {
	repo := newMemRepo()
	auditor := &recordingAuditor{}
	svc := newTestService(repo, auditor, &stubNotifier{err: errors.New("smtp: 421 service unavailable")}, nil)

	result, err := svc.Provision(context.Background(), "hr.admin", johnDoe())
	require.NoError(t, err)
	require.Equal(t, DeliveryFailed, result.Delivery.Status)
	require.Contains(t, result.Delivery.Reason, "421")
	require.NotEmpty(t, result.TemporaryCredential)

	_, err = repo.FindByIdentifier(context.Background(), "john.doe")
	require.NoError(t, err)

	notices := auditor.byAction(audit.ActionProvisioningNotice)
	require.Len(t, notices, 1)
	require.Equal(t, audit.OutcomeFailure, notices[0].Outcome)
	require.Equal(t, string(DeliveryFailed), notices[0].Meta["status"])
}

func TestProvisionNotifierOutlivesCallerCancellation(t *testing.T) {
	notifier := &stubNotifier{}
	svc := newTestService(newMemRepo(), &recordingAuditor{}, notifier, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Provision(ctx, "hr.admin", johnDoe())
	require.NoError(t, err)
	require.Equal(t, 1, notifier.calls)
	require.NoError(t, notifier.ctxErr)
	require.True(t, notifier.deadline)
}

func TestProvisionWithoutNotifier(t *testing.T) {
	svc := newTestService(newMemRepo(), &recordingAuditor{}, nil, nil)
	result, err := svc.Provision(context.Background(), "hr.admin", johnDoe())
	require.NoError(t, err)
	require.Equal(t, DeliveryFailed, result.Delivery.Status)
}

func TestProvisionRejectsInvalidContact(t *testing.T) {
	repo := newMemRepo()
	auditor := &recordingAuditor{}
	svc := newTestService(repo, auditor, &stubNotifier{}, nil)

	profile := johnDoe()
	profile.Phone = "+918369925249"
	_, err := svc.Provision(context.Background(), "hr.admin", profile)
	require.ErrorIs(t, err, shared.ErrInvalidFormat)

	profile = johnDoe()
	profile.Email = "invalid.email"
	_, err = svc.Provision(context.Background(), "hr.admin", profile)
	require.ErrorIs(t, err, shared.ErrInvalidFormat)

	profile = johnDoe()
	profile.Email = ""
	_, err = svc.Provision(context.Background(), "hr.admin", profile)
	require.ErrorIs(t, err, shared.ErrInvalidFormat)

	require.Zero(t, repo.count())
	require.Empty(t, auditor.entries)
}

func TestProvisionRejectsUnknownInitialRole(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &recordingAuditor{}, &stubNotifier{}, &stubGranter{})
	profile := johnDoe()
	profile.InitialRoles = []rbac.RoleName{"janitor"}

	_, err := svc.Provision(context.Background(), "hr.admin", profile)
	require.ErrorIs(t, err, rbac.ErrUnknownRole)
	require.Zero(t, repo.count())
}

func TestProvisionGrantsInitialRoles(t *testing.T) {
	granter := &stubGranter{}
	svc := newTestService(newMemRepo(), &recordingAuditor{}, &stubNotifier{}, granter)
	profile := johnDoe()
	profile.InitialRoles = []rbac.RoleName{rbac.RoleEmployee, rbac.RoleDepartmentHead}

	result, err := svc.Provision(context.Background(), "hr.admin", profile)
	require.NoError(t, err)
	require.Equal(t, []rbac.RoleName{rbac.RoleEmployee, rbac.RoleDepartmentHead}, granter.granted)
	require.Equal(t, []string{"grant-employee", "grant-department-head"}, result.GrantIDs)
}

func TestProvisionReportsFollowUpFailures(t *testing.T) {
	repo := newMemRepo()
	profile := johnDoe()
	profile.InitialRoles = []rbac.RoleName{rbac.RoleSuperAdmin}
	svc := newTestService(repo, &recordingAuditor{}, &stubNotifier{}, &stubGranter{})

	result, err := svc.Provision(context.Background(), "hr.admin", profile)
	require.Error(t, err)
	require.Contains(t, err.Error(), "grant refused")
	require.Equal(t, "john.doe", result.Identity.Identifier)
	require.Equal(t, 1, repo.count())
}

func TestProvisionSurfacesAuditFailure(t *testing.T) {
	repo := newMemRepo()
	auditor := &recordingAuditor{err: shared.ErrAuditWriteFailed}
	svc := newTestService(repo, auditor, &stubNotifier{}, nil)

	result, err := svc.Provision(context.Background(), "hr.admin", johnDoe())
	require.ErrorIs(t, err, shared.ErrAuditWriteFailed)
	require.Equal(t, "john.doe", result.Identity.Identifier)
	require.Equal(t, Delivered, result.Delivery.Status)
	require.Equal(t, 1, repo.count())
}

func TestRotateCredential(t *testing.T) {
	repo := newMemRepo()
	auditor := &recordingAuditor{}
	svc := newTestService(repo, auditor, &stubNotifier{}, nil)
	result, err := svc.Provision(context.Background(), "hr.admin", johnDoe())
	require.NoError(t, err)
	temp := result.TemporaryCredential

	err = svc.RotateCredential(context.Background(), "john.doe", "not-the-credential", "Tr1cky-Lantern-Orbit")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	err = svc.RotateCredential(context.Background(), "john.doe", temp, "short")
	require.ErrorIs(t, err, shared.ErrInvalidFormat)

	err = svc.RotateCredential(context.Background(), "john.doe", temp, temp)
	require.ErrorIs(t, err, shared.ErrInvalidFormat)

	next := "Tr1cky-Lantern-Orbit"
	require.NoError(t, svc.RotateCredential(context.Background(), "john.doe", temp, next))

	stored, err := repo.FindByIdentifier(context.Background(), "john.doe")
	require.NoError(t, err)
	require.False(t, stored.RotationRequired)
	require.NoError(t, security.CompareCredential(stored.CredentialHash, next))

	rotated := auditor.byAction(audit.ActionCredentialRotated)
	require.Len(t, rotated, 1)
	require.Equal(t, "john.doe", rotated[0].Actor)

	err = svc.RotateCredential(context.Background(), "nobody.here", temp, next)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestDeactivate(t *testing.T) {
	repo := newMemRepo()
	auditor := &recordingAuditor{}
	svc := newTestService(repo, auditor, &stubNotifier{}, nil)
	result, err := svc.Provision(context.Background(), "hr.admin", johnDoe())
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), "hr.admin", "john.doe", "left company"))
	require.NoError(t, svc.Deactivate(context.Background(), "hr.admin", "john.doe", "left company"))

	entries := auditor.byAction(audit.ActionAccountDeactivated)
	require.Len(t, entries, 1)
	require.Equal(t, "left company", entries[0].Reason)

	identity, err := svc.Get(context.Background(), "john.doe")
	require.NoError(t, err)
	require.False(t, identity.Active)

	err = svc.RotateCredential(context.Background(), "john.doe", result.TemporaryCredential, "Tr1cky-Lantern-Orbit")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.ErrorIs(t, svc.Deactivate(context.Background(), "hr.admin", "ghost.user", ""), shared.ErrNotFound)
}
