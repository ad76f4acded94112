package rbac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	require.Equal(t, AllRoles(), catalog.Roles())
	require.ElementsMatch(t, AllCapabilities(), catalog.Capabilities(RoleSuperAdmin))
	require.True(t, catalog.Has(RoleEmployee, CapLeaveRequest))
	require.False(t, catalog.Has(RoleEmployee, CapLeaveApprove))

	caps := catalog.Capabilities(RoleEmployee)
	caps[0] = CapAuditView
	require.False(t, catalog.Has(RoleEmployee, CapAuditView))
}

const catalogYAML = `
roles:
  super-admin: [accounts.provision, accounts.view, roles.grant, roles.revoke, roles.view, audit.view]
  hr-manager: [accounts.provision, accounts.view]
  department-head: [leave.approve, leave.approve]
  employee: [leave.request]
`

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	require.Equal(t, []Capability{CapLeaveApprove}, catalog.Capabilities(RoleDepartmentHead))
	require.True(t, catalog.Has(RoleHRManager, CapAccountsProvision))
	require.False(t, catalog.Has(RoleHRManager, CapAuditView))
}

func TestParseCatalogRejectsUnknownEntries(t *testing.T) {
	_, err := ParseCatalog([]byte("roles:\n  janitor: [leave.request]\n"))
	require.ErrorIs(t, err, ErrUnknownRole)

	_, err = ParseCatalog([]byte("roles:\n  employee: [payroll.run]\n"))
	require.ErrorIs(t, err, ErrUnknownCapability)

	_, err = ParseCatalog([]byte("roles:\n  employee: [leave.request]\n"))
	require.ErrorContains(t, err, "missing role")

	_, err = ParseCatalog([]byte("roles: [oops"))
	require.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))
	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	require.True(t, catalog.Has(RoleEmployee, CapLeaveRequest))

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
