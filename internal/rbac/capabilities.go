package rbac

import (
	"fmt"
	"strings"
)

// Capability is an atomic permission unit checked by the Checker.
type Capability string

// Account and access-control capabilities.
const (
	CapAccountsProvision  Capability = "accounts.provision"
	CapAccountsView       Capability = "accounts.view"
	CapAccountsDeactivate Capability = "accounts.deactivate"
	CapRolesView          Capability = "roles.view"
	CapRolesGrant         Capability = "roles.grant"
	CapRolesRevoke        Capability = "roles.revoke"
	CapAuditView          Capability = "audit.view"
)

// HR record capabilities consumed by the request-handling layer.
const (
	CapEmployeesView     Capability = "employees.view"
	CapEmployeesEdit     Capability = "employees.edit"
	CapLeaveRequest      Capability = "leave.request"
	CapLeaveApprove      Capability = "leave.approve"
	CapAttendanceRecord  Capability = "attendance.record"
	CapAttendanceView    Capability = "attendance.view"
	CapPerformanceReview Capability = "performance.review"
	CapPerformanceView   Capability = "performance.view"
	CapProfileViewOwn    Capability = "profile.view_own"
)

// AllCapabilities lists every known capability token.
func AllCapabilities() []Capability {
	return []Capability{
		CapAccountsProvision,
		CapAccountsView,
		CapAccountsDeactivate,
		CapRolesView,
		CapRolesGrant,
		CapRolesRevoke,
		CapAuditView,
		CapEmployeesView,
		CapEmployeesEdit,
		CapLeaveRequest,
		CapLeaveApprove,
		CapAttendanceRecord,
		CapAttendanceView,
		CapPerformanceReview,
		CapPerformanceView,
		CapProfileViewOwn,
	}
}

var knownCapabilities = func() map[Capability]struct{} {
	set := make(map[Capability]struct{})
	for _, c := range AllCapabilities() {
		set[c] = struct{}{}
	}
	return set
}()

// Valid reports whether c belongs to the enumeration.
func (c Capability) Valid() bool {
	_, ok := knownCapabilities[c]
	return ok
}

// ParseCapability normalises and validates a capability token.
func ParseCapability(raw string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, raw)
	}
	return c, nil
}
