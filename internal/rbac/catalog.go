package rbac

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Catalog maps each role to the ordered capability set it grants. It is built once at
// start and never mutated afterwards.
type Catalog struct {
	roles map[RoleName][]Capability
}

// DefaultCatalog returns the built-in role configuration.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(map[RoleName][]Capability{
		RoleSuperAdmin: AllCapabilities(),
		RoleHRManager: {
			CapAccountsProvision,
			CapAccountsView,
			CapAccountsDeactivate,
			CapRolesView,
			CapRolesGrant,
			CapRolesRevoke,
			CapAuditView,
			CapEmployeesView,
			CapEmployeesEdit,
			CapLeaveApprove,
			CapAttendanceView,
			CapPerformanceView,
			CapProfileViewOwn,
		},
		RoleDepartmentHead: {
			CapEmployeesView,
			CapLeaveRequest,
			CapLeaveApprove,
			CapAttendanceRecord,
			CapAttendanceView,
			CapPerformanceReview,
			CapPerformanceView,
			CapProfileViewOwn,
		},
		RoleEmployee: {
			CapLeaveRequest,
			CapAttendanceRecord,
			CapProfileViewOwn,
		},
	})
	if err != nil {
		panic(err)
	}
	return catalog
}

// NewCatalog validates roles against the closed enumerations and copies them.
// Duplicate capabilities are dropped keeping first occurrence order.
func NewCatalog(roles map[RoleName][]Capability) (*Catalog, error) {
	copied := make(map[RoleName][]Capability, len(roles))
	for role, caps := range roles {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		ordered := make([]Capability, 0, len(caps))
		seen := make(map[Capability]struct{}, len(caps))
		for _, c := range caps {
			if !c.Valid() {
				return nil, fmt.Errorf("role %s: %w: %q", role, ErrUnknownCapability, c)
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			ordered = append(ordered, c)
		}
		copied[role] = ordered
	}
	for _, role := range AllRoles() {
		if _, ok := copied[role]; !ok {
			return nil, fmt.Errorf("rbac: catalog missing role %s", role)
		}
	}
	return &Catalog{roles: copied}, nil
}

type catalogFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadCatalog reads a YAML role catalog:
//
//	roles:
//	  employee: [leave.request, attendance.record]
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML catalog content.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("rbac: decode catalog: %w", err)
	}
	roles := make(map[RoleName][]Capability, len(file.Roles))
	for rawRole, rawCaps := range file.Roles {
		role, err := ParseRoleName(rawRole)
		if err != nil {
			return nil, err
		}
		caps := make([]Capability, 0, len(rawCaps))
		for _, raw := range rawCaps {
			c, err := ParseCapability(raw)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			caps = append(caps, c)
		}
		roles[role] = caps
	}
	return NewCatalog(roles)
}

// Capabilities returns a copy of the capability set granted by role.
func (c *Catalog) Capabilities(role RoleName) []Capability {
	if c == nil {
		return nil
	}
	return slices.Clone(c.roles[role])
}

// Has reports whether role grants capability.
func (c *Catalog) Has(role RoleName, capability Capability) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.roles[role], capability)
}

// Roles lists configured roles in enumeration order.
func (c *Catalog) Roles() []RoleName {
	if c == nil {
		return nil
	}
	out := make([]RoleName, 0, len(c.roles))
	for _, r := range AllRoles() {
		if _, ok := c.roles[r]; ok {
			out = append(out, r)
		}
	}
	return out
}
