// Package rbac derives effective permissions from a user's roles.
// Permissions are "resource:action" strings; a role never grants anything
// directly to a user: users hold roles, roles map to permission sets.
package rbac

import "strings"

// Role is one of the platform's enumerated roles.
type Role string

// Administrative roles. SuperAdmin is the only role allowed to start
// impersonation.
const (
	RoleSuperAdmin           Role = "SUPER_ADMIN"
	RoleExecutiveDirector    Role = "EXECUTIVE_DIRECTOR"
	RoleProgramManager       Role = "PROGRAM_MANAGER"
	RoleContentManager       Role = "CONTENT_MANAGER"
	RoleFinanceManager       Role = "FINANCE_MANAGER"
	RoleVolunteerCoordinator Role = "VOLUNTEER_COORDINATOR"
	RoleBoardMember          Role = "BOARD_MEMBER"
	RoleDataAnalyst          Role = "DATA_ANALYST"
)

// Member-facing roles. RoleMember is the registration default.
const (
	RoleVolunteer            Role = "VOLUNTEER"
	RoleMember               Role = "MEMBER"
	RoleAlumni               Role = "ALUMNI"
	RoleCorporatePartner     Role = "CORPORATE_PARTNER"
	RoleMajorDonor           Role = "MAJOR_DONOR"
	RoleInstitutionalPartner Role = "INSTITUTIONAL_PARTNER"
	RoleMentor               Role = "MENTOR"
)

var adminRoles = map[Role]struct{}{
	RoleSuperAdmin:           {},
	RoleExecutiveDirector:    {},
	RoleProgramManager:       {},
	RoleContentManager:       {},
	RoleFinanceManager:       {},
	RoleVolunteerCoordinator: {},
	RoleBoardMember:          {},
	RoleDataAnalyst:          {},
}

// IsAdmin reports whether r is an administrative role.
func IsAdmin(r Role) bool {
	_, ok := adminRoles[r]
	return ok
}

// HasRole reports whether roles contains want.
func HasRole(roles []Role, want Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// PermAllManage is the sentinel permission that implies every permission
// in the catalog.
const PermAllManage = "all:manage"

// PermissionSet is an accumulated grant set.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from perms.
func NewPermissionSet(perms ...string) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts perm.
func (s PermissionSet) Add(perm string) { s[perm] = struct{}{} }

// Contains reports an exact membership check, without manage-wildcard
// expansion. Most callers want Has.
func (s PermissionSet) Contains(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Has reports whether the set grants required, either exactly or through
// the "<resource>:manage" wildcard on the required permission's resource.
func (s PermissionSet) Has(required string) bool {
	if s.Contains(required) {
		return true
	}
	resource, _, ok := strings.Cut(required, ":")
	if !ok {
		return false
	}
	return s.Contains(resource + ":manage")
}

// Slice returns the set's members. Order is unspecified.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}
