package access

import (
	"sort"

	"golang.org/x/exp/slices"

	"portalgate/internal/auth"
)

// Action names a UI operation whose controls are shown or hidden by role.
// These checks drive rendering only; the gate and the backend enforce access.
type Action string

const (
	CreateProject Action = "createProject"
	EditProject   Action = "editProject"
	DeleteProject Action = "deleteProject"
	ViewProject   Action = "viewProject"

	CreateVulnerability Action = "createVulnerability"
	EditVulnerability   Action = "editVulnerability"
	DeleteVulnerability Action = "deleteVulnerability"
	ViewVulnerability   Action = "viewVulnerability"

	ManageUsers       Action = "manageUsers"
	AssignPentesters  Action = "assignPentesters"
	ViewReports       Action = "viewReports"
	AccessAdminPanel  Action = "accessAdminPanel"
	ManagePentests    Action = "managePentests"
	ViewClientData    Action = "viewClientData"
	ManageTimesheets  Action = "manageTimesheets"
	ViewCalendar      Action = "viewCalendar"
	AccessPentestTool Action = "accessPentestTools"

	CreatePentestReport Action = "createPentestReport"
	EditPentestReport   Action = "editPentestReport"
	DeletePentestReport Action = "deletePentestReport"
	ViewPentestReport   Action = "viewPentestReport"

	ManagePentestTemplates    Action = "managePentestTemplates"
	ViewPentestMethodology    Action = "viewPentestMethodology"
	ManagePentestSpecialities Action = "managePentestSpecialities"

	ManagePentesterProfile      Action = "managePentesterProfile"
	UpdatePentesterSpecialities Action = "updatePentesterSpecialities"
	ViewPentesterAssignments    Action = "viewPentesterAssignments"
)

var (
	staff        = []auth.Role{auth.RoleSuperAdmin, auth.RoleAdmin}
	staffClient  = []auth.Role{auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleClient}
	staffTesters = []auth.Role{auth.RoleSuperAdmin, auth.RoleAdmin, auth.RolePentester}
	allButUser   = []auth.Role{auth.RoleSuperAdmin, auth.RoleAdmin, auth.RolePentester, auth.RoleClient}
)

var actionRoles = map[Action][]auth.Role{
	CreateProject: staffClient,
	EditProject:   staffClient,
	DeleteProject: staff,
	ViewProject:   allButUser,

	CreateVulnerability: staffTesters,
	EditVulnerability:   staffTesters,
	DeleteVulnerability: staff,
	ViewVulnerability:   allButUser,

	ManageUsers:       staff,
	AssignPentesters:  staff,
	ViewReports:       allButUser,
	AccessAdminPanel:  staff,
	ManagePentests:    staffTesters,
	ViewClientData:    staffClient,
	ManageTimesheets:  staffTesters,
	ViewCalendar:      staffTesters,
	AccessPentestTool: staffTesters,

	CreatePentestReport: staffTesters,
	EditPentestReport:   staffTesters,
	DeletePentestReport: staff,
	ViewPentestReport:   allButUser,

	ManagePentestTemplates:    staffTesters,
	ViewPentestMethodology:    staffTesters,
	ManagePentestSpecialities: staffTesters,

	ManagePentesterProfile:      staffTesters,
	UpdatePentesterSpecialities: staffTesters,
	ViewPentesterAssignments:    staffTesters,
}

var roleRank = map[auth.Role]int{
	auth.RoleClient:     0,
	auth.RoleUser:       0,
	auth.RolePentester:  1,
	auth.RoleAdmin:      2,
	auth.RoleSuperAdmin: 3,
}

// Actions returns every known action in name order
func Actions() []Action {
	actions := make([]Action, 0, len(actionRoles))
	for action := range actionRoles {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// Can reports whether role may perform action. Unknown actions are denied
// for every role.
func Can(role auth.Role, action Action) bool {
	roles, ok := actionRoles[action]
	if !ok {
		return false
	}
	return slices.Contains(roles, role)
}

// HasPermission reports whether role is among allowed. The super admin always is.
func HasPermission(role auth.Role, allowed ...auth.Role) bool {
	if role == "" {
		return false
	}
	if role == auth.RoleSuperAdmin {
		return true
	}
	return slices.Contains(allowed, role)
}

// HasRole reports whether role is one of roles, without the super admin bypass
func HasRole(role auth.Role, roles ...auth.Role) bool {
	return role != "" && slices.Contains(roles, role)
}

// HasMinimumRole reports whether role ranks at least as high as min.
// Unknown roles never satisfy the check.
func HasMinimumRole(role, min auth.Role) bool {
	have, ok := roleRank[role]
	if !ok {
		return false
	}
	want, ok := roleRank[min]
	if !ok {
		return false
	}
	return have >= want
}

func IsSuperAdmin(role auth.Role) bool { return role == auth.RoleSuperAdmin }

// IsAdmin is true for admins and the super admin
func IsAdmin(role auth.Role) bool {
	return role == auth.RoleAdmin || role == auth.RoleSuperAdmin
}

func IsPentester(role auth.Role) bool { return role == auth.RolePentester }

func IsClient(role auth.Role) bool { return role == auth.RoleClient }

// Capabilities evaluates every action for role
func Capabilities(role auth.Role) map[Action]bool {
	caps := make(map[Action]bool, len(actionRoles))
	for action := range actionRoles {
		caps[action] = Can(role, action)
	}
	return caps
}
