// Package auth carries the caller's identity through a request and answers
// role questions from fixed tables.
package auth

import (
	"errors"

	"github.com/google/uuid"
)

var ErrForbidden = errors.New("forbidden")

type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleBursar       Role = "bursar"
	RoleTeacher      Role = "teacher"
	RoleHOD          Role = "hod"
	RoleClassTeacher Role = "class_teacher"
	RoleLibrarian    Role = "librarian"
	RoleChaplain     Role = "chaplain"
	RoleClassRep     Role = "class_rep"
	RoleStudent      Role = "student"
)

// Roles lists every role the portal knows about.
var Roles = []Role{
	RoleSuperAdmin, RoleBursar, RoleTeacher, RoleHOD, RoleClassTeacher,
	RoleLibrarian, RoleChaplain, RoleClassRep, RoleStudent,
}

func (r Role) Valid() bool {
	_, ok := dashboards[r]
	return ok
}

type Permission string

const (
	PermWriteMarks       Permission = "write_marks"
	PermDeleteMarks      Permission = "delete_marks"
	PermManageBoundaries Permission = "manage_boundaries"
	PermViewResults      Permission = "view_results"
)

var permissions = map[Permission]map[Role]bool{
	PermWriteMarks: {
		RoleSuperAdmin: true, RoleHOD: true, RoleTeacher: true, RoleClassTeacher: true,
	},
	PermDeleteMarks: {
		RoleSuperAdmin: true, RoleHOD: true, RoleClassTeacher: true,
	},
	PermManageBoundaries: {
		RoleSuperAdmin: true, RoleHOD: true,
	},
	PermViewResults: {
		RoleSuperAdmin: true, RoleBursar: true, RoleTeacher: true, RoleHOD: true,
		RoleClassTeacher: true, RoleLibrarian: true, RoleChaplain: true, RoleClassRep: true,
	},
}

// Can reports whether role holds perm.
func Can(role Role, perm Permission) bool {
	return permissions[perm][role]
}

var dashboards = map[Role]string{
	RoleSuperAdmin:   "/super-admin",
	RoleBursar:       "/bursar",
	RoleTeacher:      "/teacher",
	RoleHOD:          "/hod",
	RoleClassTeacher: "/class-teacher",
	RoleLibrarian:    "/librarian",
	RoleChaplain:     "/chaplain",
	RoleClassRep:     "/class-rep",
	RoleStudent:      "/student",
}

// DashboardRoute is the landing route for role. Unknown roles go to login.
func DashboardRoute(role Role) string {
	if route, ok := dashboards[role]; ok {
		return route
	}
	return "/login"
}

// Context is the authenticated caller of one request.
type Context struct {
	UserID         uuid.UUID  `json:"user_id"`
	Role           Role       `json:"role"`
	Email          string     `json:"email"`
	ImpersonatedID *uuid.UUID `json:"impersonated_id,omitempty"`
}

// EffectiveUserID is the user writes are attributed to.
func (c Context) EffectiveUserID() uuid.UUID {
	if c.ImpersonatedID != nil {
		return *c.ImpersonatedID
	}
	return c.UserID
}

func (c Context) Can(perm Permission) bool {
	return Can(c.Role, perm)
}

// Require returns ErrForbidden unless the caller holds perm.
func (c Context) Require(perm Permission) error {
	if !c.Can(perm) {
		return ErrForbidden
	}
	return nil
}

// Impersonate returns a copy acting as target. Only super admins may do so.
func (c Context) Impersonate(target uuid.UUID) (Context, error) {
	if c.Role != RoleSuperAdmin {
		return c, ErrForbidden
	}
	if target == c.UserID {
		return c, nil
	}
	c.ImpersonatedID = &target
	return c, nil
}
