package services

import (
	"fmt"
	"strings"

	"github.com/RichardLi88/Waypoint/models"
)

// Identity is the authenticated caller as carried by the access token.
type Identity struct {
	Username string
	Role     models.UserRole
}

type Action string

const (
	ActionRead        Action = "read"
	ActionManageUsers Action = "users:manage"
	ActionWriteTasks  Action = "tasks:write"
	ActionReadSprint  Action = "sprints:read-tasks"
	ActionWriteSprint Action = "sprints:write"
)

var grants = map[models.UserRole]map[Action]bool{
	models.RoleAdmin: {
		ActionRead:        true,
		ActionManageUsers: true,
	},
	models.RoleDeveloper: {
		ActionRead:        true,
		ActionWriteTasks:  true,
		ActionReadSprint:  true,
		ActionWriteSprint: true,
	},
}

func NormalizeRole(role string) models.UserRole {
	return models.UserRole(strings.ToLower(strings.TrimSpace(role)))
}

// Can reports whether role may perform action. Roles do not inherit from
// each other: an admin cannot edit tasks and a developer cannot manage users.
func Can(role models.UserRole, action Action) bool {
	return grants[role][action]
}

// Authorize must run before any store access of a mutation.
func Authorize(id Identity, action Action) error {
	if id.Username == "" || !Can(id.Role, action) {
		return fmt.Errorf("%w: %q may not %s", ErrUnauthorized, id.Role, action)
	}
	return nil
}
