package model

import (
	"slices"
	"time"
)

// Role names.
const (
	RoleSuperAdmin  = "super_admin"
	RoleAdmin       = "admin"
	RoleModerator   = "moderator"
	RoleServerOwner = "server_owner"
	RoleUser        = "user"
)

// LowestRoleLevel is the level of an identity without any role.
const LowestRoleLevel = 5

// RoleLevels maps role names to privilege levels (1 is highest).
var RoleLevels = map[string]int{
	RoleSuperAdmin:  1,
	RoleAdmin:       2,
	RoleModerator:   3,
	RoleServerOwner: 4,
	RoleUser:        5,
}

// LevelForRole returns the level of a named role.
// Unknown roles are treated as the lowest level.
func LevelForRole(name string) int {
	if level, ok := RoleLevels[name]; ok {
		return level
	}
	return LowestRoleLevel
}

// Role is a named role with its privilege level.
type Role struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// User is the account record the identity resolver loads.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the read-only role/permission snapshot attached to one request.
type Identity struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	IsActive    bool     `json:"is_active"`
	Roles       []Role   `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasRole checks if the identity holds the named role.
func (i *Identity) HasRole(name string) bool {
	for _, r := range i.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasPermission checks for an exact permission match.
func (i *Identity) HasPermission(name string) bool {
	return slices.Contains(i.Permissions, name)
}

// BestLevel returns the most privileged (numerically lowest) role level.
func (i *Identity) BestLevel() int {
	best := LowestRoleLevel
	for _, r := range i.Roles {
		level := r.Level
		if level <= 0 {
			level = LevelForRole(r.Name)
		}
		if level < best {
			best = level
		}
	}
	return best
}

// RoleNames returns the role names in order.
func (i *Identity) RoleNames() []string {
	names := make([]string, len(i.Roles))
	for idx, r := range i.Roles {
		names[idx] = r.Name
	}
	return names
}

// IsAdmin reports whether the identity bypasses ownership checks.
func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleSuperAdmin) || i.HasRole(RoleAdmin)
}
