package models

import "time"

type UserRole string

const (
	UserRoleAdmin         UserRole = "admin"
	UserRolePlatformAdmin UserRole = "platform_admin"
	UserRoleOwner         UserRole = "owner"
	UserRoleManager       UserRole = "manager"
	UserRoleStaff         UserRole = "staff"
)

// PermissionAll is the sentinel permission granting every capability.
const PermissionAll = "all"

type User struct {
	ID           string
	RestaurantID string
	Name         string
	Email        *string
	PasswordHash []byte
	Role         UserRole
	Permissions  []string
	Active       bool
	AvatarURL    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == PermissionAll || p == permission {
			return true
		}
	}
	return false
}

// CanImpersonate reports whether the user may switch into another
// account. Only administrative roles qualify; this is checked inside
// the credential flows, not just at the routing layer.
func (u User) CanImpersonate() bool {
	return u.Role == UserRoleAdmin || u.Role == UserRolePlatformAdmin
}
