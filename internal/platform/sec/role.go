// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Can administer a group of members
	RoleGroupAdmin UserRole = "group_admin"

	// Default role for every account created through OTP or signup
	RoleUser UserRole = "user"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	return r.level() > 0
}

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {

	// Linear scale leaves room for intermediate roles
	switch r {
	case RoleGroupAdmin:
		return 20
	case RoleUser:
		return 10
	default:
		return 0
	}
}
