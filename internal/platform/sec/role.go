// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Unrestricted system access
	RoleAdmin UserRole = "admin"

	// Runs one or more retail stores: staff, inventory, pricing
	RoleManager UserRole = "manager"

	// Store employee: order handling and customer support
	RoleStaff UserRole = "staff"

	// Default role for registered shoppers
	RoleCustomer UserRole = "customer"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {

	// Linear scale (10-40) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 40
	case RoleManager:
		return 30
	case RoleStaff:
		return 20
	case RoleCustomer:
		return 10
	default:
		return 0
	}
}
