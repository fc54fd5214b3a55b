package runboard

// UserRole is the user's role
type UserRole = string

const (
	// RoleRegistered is a freshly signed-up account awaiting confirmation
	RoleRegistered UserRole = "registered"
	// RoleConfirmed is an account that redeemed its confirmation token
	RoleConfirmed UserRole = "confirmed"
	// RoleAdministrator curates leaderboards and categories
	RoleAdministrator UserRole = "administrator"
	// RoleBanned is locked out of every gated transition
	RoleBanned UserRole = "banned"
)

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleRegistered, RoleConfirmed, RoleAdministrator, RoleBanned:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}

// CanRequestConfirmation reports whether a confirmation token may be issued
// for an account with this role. Only unconfirmed registrations qualify.
func CanRequestConfirmation(r UserRole) bool {
	return r == RoleRegistered
}

// CanRequestRecovery reports whether a recovery token may be issued for an
// account with this role. Unconfirmed and banned accounts are excluded.
func CanRequestRecovery(r UserRole) bool {
	switch r {
	case RoleConfirmed, RoleAdministrator:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level. Roles form
// a strict order for token gating, not a general permission hierarchy.
func IsAtLeast(r, minRole UserRole) bool {
	roleOrder := map[UserRole]int{
		RoleBanned:        -1,
		RoleRegistered:    0,
		RoleConfirmed:     1,
		RoleAdministrator: 2,
	}

	currentLevel, exists := roleOrder[r]
	if !exists {
		return false
	}

	minLevel, exists := roleOrder[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns the predefined roles in gate order
func AllRoles() []UserRole {
	return []UserRole{
		RoleBanned,
		RoleRegistered,
		RoleConfirmed,
		RoleAdministrator,
	}
}
