package models

// Role constants. A user carries one or more roles; children are the
// default for new registrations.
const (
	RoleChild  = "ROLE_CHILD"
	RoleMentor = "ROLE_MENTOR"
	RoleAdmin  = "ROLE_ADMIN"
)

// AllRoles returns a slice of all defined roles.
// Used by the admin role-assignment endpoint for validation.
func AllRoles() []string {
	return []string{
		RoleChild,
		RoleMentor,
		RoleAdmin,
	}
}

// IsValidRole reports whether the given string is a known role.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// HasRole checks whether the user's role list contains the target role.
func HasRole(userRoles []string, targetRole string) bool {
	for _, role := range userRoles {
		if role == targetRole {
			return true
		}
	}
	return false
}
