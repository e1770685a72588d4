// Package visibility holds the role-gating predicates. Deliberately
// plain boolean functions so every screen and handler shares one
// definition of who sees what.
package visibility

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// CanViewProfile: admins see every profile, a user only their own.
func CanViewProfile(role Role, viewerID, ownerID string) bool {
	if role.IsAdmin() {
		return true
	}
	return viewerID != "" && viewerID == ownerID
}

// CanEditProfile: the beneficiary view is strictly read-only.
func CanEditProfile(role Role) bool {
	return role.IsAdmin()
}

// CanViewCategory: admins see all case-data categories; users only the
// ones flagged visible on their own record.
func CanViewCategory(role Role, viewerID, ownerID string, userVisible bool) bool {
	if role.IsAdmin() {
		return true
	}
	return userVisible && CanViewProfile(role, viewerID, ownerID)
}

// CanManageAdmins: only super-admins create or remove admin accounts.
func CanManageAdmins(role Role) bool {
	return role == RoleSuperAdmin
}

// CanBroadcast gates the SMS messaging screen.
func CanBroadcast(role Role) bool {
	return role.IsAdmin()
}
