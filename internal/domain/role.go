package domain

// Role represents a user role within the marketplace.
type Role string

const (
	RoleClient Role = "client"
	RoleMaster Role = "master"
	RoleAdmin  Role = "admin"
)

// DefaultRole is assigned to users provisioned through OAuth sign-in
// and to password registrations that do not specify a role.
const DefaultRole = RoleClient

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleMaster, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
