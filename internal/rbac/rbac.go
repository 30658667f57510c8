package rbac

// Role is a workspace membership role. Roles are strictly ordered:
// member < admin < owner.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

var roleRank = map[Role]int{
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Meets reports whether r grants at least the privileges of min.
func (r Role) Meets(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

func Parse(raw string) (Role, bool) {
	role := Role(raw)
	return role, role.Valid()
}

// InvitableRoles are the roles an invitation may carry. Ownership is
// never granted through an invitation.
func InvitableRoles() []Role {
	return []Role{RoleMember, RoleAdmin}
}
