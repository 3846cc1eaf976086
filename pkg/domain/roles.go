package domain

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// ResolveRole is a pure function of the wallet and the config: exact match on
// the owner address wins, then the admin list, else MEMBER.
func ResolveRole(wallet string, cfg VaultConfig) Role {
	if wallet == "" {
		return RoleMember
	}
	if wallet == cfg.OwnerAddress {
		return RoleOwner
	}
	for _, a := range cfg.Roles.Admins {
		if wallet == a {
			return RoleAdmin
		}
	}
	return RoleMember
}

func (r Role) AtLeastAdmin() bool { return r == RoleOwner || r == RoleAdmin }
