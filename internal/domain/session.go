package domain

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// Identity is what the identity provider vouches for: a user id and a role.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}
