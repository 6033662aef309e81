package models

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Identity is the authenticated caller of a workflow operation.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func Admin(userID string) Identity {
	return Identity{UserID: userID, Role: RoleAdmin}
}

func Customer(userID string) Identity {
	return Identity{UserID: userID, Role: RoleCustomer}
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Valid reports whether the identity carries a user id and a known role.
func (i Identity) Valid() bool {
	return i.UserID != "" && (i.Role == RoleAdmin || i.Role == RoleCustomer)
}
