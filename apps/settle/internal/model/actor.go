package model

type Role string

const (
	RoleClient   Role = "client"
	RoleCreative Role = "creative"
	RoleStaff    Role = "staff"
)

// Actor is the authenticated caller of a core operation
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff
}
