package models

// Role is the authorization role carried in access tokens. Roles gate API
// access; AccountType describes how balances behave.
type Role string

const (
	RoleUser    Role = "user"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)
