package auth

// User represents an authenticated user account. Username is the staff
// ID used to log in; RoleID is nil for locked-out users with no role.
type User struct {
	ID           int64
	Username     string
	Name         string
	PasswordHash string
	RoleID       *int64
	DepartmentID *int64
}
