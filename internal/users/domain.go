package users

// Staff is a user account as shown on the management pages.
type Staff struct {
	ID             int64
	Username       string
	Name           string
	RoleID         *int64
	RoleName       string
	DepartmentID   *int64
	DepartmentName string
}

// StaffInput carries the editable fields of an account.
type StaffInput struct {
	Username     string
	Name         string
	RoleID       *int64
	DepartmentID *int64
}
