package rbac

// DefaultSeeds returns the roles created when the store is empty. Staff
// historically gets every permission except visitor management; that
// default is data here, not logic, so deployments can change it.
func DefaultSeeds() []RoleSeed {
	staff := make([]string, 0, len(Registry()))
	for _, perm := range Registry() {
		if perm == PermVisitors {
			continue
		}
		staff = append(staff, perm)
	}
	return []RoleSeed{
		// Admin's explicit set stays empty: it holds every permission
		// implicitly via HasPermission.
		{Name: AdminRoleName},
		{Name: "Staff", Permissions: staff},
	}
}
