package domain

// SubjectType identifies the kind of authenticated caller.
type SubjectType string

const (
	SubjectTypeStaff SubjectType = "STAFF"
)

// StaffRole scopes what a staff token may do.
type StaffRole string

const (
	StaffRoleDoor  StaffRole = "DOOR"
	StaffRoleAdmin StaffRole = "ADMIN"
)
