package models

import "strings"

// Role is an ordered staff role. The numeric order is the authority order:
// a role can act on behalf of any role below it.
type Role int

const (
	RoleUnknown Role = iota
	RoleStaff
	RoleManager
	RoleAdmin
	RoleOwner
)

var roleNames = map[Role]string{
	RoleStaff:   "staff",
	RoleManager: "manager",
	RoleAdmin:   "admin",
	RoleOwner:   "owner",
}

func ParseRole(value string) Role {
	value = strings.ToLower(strings.TrimSpace(value))
	for role, name := range roleNames {
		if name == value {
			return role
		}
	}
	return RoleUnknown
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// AtLeast reports whether r carries at least the authority of min.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// CanSchedule reports whether r may create, update, or delete shifts for
// other staff members.
func (r Role) CanSchedule() bool {
	return r.AtLeast(RoleManager)
}

func (r Role) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

func (r *Role) UnmarshalJSON(data []byte) error {
	value := string(data)
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}
	*r = ParseRole(value)
	return nil
}
