package role

import "strings"

type Role struct {
	Name string
}

func (r Role) Code() string {
	return r.Name
}

func (r Role) Label() string {
	if len(r.Name) == 0 {
		return ""
	}
	return strings.ToUpper(r.Name[:1]) + r.Name[1:]
}

// Elevated reports whether the role may see archived data.
func (r Role) Elevated() bool {
	return r == Roles.Manager || r == Roles.Admin
}

type Enum struct {
	Waiter  Role
	Cashier Role
	Kitchen Role
	Manager Role
	Admin   Role
}

var Roles = Enum{
	Waiter:  Role{Name: "waiter"},
	Cashier: Role{Name: "cashier"},
	Kitchen: Role{Name: "kitchen"},
	Manager: Role{Name: "manager"},
	Admin:   Role{Name: "admin"},
}

var All = []Role{
	Roles.Waiter,
	Roles.Cashier,
	Roles.Kitchen,
	Roles.Manager,
	Roles.Admin,
}

// ByName returns the role for a given name, or nil if not found
func ByName(name string) *Role {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, r := range All {
		if r.Name == name {
			return &r
		}
	}
	return nil
}

// Supervisors lists the roles allowed to read gated collections.
var Supervisors = []Role{Roles.Manager, Roles.Admin}
