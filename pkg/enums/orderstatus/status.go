package orderstatus

import (
	"strings"
)

type Status struct {
	Name string
}

func (s Status) Code() string {
	return s.Name
}

func (s Status) Label() string {
	parts := strings.Split(s.Name, "_")
	for i := range parts {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, " ")
}

// Editable reports whether items may still be added or removed.
func (s Status) Editable() bool {
	return s.Name == Statuses.Open.Name
}

type Enum struct {
	Open           Status
	PendingPayment Status
	Completed      Status
}

var Statuses = Enum{
	Open:           Status{Name: "open"},
	PendingPayment: Status{Name: "pending_payment"},
	Completed:      Status{Name: "completed"},
}

var All = []Status{
	Statuses.Open,
	Statuses.PendingPayment,
	Statuses.Completed,
}

// ByName returns the status for a given name, or nil if not found
func ByName(name string) *Status {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}
