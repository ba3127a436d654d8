package models

// Role is the kind of party calling into the system.
type Role string

const (
	RoleUser       Role = "user"
	RoleSpecialist Role = "specialist"
)

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsSpecialist reports whether the actor is a specialist.
func (a Actor) IsSpecialist() bool {
	return a.Role == RoleSpecialist
}

// SenderType maps the actor's role to the message sender type.
func (a Actor) SenderType() SenderType {
	if a.Role == RoleSpecialist {
		return SenderSpecialist
	}
	return SenderUser
}
