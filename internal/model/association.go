package model

type AssociationStatus string

const (
	AssociationActive   AssociationStatus = "active"
	AssociationInactive AssociationStatus = "inactive"
)

type Account struct {
	ID   string `json:"_id" yaml:"id"`
	Name string `json:"nombre,omitempty" yaml:"name"`
}

type Division struct {
	ID   string `json:"_id" yaml:"id"`
	Name string `json:"nombre,omitempty" yaml:"name"`
}

type Student struct {
	ID       string `json:"_id" yaml:"id"`
	Name     string `json:"nombre,omitempty" yaml:"name"`
	LastName string `json:"apellido,omitempty" yaml:"last_name"`
}

// Association binds a user to one account and, optionally, a division and a
// student. The (account, division, student) triple is unique per user.
type Association struct {
	ID       string            `json:"_id" yaml:"id"`
	Account  Account           `json:"account" yaml:"account"`
	Division *Division         `json:"division" yaml:"division"`
	Student  *Student          `json:"student" yaml:"student"`
	Role     Role              `json:"role" yaml:"role"`
	Status   AssociationStatus `json:"status,omitempty" yaml:"status"`
}

// ActiveAssociation is the association currently in effect. The server may
// synthesize it independently of the association list, so it carries its own
// copy of the fields instead of pointing into that list.
type ActiveAssociation struct {
	ActiveAssociationID string    `json:"activeAssociationId"`
	Account             Account   `json:"account"`
	Division            *Division `json:"division"`
	Role                Role      `json:"role"`
	Student             *Student  `json:"student"`
}

// Institution is the explicitly active tenant triple plus its student.
type Institution struct {
	Account  Account   `json:"account"`
	Role     Role      `json:"role"`
	Division *Division `json:"division"`
	Student  *Student  `json:"student"`
}

func (a Association) DivisionID() string {
	if a.Division == nil {
		return ""
	}
	return a.Division.ID
}

func (a ActiveAssociation) DivisionID() string {
	if a.Division == nil {
		return ""
	}
	return a.Division.ID
}

// SameTenant reports whether the association shares active's (account, role,
// division) triple. Siblings in one division all match, so callers look for
// an identity match first.
func (a Association) SameTenant(active ActiveAssociation) bool {
	return a.Account.ID == active.Account.ID &&
		a.Role.ID == active.Role.ID &&
		a.DivisionID() == active.DivisionID()
}

func (a Association) ToActive() ActiveAssociation {
	return ActiveAssociation{
		ActiveAssociationID: a.ID,
		Account:             a.Account,
		Division:            a.Division,
		Role:                a.Role,
		Student:             a.Student,
	}
}
