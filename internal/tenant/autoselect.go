package tenant

import "family-session/internal/model"

type SelectionState int

const (
	// SelectionEmpty means the user has no associations to choose from.
	SelectionEmpty SelectionState = iota
	// SelectionSingle means the only association is selected without asking.
	SelectionSingle
	// SelectionRequired means the user must pick; no default is applied.
	SelectionRequired
)

func (s SelectionState) String() string {
	switch s {
	case SelectionSingle:
		return "single"
	case SelectionRequired:
		return "required"
	default:
		return "empty"
	}
}

type Selection struct {
	State       SelectionState
	Association *model.Association
}

// AutoSelect is the policy used by institution pickers.
func AutoSelect(list []model.Association) Selection {
	switch len(list) {
	case 0:
		return Selection{State: SelectionEmpty}
	case 1:
		a := list[0]
		return Selection{State: SelectionSingle, Association: &a}
	default:
		return Selection{State: SelectionRequired}
	}
}
