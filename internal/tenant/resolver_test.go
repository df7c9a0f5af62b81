package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"family-session/internal/event"
	"family-session/internal/model"
)

func assoc(id, account, role, division, student string) model.Association {
	a := model.Association{
		ID:      id,
		Account: model.Account{ID: account},
		Role:    model.Role{ID: role},
		Status:  model.AssociationActive,
	}
	if division != "" {
		a.Division = &model.Division{ID: division}
	}
	if student != "" {
		a.Student = &model.Student{ID: student}
	}
	return a
}

func TestAutoSelect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		list  []model.Association
		state SelectionState
		id    string
	}{
		{name: "empty", list: nil, state: SelectionEmpty},
		{name: "single", list: []model.Association{assoc("s1", "acc1", "r1", "", "st1")}, state: SelectionSingle, id: "s1"},
		{name: "many", list: []model.Association{assoc("s1", "acc1", "r1", "", ""), assoc("s2", "acc2", "r1", "", "")}, state: SelectionRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := AutoSelect(tt.list)
			assert.Equal(t, tt.state, sel.State)
			if tt.id == "" {
				assert.Nil(t, sel.Association)
				return
			}
			require.NotNil(t, sel.Association)
			assert.Equal(t, tt.id, sel.Association.ID)
		})
	}
}

func TestResolverAutoSelection(t *testing.T) {
	t.Parallel()

	t.Run("single association is selected", func(t *testing.T) {
		r := NewResolver(Options{AutoSelect: true})
		r.SetUserAssociations([]model.Association{assoc("s1", "acc1", "r1", "", "st1")})

		selected := r.SelectedInstitution()
		require.NotNil(t, selected)
		assert.Equal(t, "s1", selected.ID)
		assert.Equal(t, "st1", r.ActiveStudent().ID)
	})

	t.Run("several associations need an explicit pick", func(t *testing.T) {
		r := NewResolver(Options{AutoSelect: true})
		r.SetUserAssociations([]model.Association{
			assoc("s1", "acc1", "r1", "", ""),
			assoc("s2", "acc2", "r1", "", ""),
		})
		assert.Nil(t, r.SelectedInstitution())

		require.NoError(t, r.Select("s2"))
		assert.Equal(t, "s2", r.SelectedInstitution().ID)
		require.ErrorIs(t, r.Select("missing"), model.ErrAssociationNotFound)
	})

	t.Run("disabled", func(t *testing.T) {
		r := NewResolver(Options{AutoSelect: false})
		r.SetUserAssociations([]model.Association{assoc("s1", "acc1", "r1", "", "")})
		assert.Nil(t, r.SelectedInstitution())
	})
}

func TestResolverMatching(t *testing.T) {
	t.Parallel()

	list := []model.Association{
		assoc("s1", "acc1", "r1", "d1", "st1"),
		assoc("s2", "acc1", "r2", "d1", "st2"),
		assoc("s3", "acc2", "r1", "", ""),
	}

	t.Run("by identity", func(t *testing.T) {
		r := NewResolver(Options{})
		r.SetUserAssociations(list)
		r.SetActiveAssociation(&model.ActiveAssociation{ActiveAssociationID: "s2"})
		assert.Equal(t, "s2", r.SelectedInstitution().ID)
	})

	t.Run("by account role division triple", func(t *testing.T) {
		r := NewResolver(Options{})
		r.SetUserAssociations(list)
		r.SetActiveAssociation(&model.ActiveAssociation{
			ActiveAssociationID: "other",
			Account:             model.Account{ID: "acc2"},
			Role:                model.Role{ID: "r1"},
		})
		assert.Equal(t, "s3", r.SelectedInstitution().ID)
	})

	t.Run("identity wins over an earlier sibling in the same division", func(t *testing.T) {
		siblings := []model.Association{
			assoc("s1", "acc1", "fam", "d1", "st1"),
			assoc("s2", "acc1", "fam", "d1", "st2"),
		}
		r := NewResolver(Options{})
		r.SetUserAssociations(siblings)

		active := siblings[1].ToActive()
		r.SetActiveAssociation(&active)

		require.NotNil(t, r.SelectedInstitution())
		assert.Equal(t, "s2", r.SelectedInstitution().ID)
		assert.Equal(t, "st2", r.ActiveStudent().ID)
	})

	t.Run("either arrival order", func(t *testing.T) {
		r := NewResolver(Options{})
		r.SetActiveAssociation(&model.ActiveAssociation{ActiveAssociationID: "s1"})
		assert.Nil(t, r.SelectedInstitution())

		r.SetUserAssociations(list)
		assert.Equal(t, "s1", r.SelectedInstitution().ID)
	})

	t.Run("unmatched active association leaves selection unchanged", func(t *testing.T) {
		r := NewResolver(Options{})
		r.SetUserAssociations(list)
		require.NoError(t, r.Select("s3"))

		r.SetActiveAssociation(&model.ActiveAssociation{
			ActiveAssociationID: "gone",
			Account:             model.Account{ID: "acc9"},
		})
		assert.Equal(t, "s3", r.SelectedInstitution().ID)
	})

	t.Run("absent active association is sticky", func(t *testing.T) {
		r := NewResolver(Options{})
		r.SetUserAssociations(list)
		r.SetActiveAssociation(&model.ActiveAssociation{ActiveAssociationID: "s2"})
		r.SetActiveAssociation(nil)
		assert.Equal(t, "s2", r.SelectedInstitution().ID)
	})
}

func TestActiveStudentFallbackOrder(t *testing.T) {
	t.Parallel()

	r := NewResolver(Options{})
	r.SetUserAssociations([]model.Association{
		assoc("a0", "acc0", "r1", "", "S3"),
		assoc("a1", "acc1", "r1", "", "S2"),
	})
	require.NoError(t, r.Select("a1"))
	r.SetActiveAssociation(&model.ActiveAssociation{
		ActiveAssociationID: "a9",
		Account:             model.Account{ID: "acc9"},
		Student:             &model.Student{ID: "S1"},
	})

	assert.Equal(t, "S1", r.ActiveStudent().ID)

	r.SetActiveAssociation(nil)
	assert.Equal(t, "S2", r.ActiveStudent().ID)

	r.Deselect()
	assert.Equal(t, "S3", r.ActiveStudent().ID)

	r.Reset()
	assert.Nil(t, r.ActiveStudent())
}

func TestActiveInstitutionHasNoFallback(t *testing.T) {
	t.Parallel()

	r := NewResolver(Options{AutoSelect: true})
	r.SetUserAssociations([]model.Association{assoc("s1", "acc1", "r1", "d1", "st1")})
	require.NotNil(t, r.SelectedInstitution())
	assert.Nil(t, r.ActiveInstitution())

	r.SetActiveAssociation(&model.ActiveAssociation{
		ActiveAssociationID: "s1",
		Account:             model.Account{ID: "acc1"},
		Role:                model.Role{ID: "r1"},
		Division:            &model.Division{ID: "d1"},
		Student:             &model.Student{ID: "st1"},
	})
	inst := r.ActiveInstitution()
	require.NotNil(t, inst)
	assert.Equal(t, "acc1", inst.Account.ID)
	assert.Equal(t, "d1", inst.Division.ID)
	assert.Equal(t, "st1", inst.Student.ID)
}

func TestResolverFollowsSessionEvents(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	r := NewResolver(Options{AutoSelect: true})
	unsubscribe := r.Attach(bus)
	defer unsubscribe()

	list := []model.Association{assoc("s1", "acc1", "r1", "", "st1"), assoc("s2", "acc2", "r1", "", "st2")}

	bus.Publish(event.New(event.TypeSessionAuthenticated, model.Session{}))
	assert.Empty(t, r.UserAssociations())

	bus.Publish(event.New(event.TypeAssociationsChanged, model.Session{Associations: list}))
	assert.Len(t, r.UserAssociations(), 2)
	assert.Nil(t, r.SelectedInstitution())

	bus.Publish(event.New(event.TypeActiveAssociationChanged, model.Session{
		Associations:      list,
		ActiveAssociation: &model.ActiveAssociation{ActiveAssociationID: "s2"},
	}))
	assert.Equal(t, "s2", r.SelectedInstitution().ID)

	bus.Publish(event.New(event.TypeSessionLoggedOut, nil))
	assert.Nil(t, r.SelectedInstitution())
	assert.Empty(t, r.UserAssociations())
}

func TestResolverNewSessionDropsPreviousSelection(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	r := NewResolver(Options{AutoSelect: true})
	defer r.Attach(bus)()

	userA := []model.Association{assoc("a1", "accA", "r1", "", "stA")}
	userB := []model.Association{
		assoc("b1", "accB", "r1", "", "stB1"),
		assoc("b2", "accB", "r1", "d2", "stB2"),
	}

	bus.Publish(event.New(event.TypeSessionAuthenticated, model.Session{Associations: userA}))
	require.NotNil(t, r.SelectedInstitution())
	assert.Equal(t, "a1", r.SelectedInstitution().ID)

	// User B signs in without a logout in between.
	bus.Publish(event.New(event.TypeSessionAuthenticated, model.Session{Associations: userB}))
	assert.Nil(t, r.SelectedInstitution())
	assert.Equal(t, "stB1", r.ActiveStudent().ID)

	single := []model.Association{assoc("c1", "accC", "r1", "", "stC")}
	bus.Publish(event.New(event.TypeSessionHydrated, model.Session{Associations: single}))
	require.NotNil(t, r.SelectedInstitution())
	assert.Equal(t, "c1", r.SelectedInstitution().ID)
	assert.Equal(t, "stC", r.ActiveStudent().ID)
}
