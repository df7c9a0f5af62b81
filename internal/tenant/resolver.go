// Package tenant resolves which association (institution, division and
// student) the rest of the application operates against.
package tenant

import (
	"fmt"
	"log/slog"
	"sync"

	"family-session/internal/event"
	"family-session/internal/model"
)

type Options struct {
	// AutoSelect picks the only association when the mirrored list has
	// exactly one entry and nothing is selected yet.
	AutoSelect bool
	Logger     *slog.Logger
}

// Resolver mirrors the session's associations and active association. It
// does not own them; the session store does.
type Resolver struct {
	autoSelect bool
	log        *slog.Logger

	mu           sync.RWMutex
	associations []model.Association
	active       *model.ActiveAssociation
	selected     *model.Association
}

func NewResolver(opts Options) *Resolver {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		autoSelect: opts.AutoSelect,
		log:        log.With("component", "tenant"),
	}
}

// SetUserAssociations replaces the mirrored list and re-runs resolution.
func (r *Resolver) SetUserAssociations(list []model.Association) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.associations = cloneList(list)
	r.resolveLocked()
}

// SetActiveAssociation mirrors the session's active association and re-runs
// resolution. nil leaves the current selection in place.
func (r *Resolver) SetActiveAssociation(active *model.ActiveAssociation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if active == nil {
		r.active = nil
	} else {
		a := *active
		r.active = &a
	}
	r.resolveLocked()
}

func (r *Resolver) resolveLocked() {
	if r.active != nil {
		if match, ok := r.findLocked(*r.active); ok {
			r.selected = &match
			return
		}
		if len(r.associations) > 0 {
			r.log.Warn("active association not found in association list",
				"active_association_id", r.active.ActiveAssociationID,
				"account_id", r.active.Account.ID,
				"associations", len(r.associations))
		} else {
			r.log.Debug("active association set before association list")
		}
	}

	if r.selected == nil && r.autoSelect {
		if sel := AutoSelect(r.associations); sel.State == SelectionSingle {
			r.selected = sel.Association
			r.log.Debug("auto-selected single association", "association_id", sel.Association.ID)
		}
	}
}

// findLocked prefers an identity match anywhere in the list over the first
// structural one; siblings may share account, role and division.
func (r *Resolver) findLocked(active model.ActiveAssociation) (model.Association, bool) {
	if active.ActiveAssociationID != "" {
		for _, a := range r.associations {
			if a.ID == active.ActiveAssociationID {
				return a, true
			}
		}
	}
	for _, a := range r.associations {
		if a.SameTenant(active) {
			return a, true
		}
	}
	return model.Association{}, false
}

// Select makes the association with id the selected institution.
func (r *Resolver) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.associations {
		if a.ID == id {
			r.selected = &a
			return nil
		}
	}
	return fmt.Errorf("select %q: %w", id, model.ErrAssociationNotFound)
}

// Deselect drops the current selection without touching the mirror.
func (r *Resolver) Deselect() {
	r.mu.Lock()
	r.selected = nil
	r.mu.Unlock()
}

func (r *Resolver) Reset() {
	r.mu.Lock()
	r.associations = nil
	r.active = nil
	r.selected = nil
	r.mu.Unlock()
}

func (r *Resolver) SelectedInstitution() *model.Association {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.selected == nil {
		return nil
	}
	a := *r.selected
	return &a
}

func (r *Resolver) UserAssociations() []model.Association {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneList(r.associations)
}

// ActiveStudent prefers the active association's student, then the selected
// institution's, then the first mirrored association's.
func (r *Resolver) ActiveStudent() *model.Student {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch {
	case r.active != nil && r.active.Student != nil:
		return cloneStudent(r.active.Student)
	case r.selected != nil && r.selected.Student != nil:
		return cloneStudent(r.selected.Student)
	case len(r.associations) > 0 && r.associations[0].Student != nil:
		return cloneStudent(r.associations[0].Student)
	}
	return nil
}

// ActiveInstitution is sourced from the active association only. Callers that
// want the selected institution as a fallback must ask for it explicitly.
func (r *Resolver) ActiveInstitution() *model.Institution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == nil {
		return nil
	}
	return &model.Institution{
		Account:  r.active.Account,
		Role:     r.active.Role,
		Division: r.active.Division,
		Student:  cloneStudent(r.active.Student),
	}
}

// HandleEvent keeps the mirror in sync with session events. Every session
// event carries a model.Session snapshot as payload.
func (r *Resolver) HandleEvent(e event.Event) {
	if e.Type == event.TypeSessionLoggedOut {
		r.Reset()
		return
	}

	snap, ok := e.Payload.(model.Session)
	if !ok {
		return
	}

	switch e.Type {
	case event.TypeSessionHydrated, event.TypeSessionAuthenticated:
		// A new session never inherits the previous one's selection.
		r.mu.Lock()
		r.selected = nil
		r.associations = cloneList(snap.Associations)
		r.active = nil
		if snap.ActiveAssociation != nil {
			a := *snap.ActiveAssociation
			r.active = &a
		}
		r.resolveLocked()
		r.mu.Unlock()
	case event.TypeAssociationsChanged:
		r.SetUserAssociations(snap.Associations)
	case event.TypeActiveAssociationChanged:
		r.SetActiveAssociation(snap.ActiveAssociation)
	}
}

// Attach subscribes the resolver to bus and returns the unsubscribe func.
func (r *Resolver) Attach(bus event.Bus) func() {
	return bus.SubscribeFunc(r.HandleEvent)
}

func cloneList(list []model.Association) []model.Association {
	if list == nil {
		return nil
	}
	out := make([]model.Association, len(list))
	copy(out, list)
	return out
}

func cloneStudent(s *model.Student) *model.Student {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
