package main

// Action enumerates the operations the guard decides on. Safe actions
// are read-only; unsafe actions mutate and require ownership.
type Action int

const (
	ActionList Action = iota
	ActionRetrieve
	ActionCreate
	ActionUpdate
	ActionDelete
	ActionTogglePublic
)

func (a Action) Safe() bool {
	return a == ActionList || a == ActionRetrieve
}

// authorize decides whether an identity may perform an action on a
// bookmark. Safe actions are allowed for any authenticated identity.
// Unsafe actions require ownership. Creation is decided without a
// target instance: the handler binds the owner to the caller
// unconditionally, so there is nothing to check here.
func authorize(identity *Identity, bookmark *Bookmark, action Action) error {
	if identity == nil {
		return ErrForbidden
	}
	if action.Safe() || action == ActionCreate {
		return nil
	}
	if bookmark == nil || bookmark.OwnerID != identity.ID {
		return ErrForbidden
	}
	return nil
}
