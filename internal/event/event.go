package event

type Type string

const (
	TypeSessionHydrated          Type = "session.hydrated"
	TypeSessionAuthenticated     Type = "session.authenticated"
	TypeUserUpdated              Type = "session.user_updated"
	TypeAssociationsChanged      Type = "session.associations_changed"
	TypeActiveAssociationChanged Type = "session.active_association_changed"
	TypeSessionLoggedOut         Type = "session.logged_out"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// Handler runs synchronously inside Publish, on the publisher's goroutine.
type Handler func(Event)

type Bus interface {
	Publish(e Event)
	SubscribeFunc(h Handler) func()
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
