package resource

// Handle is an opaque reference to a host entry lent to the guest.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind distinguishes the two kinds of host entries.
type Kind uint8

const (
	KindCallable Kind = iota + 1
	KindValue
)

func (k Kind) String() string {
	switch k {
	case KindCallable:
		return "host-callable"
	case KindValue:
		return "host-value"
	default:
		return "unknown"
	}
}

// EventType enumerates lifecycle notifications.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventReleased
	EventBorrowed
	EventReturned
)

// Event represents a host entry lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about host entry lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by host values that need cleanup.
type Dropper interface {
	Drop()
}
