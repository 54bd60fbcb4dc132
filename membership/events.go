package membership

type EventType uint8

const (
	EventSlaveDeactivated EventType = iota + 1
	EventSlaveActivated
	EventMasterDeactivated
	EventMasterActivated
	EventMasterPromoted
)

func (t EventType) String() string {
	switch t {
	case EventSlaveDeactivated:
		return "slave_deactivated"
	case EventSlaveActivated:
		return "slave_activated"
	case EventMasterDeactivated:
		return "master_deactivated"
	case EventMasterActivated:
		return "master_activated"
	case EventMasterPromoted:
		return "master_promoted"
	default:
		return ""
	}
}

// Event describes a single effective transition. Previous is only set for
// promotions and holds the alias of the replaced master.
type Event struct {
	Type     EventType
	Alias    string
	Previous string
	State    State
}

// Listener is notified after a transition has been applied. Listeners are
// called synchronously from the goroutine that made the change, without the
// registry lock held, so they may read the registry but must not block.
type Listener func(Event)
