package membership

type Status int

const (
	StatusUnknown Status = iota
	StatusMaster
	StatusActive
	StatusDeactivated
)

func (s Status) String() string {
	switch s {
	case StatusMaster:
		return "master"
	case StatusActive:
		return "active"
	case StatusDeactivated:
		return "deactivated"
	case StatusUnknown:
		return "unknown"
	default:
		return ""
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsRoutable returns true if requests may be routed to a member with this status.
func (s Status) IsRoutable() bool {
	return s == StatusMaster || s == StatusActive
}

// StatusOf returns the routing status of the alias in this snapshot.
func (s State) StatusOf(alias string) Status {
	switch {
	case alias != "" && alias == s.Master:
		return StatusMaster
	case s.IsActive(alias):
		return StatusActive
	case s.IsDeactivated(alias):
		return StatusDeactivated
	default:
		return StatusUnknown
	}
}
