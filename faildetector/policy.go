package faildetector

import (
	"fmt"
	"strings"
)

// Policy selects what happens to the master on every tick.
type Policy uint8

const (
	// PolicyLiveness deactivates the master when the default alias stops
	// answering and activates it again once it is back.
	PolicyLiveness Policy = iota

	// PolicyPromotion checks that the master is writable and, if it turned
	// read-only, promotes the first writable slave.
	PolicyPromotion
)

func (p Policy) String() string {
	switch p {
	case PolicyLiveness:
		return "liveness"
	case PolicyPromotion:
		return "promotion"
	default:
		return ""
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "liveness":
		return PolicyLiveness, nil
	case "promotion":
		return PolicyPromotion, nil
	default:
		return 0, fmt.Errorf("unknown failover policy: %q", s)
	}
}
