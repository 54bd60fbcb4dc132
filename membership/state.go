package membership

import (
	"golang.org/x/exp/slices"
)

// State is an immutable snapshot of the registry. Slices are never modified
// after the snapshot is published, so it can be shared between goroutines.
type State struct {
	// Master is the alias currently accepting writes. Empty means there is
	// no master available.
	Master      string
	Slaves      []string
	Deactivated []string
	Version     uint64
}

// HasMaster returns true if there is a master available.
func (s State) HasMaster() bool {
	return s.Master != ""
}

// IsActive returns true if the alias is an active slave.
func (s State) IsActive(alias string) bool {
	return slices.Contains(s.Slaves, alias)
}

// IsDeactivated returns true if the alias is a known slave failing liveness.
func (s State) IsDeactivated(alias string) bool {
	return slices.Contains(s.Deactivated, alias)
}

// Resolve checks the alias chosen by a routing policy against this snapshot.
// It returns false if the alias is empty, or if it is the primary slot while
// there is no master.
func (s State) Resolve(chosen, defaultAlias string) (string, bool) {
	if chosen == "" {
		return "", false
	}

	if chosen == defaultAlias && !s.HasMaster() {
		return "", false
	}

	return chosen, true
}

func (s State) clone() State {
	return State{
		Master:      s.Master,
		Slaves:      slices.Clone(s.Slaves),
		Deactivated: slices.Clone(s.Deactivated),
		Version:     s.Version,
	}
}

// remove returns s without the first occurrence of v. The input is not modified.
func remove(s []string, v string) []string {
	idx := slices.Index(s, v)
	if idx < 0 {
		return s
	}

	return slices.Delete(slices.Clone(s), idx, idx+1)
}
