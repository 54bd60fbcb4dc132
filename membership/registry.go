package membership

import (
	"sync"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/exp/slices"

	"github.com/maxpoletaev/replicated/internal/generic"
)

// Registry keeps track of the current master and of the slaves that are safe to
// route reads to. Mutations are serialized with a mutex, while readers load the
// latest published snapshot without locking. A snapshot may be one transition
// behind a concurrent writer, but it is never partially updated.
type Registry struct {
	mut          sync.Mutex
	state        *generic.Atomic[State]
	defaultAlias string
	logger       kitlog.Logger
	listenersMut sync.RWMutex
	listeners    []Listener
}

func New(conf Config) *Registry {
	if conf.DefaultAlias == "" {
		conf.DefaultAlias = DefaultAlias
	}

	if conf.Logger == nil {
		conf.Logger = kitlog.NewNopLogger()
	}

	initial := State{
		Master: conf.DefaultAlias,
		Slaves: generic.Unique(generic.Filter(conf.Slaves, func(alias string) bool {
			return alias != ""
		})),
	}

	return &Registry{
		state:        generic.NewAtomic(initial),
		defaultAlias: conf.DefaultAlias,
		logger:       conf.Logger,
	}
}

// DefaultAlias returns the name of the primary slot.
func (r *Registry) DefaultAlias() string {
	return r.defaultAlias
}

// State returns the latest snapshot.
func (r *Registry) State() State {
	return r.state.Load()
}

// Master returns the alias of the current master. The second value is false if
// the master is deactivated.
func (r *Registry) Master() (string, bool) {
	s := r.state.Load()
	return s.Master, s.HasMaster()
}

// IsMasterAvailable returns true unless the master has been deactivated.
func (r *Registry) IsMasterAvailable() bool {
	return r.state.Load().HasMaster()
}

// Slaves returns the active slaves in insertion order. The returned slice is
// shared with the snapshot and must not be modified.
func (r *Registry) Slaves() []string {
	return r.state.Load().Slaves
}

// Deactivated returns the slaves that are currently failing liveness checks.
// The returned slice is shared with the snapshot and must not be modified.
func (r *Registry) Deactivated() []string {
	return r.state.Load().Deactivated
}

// Subscribe registers a listener that is called after every effective
// transition. When the transition is made by the failure detector, the
// listener runs while the detector holds its mutation gate, so it must not
// stop the detector.
func (r *Registry) Subscribe(l Listener) {
	r.listenersMut.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMut.Unlock()
}

// update applies fn to a copy of the current state under the lock. If fn
// reports a change, the copy is published with a bumped version.
func (r *Registry) update(fn func(s *State) bool) (State, bool) {
	r.mut.Lock()
	defer r.mut.Unlock()

	next := r.state.Load().clone()
	if !fn(&next) {
		return next, false
	}

	next.Version++
	r.state.Store(next)

	return next, true
}

func (r *Registry) notify(e Event) {
	r.listenersMut.RLock()
	listeners := r.listeners
	r.listenersMut.RUnlock()

	for _, l := range listeners {
		l(e)
	}
}

// DeactivateSlave excludes the alias from read routing. Calling it for an alias
// that is already deactivated does nothing.
func (r *Registry) DeactivateSlave(alias string) {
	state, changed := r.update(func(s *State) bool {
		var changed bool

		if !slices.Contains(s.Deactivated, alias) {
			s.Deactivated = append(s.Deactivated, alias)
			changed = true
		}

		if slices.Contains(s.Slaves, alias) {
			s.Slaves = remove(s.Slaves, alias)
			changed = true
		}

		return changed
	})

	if !changed {
		level.Debug(r.logger).Log("msg", "slave is already deactivated", "alias", alias)
		return
	}

	level.Info(r.logger).Log("msg", "deactivate slave", "alias", alias)
	r.notify(Event{Type: EventSlaveDeactivated, Alias: alias, State: state})
}

// ActivateSlave returns the alias to read routing. Calling it for an alias
// that is already active does nothing.
func (r *Registry) ActivateSlave(alias string) {
	state, changed := r.update(func(s *State) bool {
		var changed bool

		if !slices.Contains(s.Slaves, alias) {
			s.Slaves = append(s.Slaves, alias)
			changed = true
		}

		if slices.Contains(s.Deactivated, alias) {
			s.Deactivated = remove(s.Deactivated, alias)
			changed = true
		}

		return changed
	})

	if !changed {
		level.Debug(r.logger).Log("msg", "slave is already active", "alias", alias)
		return
	}

	level.Info(r.logger).Log("msg", "activate slave", "alias", alias)
	r.notify(Event{Type: EventSlaveActivated, Alias: alias, State: state})
}

// DeactivateMaster marks the master as unavailable.
func (r *Registry) DeactivateMaster() {
	var prev string

	state, changed := r.update(func(s *State) bool {
		if s.Master == "" {
			return false
		}

		prev, s.Master = s.Master, ""

		return true
	})

	if !changed {
		return
	}

	level.Info(r.logger).Log("msg", "deactivate master", "alias", prev)
	r.notify(Event{Type: EventMasterDeactivated, Alias: prev, State: state})
}

// ActivateMaster restores the default alias as the master if there is no master.
func (r *Registry) ActivateMaster() {
	state, changed := r.update(func(s *State) bool {
		if s.Master != "" {
			return false
		}

		s.Master = r.defaultAlias

		return true
	})

	if !changed {
		return
	}

	level.Info(r.logger).Log("msg", "activate master", "alias", r.defaultAlias)
	r.notify(Event{Type: EventMasterActivated, Alias: r.defaultAlias, State: state})
}

// Promote makes the given slave the new master in a single step. The previous
// master joins the slave pool unless it is the promoted alias itself. Promoting
// the current master is a no-op and returns false.
func (r *Registry) Promote(alias string) bool {
	var prev string

	state, changed := r.update(func(s *State) bool {
		if s.Master == alias {
			return false
		}

		prev = s.Master

		if prev != "" && !slices.Contains(s.Slaves, prev) {
			s.Slaves = append(s.Slaves, prev)
		}

		s.Deactivated = remove(s.Deactivated, prev)
		s.Master = alias
		s.Slaves = remove(s.Slaves, alias)
		s.Deactivated = remove(s.Deactivated, alias)

		return true
	})

	if !changed {
		level.Info(r.logger).Log("msg", "alias is already a master, skip", "alias", alias)
		return false
	}

	level.Info(r.logger).Log(
		"msg", "change master",
		"from", prev,
		"to", alias,
		"slaves", len(state.Slaves),
	)

	r.notify(Event{Type: EventMasterPromoted, Alias: alias, Previous: prev, State: state})

	return true
}

// ResolveWrite takes the alias chosen by the routing policy for a write and
// returns false if it points to the primary slot while the master is down.
func (r *Registry) ResolveWrite(chosen string) (string, bool) {
	return r.resolve(chosen)
}

// ResolveRead is the same as ResolveWrite, but for reads that fall through to
// the primary slot.
func (r *Registry) ResolveRead(chosen string) (string, bool) {
	return r.resolve(chosen)
}

func (r *Registry) resolve(chosen string) (string, bool) {
	return r.state.Load().Resolve(chosen, r.defaultAlias)
}
