package router

import (
	"sync/atomic"

	"github.com/twmb/murmur3"

	"github.com/maxpoletaev/replicated/membership"
)

// Operation describes a request being routed. Key is optional and only used
// by key-aware policies.
type Operation struct {
	Key string
}

// Policy is the routing decision made without knowledge of failover state.
// The router passes the current registry snapshot so that policies never
// pick members that are known to be down.
type Policy interface {
	ForWrite(op Operation, state membership.State, defaultAlias string) string
	ForRead(op Operation, state membership.State, defaultAlias string) string
}

// writeTarget is the current master, or the primary slot while the master is
// down so that the registry can report it as unavailable.
func writeTarget(state membership.State, defaultAlias string) string {
	if state.HasMaster() {
		return state.Master
	}

	return defaultAlias
}

// RoundRobin rotates reads over the active slaves and falls back to the
// master once there are none.
type RoundRobin struct {
	counter uint64
}

func (p *RoundRobin) ForWrite(_ Operation, state membership.State, defaultAlias string) string {
	return writeTarget(state, defaultAlias)
}

func (p *RoundRobin) ForRead(_ Operation, state membership.State, defaultAlias string) string {
	if len(state.Slaves) == 0 {
		return writeTarget(state, defaultAlias)
	}

	n := atomic.AddUint64(&p.counter, 1) - 1

	return state.Slaves[n%uint64(len(state.Slaves))]
}

// KeyHash pins reads of the same key to the same active slave, which keeps
// replication lag from being observed as values going back and forth.
type KeyHash struct{}

func (KeyHash) ForWrite(_ Operation, state membership.State, defaultAlias string) string {
	return writeTarget(state, defaultAlias)
}

func (KeyHash) ForRead(op Operation, state membership.State, defaultAlias string) string {
	if len(state.Slaves) == 0 {
		return writeTarget(state, defaultAlias)
	}

	h := murmur3.StringSum64(op.Key)

	return state.Slaves[h%uint64(len(state.Slaves))]
}
