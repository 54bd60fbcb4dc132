package faildetector

import (
	"context"

	"github.com/maxpoletaev/replicated/membership"
)

// Registry is the part of membership.Registry the detector mutates.
type Registry interface {
	DefaultAlias() string
	State() membership.State
	DeactivateSlave(alias string)
	ActivateSlave(alias string)
	DeactivateMaster()
	ActivateMaster()
	Promote(alias string) bool
}

// Prober checks members. Any returned error is treated as a failed probe.
type Prober interface {
	// Alive returns nil if the member accepts connections and answers a trivial query.
	Alive(ctx context.Context, alias string) error

	// Writable reports whether the member accepts writes, i.e. it is not read-only.
	Writable(ctx context.Context, alias string) (bool, error)
}

var _ Registry = (*membership.Registry)(nil)
