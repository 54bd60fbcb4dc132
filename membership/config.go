package membership

import (
	kitlog "github.com/go-kit/log"
)

// DefaultAlias is the name of the primary slot when none is configured.
const DefaultAlias = "default"

type Config struct {
	// DefaultAlias is the primary slot name. The live master may move away
	// from it after a promotion, but write routing for this alias is what
	// becomes unavailable while the master is deactivated.
	DefaultAlias string

	// Slaves is the statically configured list of replicas. Order is kept.
	Slaves []string

	// Logger receives transition messages at info level.
	Logger kitlog.Logger
}

func DefaultConfig() Config {
	return Config{
		DefaultAlias: DefaultAlias,
		Logger:       kitlog.NewNopLogger(),
	}
}
