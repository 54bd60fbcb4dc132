package router

import (
	"fmt"
	"time"

	kitlog "github.com/go-kit/log"

	"github.com/maxpoletaev/replicated/faildetector"
	"github.com/maxpoletaev/replicated/internal/multierror"
	"github.com/maxpoletaev/replicated/internal/telemetry"
	"github.com/maxpoletaev/replicated/membership"
)

type Config struct {
	// DefaultAlias is the primary slot name.
	DefaultAlias string

	// Slaves is the statically configured list of replicas.
	Slaves []string

	// AsyncCheck enables the background failover checker.
	AsyncCheck bool

	// CheckInterval is the delay between two checks.
	CheckInterval time.Duration

	// CheckMaster enables checking the master on every tick, using Policy.
	CheckMaster bool

	// Policy decides how the master is checked when CheckMaster is set.
	Policy faildetector.Policy

	// ProbeTimeout bounds every single probe.
	ProbeTimeout time.Duration

	// ProbeConcurrency is the number of slaves probed at once.
	ProbeConcurrency int

	// Metrics is optional.
	Metrics *telemetry.Metrics

	Logger kitlog.Logger
}

func DefaultConfig() Config {
	return Config{
		DefaultAlias:     membership.DefaultAlias,
		CheckInterval:    5 * time.Second,
		ProbeTimeout:     2 * time.Second,
		ProbeConcurrency: 1,
		Policy:           faildetector.PolicyLiveness,
		Logger:           kitlog.NewNopLogger(),
	}
}

// Validate reports every invalid field at once. An empty slave list is valid:
// the checker simply has nothing to iterate.
func (c Config) Validate() error {
	errs := multierror.New[string]()

	if c.CheckInterval <= 0 {
		errs.Add("check_interval", fmt.Errorf("must be positive, got %s", c.CheckInterval))
	}

	if c.ProbeTimeout <= 0 {
		errs.Add("probe_timeout", fmt.Errorf("must be positive, got %s", c.ProbeTimeout))
	}

	if c.ProbeConcurrency < 1 {
		errs.Add("probe_concurrency", fmt.Errorf("must be at least 1, got %d", c.ProbeConcurrency))
	}

	if c.Policy.String() == "" {
		errs.Add("policy", fmt.Errorf("unknown policy %d", c.Policy))
	}

	for i, alias := range c.Slaves {
		key := fmt.Sprintf("slaves[%d]", i)

		if alias == "" {
			errs.Add(key, fmt.Errorf("empty alias"))
		} else if alias == c.DefaultAlias {
			errs.Add(key, fmt.Errorf("alias %q is the default alias", alias))
		}
	}

	return errs.Ret()
}
