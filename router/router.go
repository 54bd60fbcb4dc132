package router

import (
	"context"
	"fmt"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/replicated/faildetector"
	"github.com/maxpoletaev/replicated/membership"
)

type Option func(*Router)

// WithPolicy replaces the default round-robin routing policy.
func WithPolicy(p Policy) Option {
	return func(r *Router) {
		r.policy = p
	}
}

// Router resolves the member a read or a write should go to, taking failover
// state into account. Resolution never blocks on the failover checker.
type Router struct {
	conf     Config
	registry *membership.Registry
	detector *faildetector.Detector
	policy   Policy
	logger   kitlog.Logger
}

func New(conf Config, prober faildetector.Prober, opts ...Option) (*Router, error) {
	if conf.DefaultAlias == "" {
		conf.DefaultAlias = membership.DefaultAlias
	}

	if conf.Logger == nil {
		conf.Logger = kitlog.NewNopLogger()
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry := membership.New(membership.Config{
		DefaultAlias: conf.DefaultAlias,
		Slaves:       conf.Slaves,
		Logger:       conf.Logger,
	})

	if conf.Metrics != nil {
		conf.Metrics.SetState(registry.State())
		registry.Subscribe(conf.Metrics.Listener())
	}

	detector := faildetector.New(registry, prober, conf.Logger,
		faildetector.WithCheckInterval(conf.CheckInterval),
		faildetector.WithProbeTimeout(conf.ProbeTimeout),
		faildetector.WithProbeConcurrency(conf.ProbeConcurrency),
		faildetector.WithMasterCheck(conf.CheckMaster),
		faildetector.WithPolicy(conf.Policy),
		faildetector.WithMetrics(conf.Metrics),
	)

	r := &Router{
		conf:     conf,
		registry: registry,
		detector: detector,
		policy:   &RoundRobin{},
		logger:   conf.Logger,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Registry returns the underlying member registry.
func (r *Router) Registry() *membership.Registry {
	return r.registry
}

// Detector returns the failover checker.
func (r *Router) Detector() *faildetector.Detector {
	return r.detector
}

// Start launches the failover checker if it is enabled and there is anything
// to watch. It returns true if the checker is running after the call.
func (r *Router) Start() bool {
	if !r.conf.AsyncCheck {
		return false
	}

	if len(r.conf.Slaves) == 0 && !r.conf.CheckMaster {
		level.Info(r.logger).Log("msg", "nothing to check, failover checker is not started")
		return false
	}

	return r.ForceStart()
}

// ForceStart launches the failover checker regardless of the configuration.
func (r *Router) ForceStart() bool {
	r.detector.Start()
	return r.detector.Running()
}

// Stop stops the failover checker, waiting for it at most two check intervals.
// It returns false if the checker did not finish in time.
func (r *Router) Stop() bool {
	return r.detector.Stop(2 * r.detector.CheckInterval())
}

// Check runs a single failover check synchronously. It is meant for callers
// that schedule checks themselves instead of using Start.
func (r *Router) Check(ctx context.Context) {
	r.detector.Check(ctx)
}

// ResolveWrite returns the member a write should go to. The second value is
// false if there is no member available for writes.
func (r *Router) ResolveWrite(op Operation) (string, bool) {
	state := r.registry.State()
	chosen := r.policy.ForWrite(op, state, r.conf.DefaultAlias)

	return state.Resolve(chosen, r.conf.DefaultAlias)
}

// ResolveRead returns the member a read should go to. The second value is
// false if the read falls through to a master that is unavailable.
func (r *Router) ResolveRead(op Operation) (string, bool) {
	state := r.registry.State()
	chosen := r.policy.ForRead(op, state, r.conf.DefaultAlias)

	return state.Resolve(chosen, r.conf.DefaultAlias)
}

// Members returns the routing status of every known member, the master first.
func (r *Router) Members() []Member {
	state := r.registry.State()
	seen := make(map[string]struct{})
	members := make([]Member, 0, len(r.conf.Slaves)+2)

	add := func(alias string) {
		if _, ok := seen[alias]; ok || alias == "" {
			return
		}

		seen[alias] = struct{}{}
		members = append(members, Member{Alias: alias, Status: state.StatusOf(alias)})
	}

	add(state.Master)
	add(r.conf.DefaultAlias)

	for _, alias := range state.Slaves {
		add(alias)
	}

	for _, alias := range state.Deactivated {
		add(alias)
	}

	for _, alias := range r.conf.Slaves {
		add(alias)
	}

	return members
}

// Member is a single entry returned by Members.
type Member struct {
	Alias  string            `json:"alias"`
	Status membership.Status `json:"status"`
}
