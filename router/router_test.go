package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/replicated/faildetector"
	"github.com/maxpoletaev/replicated/internal/telemetry"
	"github.com/maxpoletaev/replicated/membership"
	"github.com/maxpoletaev/replicated/prober"
)

type switchProber struct {
	mut      sync.Mutex
	alive    map[string]bool
	writable map[string]bool
}

func newSwitchProber() *switchProber {
	return &switchProber{
		alive:    make(map[string]bool),
		writable: make(map[string]bool),
	}
}

func (p *switchProber) setAlive(aliases ...string) {
	p.mut.Lock()
	defer p.mut.Unlock()

	p.alive = make(map[string]bool)
	for _, a := range aliases {
		p.alive[a] = true
	}
}

func (p *switchProber) setWritable(aliases ...string) {
	p.mut.Lock()
	defer p.mut.Unlock()

	p.writable = make(map[string]bool)
	for _, a := range aliases {
		p.writable[a] = true
	}
}

func (p *switchProber) Alive(_ context.Context, alias string) error {
	p.mut.Lock()
	defer p.mut.Unlock()

	if !p.alive[alias] {
		return errors.New("dead")
	}

	return nil
}

func (p *switchProber) Writable(_ context.Context, alias string) (bool, error) {
	p.mut.Lock()
	defer p.mut.Unlock()

	return p.writable[alias], nil
}

func testConfig(slaves ...string) Config {
	conf := DefaultConfig()
	conf.Slaves = slaves
	conf.CheckInterval = 10 * time.Millisecond

	return conf
}

func TestRouter_ResolveDefaults(t *testing.T) {
	r, err := New(testConfig("slave1", "slave2"), newSwitchProber())
	require.NoError(t, err)

	alias, ok := r.ResolveWrite(Operation{})
	require.True(t, ok)
	require.Equal(t, "default", alias)

	seen := make(map[string]int)

	for i := 0; i < 4; i++ {
		alias, ok := r.ResolveRead(Operation{})
		require.True(t, ok)
		seen[alias]++
	}

	require.Equal(t, map[string]int{"slave1": 2, "slave2": 2}, seen)
}

func TestRouter_MasterDown(t *testing.T) {
	conf := testConfig("slave1")
	conf.CheckMaster = true

	p := newSwitchProber()
	r, err := New(conf, p)
	require.NoError(t, err)

	p.setAlive("slave1")
	r.Check(context.Background())

	_, ok := r.ResolveWrite(Operation{})
	require.False(t, ok)

	// Reads still go to the live slave.
	alias, ok := r.ResolveRead(Operation{})
	require.True(t, ok)
	require.Equal(t, "slave1", alias)

	// No slaves left, reads fall through to the unavailable master.
	p.setAlive()
	r.Check(context.Background())

	_, ok = r.ResolveRead(Operation{})
	require.False(t, ok)

	p.setAlive("default")
	r.Check(context.Background())

	alias, ok = r.ResolveWrite(Operation{})
	require.True(t, ok)
	require.Equal(t, "default", alias)

	alias, ok = r.ResolveRead(Operation{})
	require.True(t, ok)
	require.Equal(t, "default", alias)
}

func TestRouter_Promotion(t *testing.T) {
	conf := testConfig("slave1", "slave2")
	conf.CheckMaster = true
	conf.Policy = faildetector.PolicyPromotion

	p := newSwitchProber()
	r, err := New(conf, p)
	require.NoError(t, err)

	p.setAlive("default", "slave1", "slave2")
	p.setWritable("slave1")
	r.Check(context.Background())

	alias, ok := r.ResolveWrite(Operation{})
	require.True(t, ok)
	require.Equal(t, "slave1", alias)

	state := r.Registry().State()
	require.Equal(t, []string{"slave2", "default"}, state.Slaves)

	for i := 0; i < 4; i++ {
		alias, ok := r.ResolveRead(Operation{})
		require.True(t, ok)
		require.NotEqual(t, "slave1", alias)
	}
}

func TestRouter_StartStop(t *testing.T) {
	conf := testConfig("slave1", "slave2")
	conf.AsyncCheck = true
	conf.CheckMaster = true

	p := newSwitchProber()
	p.setAlive("slave1")

	r, err := New(conf, p)
	require.NoError(t, err)
	require.True(t, r.Start())
	require.True(t, r.Start())

	require.Eventually(t, func() bool {
		state := r.Registry().State()
		return !state.HasMaster() && len(state.Deactivated) == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []string{"slave1"}, r.Registry().Slaves())
	require.Equal(t, []string{"slave2"}, r.Registry().Deactivated())

	require.True(t, r.Stop())
	require.True(t, r.Stop())

	p.setAlive("default", "slave1", "slave2")
	before := r.Registry().State()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, before, r.Registry().State())
}

func TestRouter_StartDisabled(t *testing.T) {
	r, err := New(testConfig("slave1"), newSwitchProber())
	require.NoError(t, err)
	require.False(t, r.Start())
	require.True(t, r.Stop())

	conf := testConfig()
	conf.AsyncCheck = true

	r, err = New(conf, newSwitchProber())
	require.NoError(t, err)
	require.False(t, r.Start())
	require.True(t, r.ForceStart())
	require.True(t, r.Stop())
}

func TestRouter_Metrics(t *testing.T) {
	conf := testConfig("slave1")
	conf.Metrics = telemetry.New()

	p := newSwitchProber()
	r, err := New(conf, p)
	require.NoError(t, err)

	r.Check(context.Background())

	families, err := conf.Metrics.Gatherer().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	require.True(t, names["replicated_transitions_total"])
	require.True(t, names["replicated_probes_total"])
}

func TestRouter_InvalidConfig(t *testing.T) {
	conf := testConfig("default", "")
	conf.CheckInterval = 0
	conf.ProbeConcurrency = 0

	_, err := New(conf, prober.Funcs{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "check_interval")
	require.Contains(t, err.Error(), "probe_concurrency")
	require.Contains(t, err.Error(), "slaves[0]")
	require.Contains(t, err.Error(), "slaves[1]")
}

func TestRouter_Members(t *testing.T) {
	p := newSwitchProber()
	r, err := New(testConfig("slave1", "slave2"), p)
	require.NoError(t, err)

	p.setAlive("slave2")
	r.Check(context.Background())

	require.Equal(t, []Member{
		{Alias: "default", Status: membership.StatusMaster},
		{Alias: "slave2", Status: membership.StatusActive},
		{Alias: "slave1", Status: membership.StatusDeactivated},
	}, r.Members())
}

func TestKeyHash(t *testing.T) {
	r, err := New(testConfig("s1", "s2", "s3"), newSwitchProber(), WithPolicy(KeyHash{}))
	require.NoError(t, err)

	first, ok := r.ResolveRead(Operation{Key: "user:42"})
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		alias, ok := r.ResolveRead(Operation{Key: "user:42"})
		require.True(t, ok)
		require.Equal(t, first, alias)
	}

	alias, ok := r.ResolveWrite(Operation{Key: "user:42"})
	require.True(t, ok)
	require.Equal(t, "default", alias)
}

// flappingPolicy deactivates the master while a routing decision is being made.
type flappingPolicy struct {
	registry *membership.Registry
}

func (p *flappingPolicy) ForWrite(_ Operation, state membership.State, defaultAlias string) string {
	p.registry.DeactivateMaster()
	return writeTarget(state, defaultAlias)
}

func (p *flappingPolicy) ForRead(op Operation, state membership.State, defaultAlias string) string {
	return p.ForWrite(op, state, defaultAlias)
}

func TestRouter_ResolveUsesSingleSnapshot(t *testing.T) {
	policy := &flappingPolicy{}

	r, err := New(testConfig(), newSwitchProber(), WithPolicy(policy))
	require.NoError(t, err)

	policy.registry = r.Registry()

	alias, ok := r.ResolveWrite(Operation{})
	require.True(t, ok)
	require.Equal(t, "default", alias)

	// The next decision sees the deactivated master.
	_, ok = r.ResolveWrite(Operation{})
	require.False(t, ok)
}

func TestPolicies_NoSlaves(t *testing.T) {
	state := membership.State{}

	require.Equal(t, "default", (&RoundRobin{}).ForRead(Operation{}, state, "default"))
	require.Equal(t, "default", KeyHash{}.ForRead(Operation{Key: "k"}, state, "default"))

	state.Master = "slave1"
	require.Equal(t, "slave1", (&RoundRobin{}).ForWrite(Operation{}, state, "default"))
}
