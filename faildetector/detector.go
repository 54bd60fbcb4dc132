package faildetector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/maxpoletaev/replicated/internal/telemetry"
)

type runState uint8

const (
	stateIdle runState = iota
	stateRunning
	stateStopped
)

// Detector periodically probes the members known to the registry and moves
// them between the active and deactivated sets. Only the transitions are made
// under the registry lock, probes always run without it.
type Detector struct {
	registry      Registry
	prober        Prober
	logger        log.Logger
	metrics       *telemetry.Metrics
	checkInterval time.Duration
	probeTimeout  time.Duration
	checkMaster   bool
	policy        Policy
	concurrency   int

	mut   sync.Mutex
	state runState
	stop  chan struct{}
	done  chan struct{}

	// gate serializes registry mutations with Stop. Registry listeners run
	// while it is held, so it is kept apart from mut.
	gate   sync.Mutex
	halted bool
}

func New(registry Registry, prober Prober, logger log.Logger, opts ...Option) *Detector {
	d := &Detector{
		registry:      registry,
		prober:        prober,
		logger:        logger,
		checkInterval: 5 * time.Second,
		probeTimeout:  2 * time.Second,
		policy:        PolicyLiveness,
		concurrency:   1,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = log.NewNopLogger()
	}

	return d
}

// CheckInterval returns the delay between two ticks.
func (d *Detector) CheckInterval() time.Duration {
	return d.checkInterval
}

// Running returns true if the background loop has been started and not stopped.
func (d *Detector) Running() bool {
	d.mut.Lock()
	defer d.mut.Unlock()

	return d.state == stateRunning
}

// Start launches the background loop. A detector runs at most once: calling Start
// again, or after Stop, does nothing.
func (d *Detector) Start() {
	d.mut.Lock()
	defer d.mut.Unlock()

	if d.state != stateIdle {
		return
	}

	d.state = stateRunning

	level.Info(d.logger).Log(
		"msg", "failover checker started",
		"check_interval", d.checkInterval,
		"check_master", d.checkMaster,
		"policy", d.policy,
	)

	go d.loop()
}

// Stop signals the loop to exit and waits for it up to the given timeout. It
// returns false if the loop did not finish in time. Once Stop returns, the
// detector makes no further changes to the registry, even if a probe is
// still in flight. Stop must not be called from a registry listener.
func (d *Detector) Stop(timeout time.Duration) bool {
	d.gate.Lock()
	d.halted = true
	d.gate.Unlock()

	d.mut.Lock()

	switch d.state {
	case stateStopped:
		d.mut.Unlock()
		return true
	case stateIdle:
		d.state = stateStopped
		close(d.stop)
		d.mut.Unlock()

		return true
	}

	d.state = stateStopped
	close(d.stop)
	d.mut.Unlock()

	level.Debug(d.logger).Log("msg", "stopping failover checker")

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-d.done:
		return true
	case <-timer.C:
		level.Warn(d.logger).Log("msg", "failover checker did not stop in time", "timeout", timeout)
		return false
	}
}

func (d *Detector) loop() {
	defer close(d.done)

	timer := time.NewTimer(d.checkInterval)
	defer timer.Stop()

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		d.Check(context.Background())

		timer.Reset(d.checkInterval)

		select {
		case <-d.stop:
			return
		case <-timer.C:
			// noop
		}
	}
}

// Check runs a single tick: slaves are checked first, then the master if enabled.
func (d *Detector) Check(ctx context.Context) {
	d.checkSlaves(ctx)

	if d.checkMaster {
		switch d.policy {
		case PolicyPromotion:
			d.checkMasterWritable(ctx)
		default:
			d.checkMasterAlive(ctx)
		}
	}
}

// apply runs the registry mutation unless the detector has been stopped.
func (d *Detector) apply(fn func()) {
	d.gate.Lock()
	defer d.gate.Unlock()

	if d.halted {
		return
	}

	fn()
}

func (d *Detector) checkSlaves(ctx context.Context) {
	state := d.registry.State()

	alive := d.probeAll(ctx, state.Slaves)
	for i, alias := range state.Slaves {
		if !alive[i] {
			alias := alias
			d.apply(func() { d.registry.DeactivateSlave(alias) })
		}
	}

	deactivated := d.registry.State().Deactivated

	alive = d.probeAll(ctx, deactivated)
	for i, alias := range deactivated {
		if alive[i] {
			alias := alias
			d.apply(func() { d.registry.ActivateSlave(alias) })
		}
	}
}

func (d *Detector) checkMasterAlive(ctx context.Context) {
	alias := d.registry.DefaultAlias()

	if d.registry.State().HasMaster() {
		level.Debug(d.logger).Log("msg", "check master still alive", "alias", alias)

		if !d.probeAlive(ctx, alias) {
			d.apply(d.registry.DeactivateMaster)
		}

		return
	}

	level.Debug(d.logger).Log("msg", "check master alive again", "alias", alias)

	if d.probeAlive(ctx, alias) {
		d.apply(d.registry.ActivateMaster)
	}
}

func (d *Detector) checkMasterWritable(ctx context.Context) {
	state := d.registry.State()

	if state.HasMaster() && d.probeWritable(ctx, state.Master) {
		return
	}

	level.Info(d.logger).Log("msg", "master is read-only, looking for a writable slave", "alias", state.Master)

	// First writable slave wins, in list order.
	for _, alias := range state.Slaves {
		if d.probeWritable(ctx, alias) {
			alias := alias
			d.apply(func() { d.registry.Promote(alias) })

			return
		}
	}

	level.Warn(d.logger).Log("msg", "no writable slave found", "slaves", len(state.Slaves))
}

// probeAll probes the aliases with bounded concurrency and returns the
// outcomes in the same order.
func (d *Detector) probeAll(ctx context.Context, aliases []string) []bool {
	results := make([]bool, len(aliases))
	if len(aliases) == 0 {
		return results
	}

	errg := errgroup.Group{}
	errg.SetLimit(d.concurrency)

	for i := range aliases {
		i := i

		errg.Go(func() error {
			level.Debug(d.logger).Log("msg", "check database alive", "alias", aliases[i])
			results[i] = d.probeAlive(ctx, aliases[i])

			return nil
		})
	}

	_ = errg.Wait()

	return results
}

func (d *Detector) probeAlive(ctx context.Context, alias string) bool {
	ctx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	start := time.Now()

	err := safeProbe(func() error {
		return d.prober.Alive(ctx, alias)
	})

	d.metrics.ObserveProbe(telemetry.ProbeAlive, err == nil, time.Since(start))

	if err != nil {
		level.Debug(d.logger).Log("msg", "liveness probe failed", "alias", alias, "err", err)
		return false
	}

	return true
}

func (d *Detector) probeWritable(ctx context.Context, alias string) bool {
	ctx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	var writable bool

	start := time.Now()

	err := safeProbe(func() (err error) {
		writable, err = d.prober.Writable(ctx, alias)
		return err
	})

	d.metrics.ObserveProbe(telemetry.ProbeWritable, err == nil && writable, time.Since(start))

	if err != nil {
		level.Debug(d.logger).Log("msg", "write probe failed", "alias", alias, "err", err)
		return false
	}

	level.Debug(d.logger).Log("msg", "write probe", "alias", alias, "writable", writable)

	return writable
}

// safeProbe turns a panicking probe into an error so that one broken member
// cannot take the loop down.
func safeProbe(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()

	return fn()
}
