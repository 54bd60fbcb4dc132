package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/replicated/api"
	"github.com/maxpoletaev/replicated/discovery"
	"github.com/maxpoletaev/replicated/faildetector"
	"github.com/maxpoletaev/replicated/internal/telemetry"
	"github.com/maxpoletaev/replicated/prober/grpcprobe"
	"github.com/maxpoletaev/replicated/router"
)

type shutdownFunc func(ctx context.Context) error

var noopShutdown = func(ctx context.Context) error { return nil }

func setupLogger() (kitlog.Logger, shutdownFunc) {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)

	if !opts.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return logger, noopShutdown
}

func setupProber(logger kitlog.Logger) (*grpcprobe.Prober, shutdownFunc) {
	targets, err := parseTargets(opts.Members.Targets)
	if err != nil {
		panic(fmt.Sprintf("invalid targets: %v", err))
	}

	conf := grpcprobe.DefaultConfig()
	conf.Targets = targets
	conf.WritableService = opts.Check.WritableService
	conf.Logger = logger

	p := grpcprobe.New(conf)

	shutdown := func(ctx context.Context) error {
		logger.Log("msg", "closing probe connections")
		return p.Close()
	}

	return p, shutdown
}

func setupRouter(p faildetector.Prober, metrics *telemetry.Metrics, logger kitlog.Logger) (*router.Router, shutdownFunc) {
	policy, err := faildetector.ParsePolicy(opts.Check.Policy)
	if err != nil {
		panic(err.Error())
	}

	conf := router.DefaultConfig()
	conf.DefaultAlias = opts.Members.Default
	conf.Slaves = parseList(opts.Members.Slaves)
	conf.AsyncCheck = opts.Check.Async
	conf.CheckInterval = time.Duration(opts.Check.Interval * float64(time.Second))
	conf.CheckMaster = opts.Check.Master
	conf.Policy = policy
	conf.ProbeTimeout = time.Duration(opts.Check.ProbeTimeout) * time.Millisecond
	conf.ProbeConcurrency = opts.Check.Concurrency
	conf.Metrics = metrics
	conf.Logger = logger

	rt, err := router.New(conf, p)
	if err != nil {
		panic(fmt.Sprintf("failed to create router: %v", err))
	}

	if !rt.Start() {
		level.Warn(logger).Log("msg", "failover checker is disabled, state will not change")
	}

	shutdown := func(ctx context.Context) error {
		logger.Log("msg", "stopping failover checker")

		if !rt.Stop() {
			return fmt.Errorf("failover checker did not stop in time")
		}

		return nil
	}

	return rt, shutdown
}

func setupPublisher(wg *sync.WaitGroup, rt *router.Router, logger kitlog.Logger) shutdownFunc {
	endpoints := parseList(opts.Etcd.Endpoints)
	if len(endpoints) == 0 {
		return noopShutdown
	}

	client, err := discovery.NewClient(endpoints, 5*time.Second)
	if err != nil {
		panic(fmt.Sprintf("failed to create etcd client: %v", err))
	}

	conf := discovery.DefaultConfig()
	conf.Prefix = opts.Etcd.Prefix
	conf.Logger = logger

	pub := discovery.NewPublisher(client, conf)
	rt.Registry().Subscribe(pub.Listener())
	pub.Enqueue(rt.Registry().State())

	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)

	go func() {
		defer wg.Done()
		pub.Run(ctx)
	}()

	return func(ctx context.Context) error {
		logger.Log("msg", "closing etcd publisher")
		cancel()

		if err := pub.Flush(ctx); err != nil {
			level.Warn(logger).Log("msg", "failed to flush topology", "err", err)
		}

		return client.Close()
	}
}

func setupAPIServer(wg *sync.WaitGroup, rt *router.Router, metrics *telemetry.Metrics, logger kitlog.Logger) shutdownFunc {
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := api.StartServer(ctx, rt, metrics.Handler(), logger, opts.API.BindAddr); err != nil {
			panic(fmt.Sprintf("failed to start API server: %v", err))
		}
	}()

	return func(ctx context.Context) error {
		logger.Log("msg", "shutting down API server")
		cancel()

		return nil
	}
}
