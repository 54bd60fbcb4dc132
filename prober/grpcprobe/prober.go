// Package grpcprobe checks members through the standard gRPC health checking
// protocol. A member is alive when its overall health ("" service) is SERVING
// and writable when the configured write service is SERVING.
package grpcprobe

import (
	"context"
	"fmt"
	"sync"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/maxpoletaev/replicated/internal/grpcutil"
	"github.com/maxpoletaev/replicated/internal/multierror"
	"github.com/maxpoletaev/replicated/prober"
)

// DefaultWritableService is the health service name a member reports as
// SERVING while it accepts writes.
const DefaultWritableService = "writable"

var _ prober.Prober = (*Prober)(nil)

type Config struct {
	// Targets maps member aliases to gRPC targets, e.g. "db-1:50051".
	Targets map[string]string

	// WritableService is the health service checked by Writable.
	WritableService string

	// DialOptions replace the default options (insecure transport).
	DialOptions []grpc.DialOption

	Logger kitlog.Logger
}

func DefaultConfig() Config {
	return Config{
		Targets:         make(map[string]string),
		WritableService: DefaultWritableService,
		Logger:          kitlog.NewNopLogger(),
	}
}

// Prober keeps one client connection per alias. Connections are created
// lazily on first use and reused between probes.
type Prober struct {
	mut             sync.Mutex
	targets         map[string]string
	conns           map[string]*grpc.ClientConn
	writableService string
	dialOpts        []grpc.DialOption
	logger          kitlog.Logger
}

func New(conf Config) *Prober {
	if conf.Logger == nil {
		conf.Logger = kitlog.NewNopLogger()
	}

	if conf.WritableService == "" {
		conf.WritableService = DefaultWritableService
	}

	dialOpts := conf.DialOptions
	if len(dialOpts) == 0 {
		dialOpts = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		}
	}

	targets := make(map[string]string, len(conf.Targets))
	for alias, target := range conf.Targets {
		targets[alias] = target
	}

	return &Prober{
		targets:         targets,
		conns:           make(map[string]*grpc.ClientConn),
		writableService: conf.WritableService,
		dialOpts:        dialOpts,
		logger:          conf.Logger,
	}
}

func (p *Prober) conn(alias string) (*grpc.ClientConn, error) {
	p.mut.Lock()
	defer p.mut.Unlock()

	if conn, ok := p.conns[alias]; ok {
		return conn, nil
	}

	target, ok := p.targets[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s", prober.ErrUnknownAlias, alias)
	}

	// NewClient does not perform any I/O, so it is fine to hold the lock here.
	conn, err := grpc.NewClient(target, p.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client for %s: %w", target, err)
	}

	level.Debug(p.logger).Log("msg", "created grpc client", "alias", alias, "target", target)

	p.conns[alias] = conn

	return conn, nil
}

func (p *Prober) check(ctx context.Context, alias, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := p.conn(alias)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{
		Service: service,
	})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}

	return resp.Status, nil
}

// Alive returns nil if the member reports itself as SERVING.
func (p *Prober) Alive(ctx context.Context, alias string) error {
	status, err := p.check(ctx, alias, "")
	if err != nil {
		return fmt.Errorf("health check %s: %w", alias, err)
	}

	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("member %s is %s", alias, status)
	}

	return nil
}

// Writable reports whether the write service is SERVING. A member that does not
// register the write service at all is considered read-only.
func (p *Prober) Writable(ctx context.Context, alias string) (bool, error) {
	status, err := p.check(ctx, alias, p.writableService)
	if err != nil {
		if grpcutil.IsNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("health check %s: %w", alias, err)
	}

	return status == healthpb.HealthCheckResponse_SERVING, nil
}

// Close closes all connections.
func (p *Prober) Close() error {
	p.mut.Lock()
	defer p.mut.Unlock()

	errs := multierror.New[string]()

	for alias, conn := range p.conns {
		if err := conn.Close(); err != nil {
			errs.Add(alias, err)
		}

		delete(p.conns, alias)
	}

	return errs.Ret()
}
