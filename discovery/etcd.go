// Package discovery publishes the failover topology to etcd, so that processes
// which do not run their own checker can follow the current master.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/maxpoletaev/replicated/membership"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "/replicated"

// NewClient creates an etcd client. The client's own logging is disabled, errors
// are reported by the publisher instead.
func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      zap.NewNop(),
	})
}

// Topology is the document stored under <prefix>/topology.
type Topology struct {
	Master          string   `json:"master"`
	MasterAvailable bool     `json:"master_available"`
	Slaves          []string `json:"slaves"`
	Deactivated     []string `json:"deactivated"`
	Version         uint64   `json:"version"`
}

func TopologyFromState(s membership.State) Topology {
	t := Topology{
		Master:          s.Master,
		MasterAvailable: s.HasMaster(),
		Slaves:          s.Slaves,
		Deactivated:     s.Deactivated,
		Version:         s.Version,
	}

	if t.Slaves == nil {
		t.Slaves = []string{}
	}

	if t.Deactivated == nil {
		t.Deactivated = []string{}
	}

	return t
}

type Config struct {
	Prefix       string
	WriteTimeout time.Duration
	Logger       kitlog.Logger
}

func DefaultConfig() Config {
	return Config{
		Prefix:       DefaultPrefix,
		WriteTimeout: 3 * time.Second,
		Logger:       kitlog.NewNopLogger(),
	}
}

// Publisher writes registry snapshots to etcd from a background goroutine.
// Only the latest pending snapshot is written, and a snapshot never replaces
// one with a higher version.
type Publisher struct {
	kv           clientv3.KV
	key          string
	writeTimeout time.Duration
	logger       kitlog.Logger

	mut       sync.Mutex
	pending   *membership.State
	published uint64
	notify    chan struct{}

	// flushMut is held across the etcd write, so a snapshot that is being
	// written is either on the server or back in pending once it is released.
	flushMut sync.Mutex
}

func NewPublisher(kv clientv3.KV, conf Config) *Publisher {
	if conf.Prefix == "" {
		conf.Prefix = DefaultPrefix
	}

	if conf.Logger == nil {
		conf.Logger = kitlog.NewNopLogger()
	}

	if conf.WriteTimeout <= 0 {
		conf.WriteTimeout = 3 * time.Second
	}

	return &Publisher{
		kv:           kv,
		key:          path.Join(conf.Prefix, "topology"),
		writeTimeout: conf.WriteTimeout,
		logger:       conf.Logger,
		notify:       make(chan struct{}, 1),
	}
}

// Key returns the etcd key the topology is written to.
func (p *Publisher) Key() string {
	return p.key
}

// Listener returns a registry listener that schedules a publish. It never blocks.
func (p *Publisher) Listener() membership.Listener {
	return func(e membership.Event) {
		p.Enqueue(e.State)
	}
}

// Enqueue schedules the snapshot for publishing, replacing any pending older one.
func (p *Publisher) Enqueue(s membership.State) {
	p.mut.Lock()

	if p.pending == nil || p.pending.Version < s.Version {
		p.pending = &s
	}

	p.mut.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run writes pending snapshots until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.notify:
			if err := p.Flush(ctx); err != nil {
				level.Error(p.logger).Log("msg", "failed to publish topology", "key", p.key, "err", err)
			}
		}
	}
}

// Flush writes the pending snapshot, if any, synchronously. Concurrent calls
// are serialized, so a Flush made after Run was cancelled also writes the
// snapshot Run failed to deliver.
func (p *Publisher) Flush(ctx context.Context) error {
	p.flushMut.Lock()
	defer p.flushMut.Unlock()

	p.mut.Lock()
	s := p.pending
	p.pending = nil
	published := p.published
	p.mut.Unlock()

	if s == nil || (s.Version <= published && published != 0) {
		return nil
	}

	data, err := json.Marshal(TopologyFromState(*s))
	if err != nil {
		return fmt.Errorf("marshal topology: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	if _, err := p.kv.Put(ctx, p.key, string(data)); err != nil {
		// Put the snapshot back unless a newer one arrived meanwhile.
		p.mut.Lock()
		if p.pending == nil {
			p.pending = s
		}
		p.mut.Unlock()

		return fmt.Errorf("put %s: %w", p.key, err)
	}

	p.mut.Lock()
	if s.Version > p.published {
		p.published = s.Version
	}
	p.mut.Unlock()

	level.Debug(p.logger).Log("msg", "topology published", "key", p.key, "version", s.Version)

	return nil
}

// Load reads the topology back from etcd.
func Load(ctx context.Context, kv clientv3.KV, prefix string) (Topology, bool, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	resp, err := kv.Get(ctx, path.Join(prefix, "topology"))
	if err != nil {
		return Topology{}, false, fmt.Errorf("get topology: %w", err)
	}

	if len(resp.Kvs) == 0 {
		return Topology{}, false, nil
	}

	var t Topology
	if err := json.Unmarshal(resp.Kvs[0].Value, &t); err != nil {
		return Topology{}, false, fmt.Errorf("unmarshal topology: %w", err)
	}

	return t, true, nil
}
