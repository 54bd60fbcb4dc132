package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/maxpoletaev/replicated/membership"
)

type kvMock struct {
	clientv3.KV

	mut    sync.Mutex
	data   map[string]string
	puts   int
	putErr error

	// blockPut makes the next Put wait for its context and fail.
	blockPut bool
	inFlight chan struct{}
}

func newKVMock() *kvMock {
	return &kvMock{data: make(map[string]string)}
}

func (m *kvMock) Put(ctx context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	m.mut.Lock()

	if m.blockPut {
		m.blockPut = false
		m.mut.Unlock()

		close(m.inFlight)
		<-ctx.Done()

		return nil, ctx.Err()
	}

	defer m.mut.Unlock()

	if m.putErr != nil {
		return nil, m.putErr
	}

	m.puts++
	m.data[key] = val

	return &clientv3.PutResponse{}, nil
}

func (m *kvMock) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	m.mut.Lock()
	defer m.mut.Unlock()

	resp := &clientv3.GetResponse{}

	if val, ok := m.data[key]; ok {
		resp.Kvs = []*mvccpb.KeyValue{{Key: []byte(key), Value: []byte(val)}}
	}

	return resp, nil
}

func TestPublisher_Flush(t *testing.T) {
	kv := newKVMock()
	pub := NewPublisher(kv, DefaultConfig())
	reg := membership.New(membership.Config{Slaves: []string{"s1", "s2"}})
	reg.Subscribe(pub.Listener())

	reg.DeactivateSlave("s2")
	reg.DeactivateMaster()

	require.NoError(t, pub.Flush(context.Background()))
	require.Equal(t, 1, kv.puts)
	require.Equal(t, "/replicated/topology", pub.Key())

	var topo Topology
	require.NoError(t, json.Unmarshal([]byte(kv.data[pub.Key()]), &topo))
	require.Equal(t, Topology{
		Master:          "",
		MasterAvailable: false,
		Slaves:          []string{"s1"},
		Deactivated:     []string{"s2"},
		Version:         2,
	}, topo)

	// Nothing pending.
	require.NoError(t, pub.Flush(context.Background()))
	require.Equal(t, 1, kv.puts)
}

func TestPublisher_SkipsStale(t *testing.T) {
	kv := newKVMock()
	pub := NewPublisher(kv, DefaultConfig())

	pub.Enqueue(membership.State{Master: "a", Version: 5})
	require.NoError(t, pub.Flush(context.Background()))

	pub.Enqueue(membership.State{Master: "b", Version: 4})
	require.NoError(t, pub.Flush(context.Background()))

	topo, ok, err := Load(context.Background(), kv, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", topo.Master)
	require.Equal(t, uint64(5), topo.Version)
}

func TestPublisher_RetryAfterError(t *testing.T) {
	kv := newKVMock()
	kv.putErr = errors.New("etcdserver: request timed out")

	pub := NewPublisher(kv, DefaultConfig())
	pub.Enqueue(membership.State{Master: "a", Version: 1})

	require.Error(t, pub.Flush(context.Background()))

	kv.mut.Lock()
	kv.putErr = nil
	kv.mut.Unlock()

	require.NoError(t, pub.Flush(context.Background()))
	require.Equal(t, 1, kv.puts)
}

func TestPublisher_Run(t *testing.T) {
	kv := newKVMock()
	conf := DefaultConfig()
	conf.Prefix = "/cluster-a"
	pub := NewPublisher(kv, conf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		pub.Run(ctx)
	}()

	pub.Enqueue(membership.State{Master: "default", Slaves: []string{"s1"}, Version: 1})

	require.Eventually(t, func() bool {
		topo, ok, err := Load(context.Background(), kv, "/cluster-a")
		return err == nil && ok && topo.Version == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestPublisher_FlushAfterCancelledRun(t *testing.T) {
	kv := newKVMock()
	kv.blockPut = true
	kv.inFlight = make(chan struct{})

	pub := NewPublisher(kv, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		pub.Run(ctx)
	}()

	pub.Enqueue(membership.State{Master: "default", Slaves: []string{"s1"}, Version: 7})
	<-kv.inFlight

	// Shutdown order used by failoverd: cancel the loop, then flush.
	cancel()
	require.NoError(t, pub.Flush(context.Background()))
	<-done

	require.Equal(t, 1, kv.puts)

	topo, ok, err := Load(context.Background(), kv, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), topo.Version)
}

func TestPublisher_ConcurrentFlush(t *testing.T) {
	kv := newKVMock()
	pub := NewPublisher(kv, DefaultConfig())
	wg := sync.WaitGroup{}

	for i := 1; i <= 20; i++ {
		wg.Add(1)

		go func(version uint64) {
			defer wg.Done()
			pub.Enqueue(membership.State{Master: "default", Version: version})
			_ = pub.Flush(context.Background())
		}(uint64(i))
	}

	wg.Wait()

	topo, ok, err := Load(context.Background(), kv, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(20), topo.Version)
}

func TestLoad_Missing(t *testing.T) {
	_, ok, err := Load(context.Background(), newKVMock(), "/nothing")
	require.NoError(t, err)
	require.False(t, ok)
}
