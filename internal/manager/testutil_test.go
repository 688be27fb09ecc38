package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forged/internal/events"
	"forged/pkg/types"
)

const gib = int64(1) << 30

// fakeProbe returns a configurable snapshot.
type fakeProbe struct {
	mu   sync.Mutex
	info types.VRAMInfo
}

func (p *fakeProbe) Probe() types.VRAMInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

func (p *fakeProbe) set(info types.VRAMInfo) {
	p.mu.Lock()
	p.info = info
	p.mu.Unlock()
}

// capturePublisher records events in order.
type capturePublisher struct {
	mu  sync.Mutex
	evs []events.Event
}

func (c *capturePublisher) Publish(ev events.Event) {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
}

func (c *capturePublisher) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.evs))
	for _, ev := range c.evs {
		out = append(out, ev.Name+":"+ev.Workload)
	}
	return out
}

// fakeRuntime is an in-memory compute backend for tests.
type fakeRuntime struct {
	acquireErr error
	genErr     error
	releaseErr error
	// blockGen, when non-nil, makes Generate wait until the channel closes.
	blockGen chan struct{}
	artifact Artifact

	acquires  int32
	generates int32
	releases  int32
	trims     int32

	mu      sync.Mutex
	lastReq GenRequest
}

func (r *fakeRuntime) Acquire(_ context.Context) (Handle, error) {
	atomic.AddInt32(&r.acquires, 1)
	if r.acquireErr != nil {
		return nil, r.acquireErr
	}
	return &fakeHandle{rt: r}, nil
}

func (r *fakeRuntime) TrimCache() { atomic.AddInt32(&r.trims, 1) }

type fakeHandle struct{ rt *fakeRuntime }

func (h *fakeHandle) Generate(ctx context.Context, req GenRequest) (Artifact, error) {
	atomic.AddInt32(&h.rt.generates, 1)
	h.rt.mu.Lock()
	h.rt.lastReq = req
	h.rt.mu.Unlock()
	if h.rt.blockGen != nil {
		select {
		case <-h.rt.blockGen:
		case <-ctx.Done():
			return Artifact{}, ctx.Err()
		}
	}
	if h.rt.genErr != nil {
		return Artifact{}, h.rt.genErr
	}
	art := h.rt.artifact
	if art.Path == "" {
		art = Artifact{Path: req.OutputPath, SizeBytes: 42}
	}
	return art, nil
}

func (h *fakeHandle) Release() error {
	atomic.AddInt32(&h.rt.releases, 1)
	return h.rt.releaseErr
}

type testEnv struct {
	m     *Manager
	image *fakeRuntime
	mesh  *fakeRuntime
	probe *fakeProbe
	pub   *capturePublisher
}

// newTestEnv builds a manager with a 16 GiB device and the default model
// requirements, all backed by fakes.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		image: &fakeRuntime{},
		mesh:  &fakeRuntime{},
		probe: &fakeProbe{info: types.VRAMInfo{
			Available:  true,
			TotalBytes: 16 * gib,
			FreeBytes:  14 * gib,
			DeviceName: "fake-gpu",
		}},
		pub: &capturePublisher{},
	}
	env.m = NewWithConfig(ManagerConfig{
		Runtimes: map[types.Workload]Runtime{
			types.WorkloadImage: env.image,
			types.WorkloadMesh:  env.mesh,
		},
		RequiredBytes: map[types.Workload]int64{
			types.WorkloadImage: 8 * gib,
			types.WorkloadMesh:  6 * gib,
		},
		BufferBytes: 2 * gib,
		Probe:       env.probe,
		Publisher:   env.pub,
		Logger:      zerolog.Nop(),
	})
	return env
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
