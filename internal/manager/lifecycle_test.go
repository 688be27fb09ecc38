package manager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"forged/pkg/types"
)

// residentCount counts slots observed in ready or busy.
func residentCount(m *Manager) int {
	n := 0
	for _, st := range m.Status().Models {
		if st.State == string(StateReady) || st.State == string(StateBusy) {
			n++
		}
	}
	return n
}

func TestSingleResidency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.m.GenerateImage(ctx, ImageRequest{JobID: "j1", Prompt: "a cube", OutputPath: "/tmp/j1.png"}); err != nil {
		t.Fatalf("image: %v", err)
	}
	if got := residentCount(env.m); got != 1 {
		t.Fatalf("resident slots after image: %d", got)
	}

	if _, err := env.m.GenerateMesh(ctx, MeshRequest{JobID: "j2", ImagePath: "/tmp/j1.png", OutputPath: "/tmp/j2.glb"}); err != nil {
		t.Fatalf("mesh: %v", err)
	}
	st := env.m.Status()
	if st.Models[string(types.WorkloadImage)].State != string(StateUnloaded) {
		t.Fatalf("image slot not evicted: %s", st.Models[string(types.WorkloadImage)].State)
	}
	if st.Models[string(types.WorkloadMesh)].State != string(StateReady) {
		t.Fatalf("mesh slot not ready: %s", st.Models[string(types.WorkloadMesh)].State)
	}
	if got := residentCount(env.m); got != 1 {
		t.Fatalf("resident slots after mesh: %d", got)
	}
	if n := atomic.LoadInt32(&env.image.releases); n != 1 {
		t.Fatalf("image handle releases: %d", n)
	}
}

func TestEvictionRunsBeforeLoad(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.m.GenerateImage(ctx, ImageRequest{Prompt: "x", OutputPath: "/tmp/a.png"}); err != nil {
		t.Fatalf("image: %v", err)
	}
	if _, err := env.m.GenerateMesh(ctx, MeshRequest{ImagePath: "/tmp/a.png", OutputPath: "/tmp/a.glb"}); err != nil {
		t.Fatalf("mesh: %v", err)
	}

	names := env.pub.names()
	evictIdx, loadIdx := -1, -1
	for i, n := range names {
		if n == "evict:image" && evictIdx == -1 {
			evictIdx = i
		}
		if n == "load_start:mesh" {
			loadIdx = i
		}
	}
	if evictIdx == -1 || loadIdx == -1 {
		t.Fatalf("missing events, got %v", names)
	}
	if evictIdx > loadIdx {
		t.Fatalf("eviction after load: evict=%d load=%d (%v)", evictIdx, loadIdx, names)
	}
}

func TestHandleStateCoupling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// unloaded: nil handle
	if env.m.slotOf(types.WorkloadImage).handle != nil {
		t.Fatalf("unloaded slot holds a handle")
	}

	// ready: non-nil handle
	if _, err := env.m.GenerateImage(ctx, ImageRequest{Prompt: "x", OutputPath: "/tmp/a.png"}); err != nil {
		t.Fatalf("image: %v", err)
	}
	s := env.m.slotOf(types.WorkloadImage)
	if s.state != StateReady || s.handle == nil {
		t.Fatalf("ready slot: state=%s handle=%v", s.state, s.handle)
	}

	// acquisition failure: error state, nil handle
	env.mesh.acquireErr = errors.New("cuda out of memory")
	if _, err := env.m.GenerateMesh(ctx, MeshRequest{ImagePath: "/tmp/a.png", OutputPath: "/tmp/a.glb"}); !IsAcquisitionFailed(err) {
		t.Fatalf("expected acquisition failure, got %v", err)
	}
	s = env.m.slotOf(types.WorkloadMesh)
	if s.state != StateError || s.handle != nil {
		t.Fatalf("failed slot: state=%s handle=%v", s.state, s.handle)
	}
}

func TestReleaseFailureClearsHandle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.image.releaseErr = errors.New("device hung")
	if _, err := env.m.GenerateImage(ctx, ImageRequest{Prompt: "x", OutputPath: "/tmp/a.png"}); err != nil {
		t.Fatalf("image: %v", err)
	}
	// loading mesh evicts image; the failed release must still clear the handle
	if _, err := env.m.GenerateMesh(ctx, MeshRequest{ImagePath: "/tmp/a.png", OutputPath: "/tmp/a.glb"}); err != nil {
		t.Fatalf("mesh: %v", err)
	}
	s := env.m.slotOf(types.WorkloadImage)
	if s.state != StateError {
		t.Fatalf("image slot state: %s", s.state)
	}
	if s.handle != nil {
		t.Fatalf("image handle leaked after failed release")
	}
}

func TestErrorSlotRecoverableByLoad(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.image.acquireErr = errors.New("download interrupted")
	if _, err := env.m.GenerateImage(ctx, ImageRequest{Prompt: "x", OutputPath: "/tmp/a.png"}); !IsAcquisitionFailed(err) {
		t.Fatalf("expected acquisition failure, got %v", err)
	}

	env.image.acquireErr = nil
	if _, err := env.m.GenerateImage(ctx, ImageRequest{Prompt: "x", OutputPath: "/tmp/a.png"}); err != nil {
		t.Fatalf("retry after error: %v", err)
	}
	s := env.m.slotOf(types.WorkloadImage)
	if s.state != StateReady || s.loadCount != 1 {
		t.Fatalf("recovered slot: state=%s loadCount=%d", s.state, s.loadCount)
	}
}

func TestShutdownWaitsForInflightGeneration(t *testing.T) {
	env := newTestEnv(t)
	env.image.blockGen = make(chan struct{})

	genDone := make(chan error, 1)
	go func() {
		_, err := env.m.GenerateImage(context.Background(), ImageRequest{JobID: "j1", Prompt: "x", OutputPath: "/tmp/a.png"})
		genDone <- err
	}()
	waitFor(t, "generation in flight", func() bool {
		return env.m.Status().Models[string(types.WorkloadImage)].State == string(StateBusy)
	})

	shutDone := make(chan struct{})
	go func() {
		env.m.Shutdown()
		close(shutDone)
	}()
	select {
	case <-shutDone:
		t.Fatal("shutdown finished while a generation was running")
	case <-time.After(100 * time.Millisecond):
	}
	if n := atomic.LoadInt32(&env.image.releases); n != 0 {
		t.Fatalf("handle released mid-generation: %d", n)
	}

	close(env.image.blockGen)
	if err := <-genDone; err != nil {
		t.Fatalf("generate: %v", err)
	}
	<-shutDone
	if n := atomic.LoadInt32(&env.image.releases); n != 1 {
		t.Fatalf("releases after shutdown: %d", n)
	}
}

func TestShutdownEvictsAfterGateWait(t *testing.T) {
	env := newTestEnv(t)
	orig := shutdownGateWait
	shutdownGateWait = 50 * time.Millisecond
	defer func() { shutdownGateWait = orig }()

	env.image.blockGen = make(chan struct{})
	genDone := make(chan struct{})
	go func() {
		_, _ = env.m.GenerateImage(context.Background(), ImageRequest{JobID: "j1", Prompt: "x", OutputPath: "/tmp/a.png"})
		close(genDone)
	}()
	waitFor(t, "generation in flight", func() bool {
		return env.m.Status().Models[string(types.WorkloadImage)].State == string(StateBusy)
	})

	// The generation never finishes; shutdown proceeds once the wait elapses.
	start := time.Now()
	env.m.Shutdown()
	if d := time.Since(start); d < 50*time.Millisecond {
		t.Fatalf("shutdown did not wait for the gate: %v", d)
	}
	if n := atomic.LoadInt32(&env.image.releases); n != 1 {
		t.Fatalf("releases after forced shutdown: %d", n)
	}

	close(env.image.blockGen)
	<-genDone
}

func TestShutdownIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.m.GenerateImage(ctx, ImageRequest{Prompt: "x", OutputPath: "/tmp/a.png"}); err != nil {
		t.Fatalf("image: %v", err)
	}
	if !env.m.Ready() {
		t.Fatalf("manager not ready before shutdown")
	}

	env.m.Shutdown()
	if env.m.Ready() {
		t.Fatalf("manager still ready after shutdown")
	}
	if st := env.m.Status().Models[string(types.WorkloadImage)].State; st != string(StateUnloaded) {
		t.Fatalf("image slot after shutdown: %s", st)
	}
	if n := atomic.LoadInt32(&env.image.releases); n != 1 {
		t.Fatalf("releases after shutdown: %d", n)
	}

	env.m.Shutdown()
	if n := atomic.LoadInt32(&env.image.releases); n != 1 {
		t.Fatalf("second shutdown released again: %d", n)
	}
}
