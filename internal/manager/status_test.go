package manager

import (
	"context"
	"testing"
	"time"

	"forged/pkg/types"
)

func TestStatusSafeWhileGateHeld(t *testing.T) {
	env := newTestEnv(t)
	env.image.blockGen = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := env.m.GenerateImage(context.Background(), ImageRequest{Prompt: "x", OutputPath: "/tmp/a.png"})
		done <- err
	}()
	waitFor(t, "image slot busy", func() bool {
		return env.m.stateOf(types.WorkloadImage) == StateBusy
	})

	start := time.Now()
	st := env.m.Status()
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("status blocked behind gate: %v", d)
	}
	if st.Models[string(types.WorkloadImage)].State != string(StateBusy) {
		t.Fatalf("busy state not reported: %+v", st.Models)
	}
	if !st.VRAM.Available {
		t.Fatalf("vram snapshot missing")
	}

	close(env.image.blockGen)
	if err := <-done; err != nil {
		t.Fatalf("generation: %v", err)
	}
}

func TestStatusCountersAndAverages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	st := env.m.Status()
	if st.GenerationCount != 0 || st.AvgGenerationMS != 0 {
		t.Fatalf("fresh stats not zero: %+v", st)
	}

	if _, err := env.m.GenerateImage(ctx, ImageRequest{Prompt: "x", OutputPath: "/tmp/a.png"}); err != nil {
		t.Fatalf("image: %v", err)
	}
	if _, err := env.m.GenerateMesh(ctx, MeshRequest{ImagePath: "/tmp/a.png", OutputPath: "/tmp/a.glb"}); err != nil {
		t.Fatalf("mesh: %v", err)
	}

	st = env.m.Status()
	if st.GenerationCount != 2 {
		t.Fatalf("generation count: %d", st.GenerationCount)
	}
	if st.LoadsTotal != 2 {
		t.Fatalf("loads total: %d", st.LoadsTotal)
	}
	if st.EvictionsTotal != 1 {
		t.Fatalf("evictions total: %d", st.EvictionsTotal)
	}
	if st.ServerTimeUnix == 0 {
		t.Fatalf("server time missing")
	}
	if st.UptimeSeconds < 0 {
		t.Fatalf("uptime negative")
	}
}

func TestStatusReportsDeviceSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.probe.set(types.VRAMInfo{Available: true, TotalBytes: 16 * gib, FreeBytes: 3 * gib, DeviceName: "rtx"})
	st := env.m.Status()
	if st.VRAM.DeviceName != "rtx" || st.VRAM.FreeBytes != 3*gib {
		t.Fatalf("vram passthrough: %+v", st.VRAM)
	}
}
