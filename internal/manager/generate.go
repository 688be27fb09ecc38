package manager

import (
	"context"
	"time"

	"forged/internal/events"
	"forged/pkg/types"
)

// GenerateImage renders one image from a text prompt. Fails fast with a busy
// error when another operation holds the execution gate.
func (m *Manager) GenerateImage(ctx context.Context, req ImageRequest) (Result, error) {
	if !m.tryAcquireGate() {
		return Result{}, busyError{op: StageImage}
	}
	defer m.releaseGate()
	return m.generate(ctx, types.WorkloadImage, GenRequest{
		JobID:      req.JobID,
		Prompt:     req.Prompt,
		OutputPath: req.OutputPath,
		Width:      req.Width,
		Height:     req.Height,
		Steps:      req.Steps,
		Guidance:   req.Guidance,
	})
}

// GenerateMesh reconstructs a mesh from one input image.
func (m *Manager) GenerateMesh(ctx context.Context, req MeshRequest) (Result, error) {
	if !m.tryAcquireGate() {
		return Result{}, busyError{op: StageMesh}
	}
	defer m.releaseGate()
	return m.generate(ctx, types.WorkloadMesh, GenRequest{
		JobID:      req.JobID,
		ImagePath:  req.ImagePath,
		OutputPath: req.OutputPath,
		Steps:      req.Steps,
	})
}

// generate is the gate-free core shared by the single-stage entry points and
// the pipeline orchestrator. The caller must hold the execution gate.
//
// The slot returns to ready even when the compute call fails: a failure
// inside compute does not invalidate the handle. Only a failed acquisition
// does, and that path is handled in ensureReady.
func (m *Manager) generate(ctx context.Context, wl types.Workload, req GenRequest) (Result, error) {
	if err := m.ensureReady(ctx, wl); err != nil {
		return Result{}, err
	}

	m.setState(wl, StateBusy)
	m.pub.Publish(events.Event{Name: "generate_start", Workload: string(wl), JobID: req.JobID})
	start := time.Now()

	artifact, err := m.handleOf(wl).Generate(ctx, req)

	m.setState(wl, StateReady)
	m.reclaim()

	if err != nil {
		m.log.Error().Err(err).Str("workload", string(wl)).Str("job_id", req.JobID).Msg("generation failed")
		m.pub.Publish(events.Event{Name: "generate_failed", Workload: string(wl), JobID: req.JobID,
			Fields: map[string]any{"error": err.Error()}})
		return Result{}, computeFailedError{workload: wl, err: err}
	}

	elapsed := time.Since(start)
	m.mu.Lock()
	m.stats.count++
	m.stats.totalElapsed += elapsed
	m.mu.Unlock()

	m.log.Info().Str("workload", string(wl)).Str("job_id", req.JobID).
		Dur("elapsed", elapsed).Str("path", artifact.Path).Msg("generation done")
	m.pub.Publish(events.Event{Name: "generate_done", Workload: string(wl), JobID: req.JobID,
		Fields: map[string]any{"elapsed_ms": elapsed.Milliseconds(), "path": artifact.Path}})

	return Result{Artifact: artifact, Elapsed: elapsed, VRAMAfter: m.probe.Probe()}, nil
}
