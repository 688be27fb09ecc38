package manager

import (
	"context"
	"path/filepath"
	"time"

	"forged/internal/events"
	"forged/pkg/types"
)

// Artifact names inside a pipeline job directory.
const (
	PipelineImageFile = "generated_image.png"
	PipelineMeshFile  = "generated_mesh.glb"
)

// GeneratePipeline runs the full text-to-3D workflow: prompt -> image ->
// mesh. The gate is acquired once and held across both stages, so no other
// caller can interleave between them; the stages themselves are the same
// gate-free core the single-stage entry points use.
//
// A mesh-stage failure still returns the image result so the intermediate
// artifact stays available for diagnostics.
func (m *Manager) GeneratePipeline(ctx context.Context, req PipelineRequest) (PipelineResult, error) {
	if !m.tryAcquireGate() {
		return PipelineResult{}, busyError{op: "pipeline"}
	}
	defer m.releaseGate()

	m.log.Info().Str("job_id", req.JobID).Msg("pipeline start: prompt -> image -> mesh")
	m.pub.Publish(events.Event{Name: "pipeline_start", JobID: req.JobID})
	start := time.Now()

	imageRes, err := m.generate(ctx, types.WorkloadImage, GenRequest{
		JobID:      req.JobID,
		Prompt:     req.Prompt,
		OutputPath: filepath.Join(req.OutputDir, PipelineImageFile),
		Steps:      req.Steps,
	})
	if err != nil {
		m.pub.Publish(events.Event{Name: "pipeline_failed", JobID: req.JobID,
			Fields: map[string]any{"stage": StageImage, "error": err.Error()}})
		return PipelineResult{}, pipelineStageError{stage: StageImage, err: err}
	}

	meshRes, err := m.generate(ctx, types.WorkloadMesh, GenRequest{
		JobID:      req.JobID,
		ImagePath:  imageRes.Artifact.Path,
		OutputPath: filepath.Join(req.OutputDir, PipelineMeshFile),
	})
	if err != nil {
		m.pub.Publish(events.Event{Name: "pipeline_failed", JobID: req.JobID,
			Fields: map[string]any{"stage": StageMesh, "error": err.Error()}})
		return PipelineResult{Image: imageRes}, pipelineStageError{stage: StageMesh, err: err}
	}

	elapsed := time.Since(start)
	m.log.Info().Str("job_id", req.JobID).Dur("elapsed", elapsed).Msg("pipeline complete")
	m.pub.Publish(events.Event{Name: "pipeline_done", JobID: req.JobID,
		Fields: map[string]any{"elapsed_ms": elapsed.Milliseconds()}})

	return PipelineResult{
		Image:     imageRes,
		Mesh:      meshRes,
		Elapsed:   elapsed,
		VRAMAfter: m.probe.Probe(),
	}, nil
}
