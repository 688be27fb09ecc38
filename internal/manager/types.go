package manager

import (
	"context"
	"time"

	"forged/pkg/types"
)

// SlotState is the lifecycle state of one workload slot.
type SlotState string

const (
	StateUnloaded  SlotState = "unloaded"
	StateLoading   SlotState = "loading"
	StateReady     SlotState = "ready"
	StateBusy      SlotState = "busy"
	StateUnloading SlotState = "unloading"
	StateError     SlotState = "error"
)

// slot is one entry of the slot table. The handle is owned exclusively by the
// slot: it is non-nil only between a successful acquire and the matching
// release, and unloaded/error slots never hold one.
type slot struct {
	state     SlotState
	handle    Handle
	loadCount int
}

// Runtime acquires model resources for one workload kind. Acquire blocks for
// the duration of the load; it is the backend's job to honor ctx.
type Runtime interface {
	Acquire(ctx context.Context) (Handle, error)
}

// Handle is a loaded model. Generate blocks for the duration of the compute
// call. A Generate failure does not invalidate the handle; only Release ends
// its life.
type Handle interface {
	Generate(ctx context.Context, req GenRequest) (Artifact, error)
	Release() error
}

// CacheTrimmer is implemented by runtimes that can drop internal caches
// during a reclamation pass.
type CacheTrimmer interface {
	TrimCache()
}

// GenRequest is the input handed to a Handle. One struct covers both
// workloads; unused fields are zero.
type GenRequest struct {
	JobID      string
	Prompt     string
	ImagePath  string
	OutputPath string
	Width      int
	Height     int
	Steps      int
	Guidance   float64
}

// Artifact is the single output shape every backend must commit to.
type Artifact struct {
	Path      string
	SizeBytes int64
}

// ImageRequest drives one text-to-image generation.
type ImageRequest struct {
	JobID      string
	Prompt     string
	OutputPath string
	Width      int
	Height     int
	Steps      int
	Guidance   float64
}

// MeshRequest drives one image-to-mesh generation.
type MeshRequest struct {
	JobID      string
	ImagePath  string
	OutputPath string
	Steps      int
}

// PipelineRequest drives the full text-to-3D pipeline.
type PipelineRequest struct {
	JobID     string
	Prompt    string
	Steps     int
	OutputDir string
}

// Result is returned by a successful single-stage generation.
type Result struct {
	Artifact  Artifact
	Elapsed   time.Duration
	VRAMAfter types.VRAMInfo
}

// PipelineResult is returned by GeneratePipeline. On a mesh-stage failure the
// Image result is still populated so the caller can keep the intermediate
// artifact for diagnostics.
type PipelineResult struct {
	Image     Result
	Mesh      Result
	Elapsed   time.Duration
	VRAMAfter types.VRAMInfo
}
