package types

// GenerateImageRequest is the payload for POST /generate/image.
type GenerateImageRequest struct {
	// Required prompt text describing the desired image.
	Prompt string `json:"prompt"`
	// Image width in pixels (default 1024, 512..2048).
	Width int `json:"width,omitempty"`
	// Image height in pixels (default 1024, 512..2048).
	Height int `json:"height,omitempty"`
	// Diffusion steps (default 25, 10..100).
	Steps int `json:"steps,omitempty"`
}

// GeneratePipelineRequest is the payload for POST /generate/full.
type GeneratePipelineRequest struct {
	// Required prompt text describing the desired 3D object.
	Prompt string `json:"prompt"`
	// Diffusion steps for the image stage.
	Steps int `json:"steps,omitempty"`
}

// GenerateResponse is returned by the single-stage generate endpoints.
type GenerateResponse struct {
	JobID string `json:"job_id"`
	// Download path for the artifact, e.g. /download/<job>/<file>.
	Path string `json:"path"`
	// Wall-clock generation time in milliseconds.
	GenerationMS int64 `json:"generation_ms"`
	// Size of the artifact on disk.
	FileSizeBytes int64 `json:"file_size_bytes"`
	// Device memory snapshot taken after the operation.
	VRAMAfter VRAMInfo `json:"vram_after"`
}

// PipelineResponse is returned by POST /generate/full.
type PipelineResponse struct {
	JobID     string `json:"job_id"`
	ImagePath string `json:"image_path"`
	MeshPath  string `json:"mesh_path"`
	// Per-stage results keyed by stage name ("image", "mesh").
	Stages    map[string]GenerateResponse `json:"stages"`
	TotalMS   int64                       `json:"total_ms"`
	VRAMAfter VRAMInfo                    `json:"vram_after"`
}

// ModelStatus summarizes one workload slot for GET /status.
type ModelStatus struct {
	// Lifecycle state: unloaded, loading, ready, busy, unloading, error.
	State string `json:"state"`
	// Number of successful loads since process start.
	LoadCount int `json:"load_count"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Models map[string]ModelStatus `json:"models"`
	// Total successful generations since process start.
	GenerationCount int `json:"generation_count"`
	// Average generation time in milliseconds (0 when no generations yet).
	AvgGenerationMS int64 `json:"avg_generation_ms"`
	// True once GenerationCount reached the configured restart threshold.
	// Signals the operator to recycle the process to shed fragmentation.
	NeedsRestart bool `json:"needs_restart"`
	// Total model loads and evictions since process start.
	LoadsTotal     uint64   `json:"loads_total"`
	EvictionsTotal uint64   `json:"evictions_total"`
	VRAM           VRAMInfo `json:"vram"`
	UptimeSeconds  int64    `json:"uptime_seconds"`
	ServerTimeUnix int64    `json:"server_time_unix"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status          string                 `json:"status"`
	GPUAvailable    bool                   `json:"gpu_available"`
	GPUName         string                 `json:"gpu_name,omitempty"`
	VRAMTotalBytes  int64                  `json:"vram_total_bytes,omitempty"`
	VRAMFreeBytes   int64                  `json:"vram_free_bytes,omitempty"`
	Models          map[string]ModelStatus `json:"models"`
	GenerationCount int                    `json:"generation_count"`
}

// ModelsResponse wraps the list of managed models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	Error string `json:"error"`
	// HTTP status code.
	Code int `json:"code"`
	// Pipeline stage that failed ("image" or "mesh"), when applicable.
	Stage string `json:"stage,omitempty"`
}
