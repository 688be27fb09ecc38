package types

// Workload identifies one managed model kind. The daemon manages exactly one
// GPU, so at most one workload's model is resident at a time.
type Workload string

const (
	// WorkloadImage is the text-to-image diffusion model.
	WorkloadImage Workload = "image"
	// WorkloadMesh is the image-to-mesh reconstruction model.
	WorkloadMesh Workload = "mesh"
)

// Model describes a managed model backing one workload.
type Model struct {
	// Workload this model serves.
	Workload Workload `json:"workload"`
	// Human-friendly name, e.g. "SDXL".
	Name string `json:"name"`
	// Worker script that hosts the model.
	Script string `json:"script,omitempty"`
	// Estimated VRAM required to load, in bytes.
	RequiredVRAMBytes int64 `json:"required_vram_bytes"`
}

// VRAMInfo is one snapshot of device memory, as reported by the probe.
// Available=false means the device could not be queried; all byte fields are
// zero in that case and Error carries a diagnostic.
type VRAMInfo struct {
	Available     bool   `json:"available"`
	TotalBytes    int64  `json:"total_bytes,omitempty"`
	UsedBytes     int64  `json:"used_bytes,omitempty"`
	ReservedBytes int64  `json:"reserved_bytes,omitempty"`
	FreeBytes     int64  `json:"free_bytes,omitempty"`
	DeviceName    string `json:"device_name,omitempty"`
	Error         string `json:"error,omitempty"`
}
