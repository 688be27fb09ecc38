// Package manager coordinates exclusive access to the GPU across the managed
// workloads. It owns the slot table, enforces the single-resident policy via
// eviction, gates every generation behind a non-blocking mutex, and chains the
// two-stage text-to-3D pipeline. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: slot states, the slot table entry, runtime interfaces, requests/results.
//   - errors.go: error types and helpers (IsBusy, IsAdmissionDenied, ...).
//   - gate.go: the non-reentrant, non-blocking execution gate.
//   - admission.go: VRAM budget check before a load.
//   - lifecycle.go: load/unload/evict-all state transitions and Shutdown.
//   - generate.go: single-stage generate entry points and the gate-free core.
//   - pipeline.go: the two-stage orchestrator (gate held for its full duration).
//   - status.go: read-only status aggregation.
//   - reclaim.go: best-effort memory reclamation between operations.
//
// The compute backends are opaque: the manager only sees the Runtime/Handle
// interfaces and converts every backend failure into a typed error at that
// boundary. External packages should use public methods only (NewWithConfig,
// GenerateImage, GenerateMesh, GeneratePipeline, Status, Shutdown).
package manager
