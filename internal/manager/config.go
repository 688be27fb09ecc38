package manager

import (
	"time"

	"github.com/rs/zerolog"

	"forged/internal/events"
	"forged/internal/gpu"
	"forged/pkg/types"
)

// Default applied when ManagerConfig.RestartAfter is unset. Repeated
// load/unload cycles fragment device memory; after this many generations the
// status reporter asks the operator to recycle the process.
const defaultRestartAfter = 20

// ManagerConfig encapsulates all tunables and collaborators for Manager
// construction. Runtimes and Probe are the external boundary: the manager
// never reaches past them.
type ManagerConfig struct {
	// Runtimes maps each workload to its compute backend.
	Runtimes map[types.Workload]Runtime
	// RequiredBytes is the per-workload VRAM estimate used by admission.
	RequiredBytes map[types.Workload]int64
	// BufferBytes is kept free on top of a model's requirement.
	BufferBytes int64
	// RestartAfter is the generation count that raises the restart signal.
	RestartAfter int

	Probe     gpu.Prober
	Publisher events.Publisher
	Logger    zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig. Both workload slots
// exist from the start, in the unloaded state.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		gate: make(chan struct{}, 1),
		slots: map[types.Workload]*slot{
			types.WorkloadImage: {state: StateUnloaded},
			types.WorkloadMesh:  {state: StateUnloaded},
		},
		runtimes:     cfg.Runtimes,
		required:     cfg.RequiredBytes,
		bufferBytes:  cfg.BufferBytes,
		restartAfter: cfg.RestartAfter,
		probe:        cfg.Probe,
		pub:          cfg.Publisher,
		log:          cfg.Logger,
		startTime:    time.Now(),
	}
	if m.restartAfter <= 0 {
		m.restartAfter = defaultRestartAfter
	}
	if m.probe == nil {
		m.probe = unavailableProbe{}
	}
	if m.pub == nil {
		m.pub = events.NopPublisher{}
	}
	return m
}

// unavailableProbe stands in when no prober is configured; admission then
// proceeds optimistically and acquisition failures are authoritative.
type unavailableProbe struct{}

func (unavailableProbe) Probe() types.VRAMInfo {
	return types.VRAMInfo{Available: false, Error: "no vram probe configured"}
}
