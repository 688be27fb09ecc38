package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forged/internal/events"
	"forged/internal/gpu"
	"forged/pkg/types"
)

// Manager owns the slot table and all shared mutable state. Three primitives
// split the concurrency concerns:
//
//   - gate: the process-wide execution gate; every generation try-acquires it
//     and fails fast with a busy error when it is held.
//   - lifeMu: serializes load/unload/evict sequences against Shutdown, whose
//     gate acquisition is only a bounded wait and may give up.
//   - mu: guards field access to the slot table and counters so the status
//     reporter can read them while a generation is in flight.
type Manager struct {
	mu     sync.Mutex
	lifeMu sync.Mutex
	gate   chan struct{}

	slots    map[types.Workload]*slot
	runtimes map[types.Workload]Runtime
	required map[types.Workload]int64

	bufferBytes  int64
	restartAfter int

	probe gpu.Prober
	pub   events.Publisher
	log   zerolog.Logger

	stats     genStats
	startTime time.Time
	closed    bool
}

// genStats are process-wide counters, mutated only on successful operations
// and never reset. Average latency and the restart signal derive from them.
type genStats struct {
	count        int
	totalElapsed time.Duration
	loads        uint64
	evictions    uint64
}

// Ready reports whether the manager accepts work. It flips to false once
// Shutdown has run.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *Manager) slotOf(wl types.Workload) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[wl]
}

func (m *Manager) stateOf(wl types.Workload) SlotState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.slots[wl]; s != nil {
		return s.state
	}
	return StateUnloaded
}

func (m *Manager) setState(wl types.Workload, st SlotState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.slots[wl]; s != nil {
		s.state = st
	}
}

func (m *Manager) handleOf(wl types.Workload) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.slots[wl]; s != nil {
		return s.handle
	}
	return nil
}
