package manager

import (
	"context"
	"time"

	"forged/internal/events"
	"forged/pkg/types"
)

// ensureReady makes the slot for wl resident, evicting every other slot
// first so at most one model occupies the device. Callers hold the execution
// gate; lifeMu additionally serializes against Shutdown.
func (m *Manager) ensureReady(ctx context.Context, wl types.Workload) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.stateOf(wl) == StateReady {
		return nil
	}

	rt := m.runtimes[wl]
	if rt == nil {
		return unknownWorkloadError{workload: wl}
	}

	// Single-residency: everything else goes first, including this slot's own
	// stale handle when it sits in error.
	m.evictAllLocked()
	m.reclaim()

	required := m.required[wl]
	if !m.admit(wl, required) {
		return admissionDeniedError{workload: wl}
	}

	m.log.Info().Str("workload", string(wl)).Msg("loading model")
	m.setState(wl, StateLoading)
	m.pub.Publish(events.Event{Name: "load_start", Workload: string(wl)})

	handle, err := rt.Acquire(ctx)
	if err != nil {
		m.mu.Lock()
		s := m.slots[wl]
		s.handle = nil
		s.state = StateError
		m.mu.Unlock()
		m.reclaim()
		m.pub.Publish(events.Event{Name: "load_failed", Workload: string(wl), Fields: map[string]any{"error": err.Error()}})
		return acquisitionFailedError{workload: wl, err: err}
	}

	m.mu.Lock()
	s := m.slots[wl]
	s.handle = handle
	s.state = StateReady
	s.loadCount++
	m.stats.loads++
	m.mu.Unlock()

	m.log.Info().Str("workload", string(wl)).Msg("model loaded")
	m.pub.Publish(events.Event{Name: "load_done", Workload: string(wl)})
	return nil
}

// evictAllLocked unloads every slot not already unloaded. Idempotent; each
// slot either reaches unloaded or records error before this returns. The
// caller holds lifeMu. Eviction order follows map iteration, which is fine:
// no ordering is promised.
func (m *Manager) evictAllLocked() {
	for wl, s := range m.slots {
		m.mu.Lock()
		st := s.state
		m.mu.Unlock()
		if st == StateUnloaded {
			continue
		}
		if err := m.unloadLocked(wl); err != nil {
			m.log.Error().Err(err).Str("workload", string(wl)).Msg("eviction failed")
		}
		m.mu.Lock()
		m.stats.evictions++
		m.mu.Unlock()
		m.pub.Publish(events.Event{Name: "evict", Workload: string(wl)})
	}
}

// unloadLocked releases one slot's handle. The handle is cleared no matter
// what: a failed release leaves the slot in error but never leaks the
// resource reference. The caller holds lifeMu.
func (m *Manager) unloadLocked(wl types.Workload) error {
	m.mu.Lock()
	s := m.slots[wl]
	if s == nil || s.state == StateUnloaded {
		m.mu.Unlock()
		return nil
	}
	s.state = StateUnloading
	handle := s.handle
	s.handle = nil
	m.mu.Unlock()

	m.log.Info().Str("workload", string(wl)).Msg("unloading model")

	var releaseErr error
	if handle != nil {
		releaseErr = handle.Release()
	}
	m.reclaim()

	m.mu.Lock()
	if releaseErr != nil {
		s.state = StateError
	} else {
		s.state = StateUnloaded
	}
	m.mu.Unlock()

	if releaseErr != nil {
		return releaseFailedError{workload: wl, err: releaseErr}
	}
	m.log.Info().Str("workload", string(wl)).Msg("model unloaded")
	return nil
}

// shutdownGateWait bounds how long Shutdown waits for an in-flight
// generation before evicting anyway.
var shutdownGateWait = 5 * time.Second

// Shutdown evicts all slots and marks the manager closed. Idempotent and safe
// to call once at process end. The HTTP server is expected to be drained
// first; if a generation still holds the gate anyway, Shutdown waits a
// bounded time for it rather than releasing its handle mid-compute.
func (m *Manager) Shutdown() {
	select {
	case m.gate <- struct{}{}:
		defer m.releaseGate()
	case <-time.After(shutdownGateWait):
		m.log.Warn().Msg("generation still in flight, evicting anyway")
	}

	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.mu.Lock()
	alreadyClosed := m.closed
	m.closed = true
	m.mu.Unlock()
	if alreadyClosed {
		return
	}

	m.log.Info().Msg("shutting down manager")
	m.evictAllLocked()
	m.pub.Publish(events.Event{Name: "shutdown"})
}
