package manager

import "forged/pkg/types"

// admit reports whether a load of requiredBytes may proceed. The check is
// advisory: it races with the actual acquisition, and acquisition failure is
// always the authoritative outcome. When the probe cannot see the device the
// load is admitted optimistically rather than denied on broken introspection.
func (m *Manager) admit(wl types.Workload, requiredBytes int64) bool {
	info := m.probe.Probe()
	if !info.Available {
		m.log.Warn().Str("workload", string(wl)).Str("reason", info.Error).
			Msg("cannot check vram, proceeding anyway")
		return true
	}
	needed := requiredBytes + m.bufferBytes
	if info.FreeBytes < needed {
		m.log.Warn().Str("workload", string(wl)).
			Int64("free_bytes", info.FreeBytes).
			Int64("required_bytes", requiredBytes).
			Int64("buffer_bytes", m.bufferBytes).
			Msg("insufficient vram")
		return false
	}
	return true
}
