package manager

import (
	"runtime"
	"runtime/debug"
)

// reclaim runs a best-effort memory reclamation pass between operations to
// reduce fragmentation for the next load: prompt a collection, hand freed
// pages back to the OS, and let each runtime drop device-side caches.
func (m *Manager) reclaim() {
	runtime.GC()
	debug.FreeOSMemory()
	for _, rt := range m.runtimes {
		if t, ok := rt.(CacheTrimmer); ok {
			t.TrimCache()
		}
	}
	m.log.Debug().Msg("memory reclamation pass complete")
}
