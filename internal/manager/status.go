package manager

import (
	"time"

	"forged/pkg/types"
)

// Status builds a detailed status response. Read-only: it takes only mu, so
// it is safe to call while a generation holds the execution gate. The probe
// snapshot is taken fresh on every call.
func (m *Manager) Status() types.StatusResponse {
	m.mu.Lock()
	resp := types.StatusResponse{
		Models:          make(map[string]types.ModelStatus, len(m.slots)),
		GenerationCount: m.stats.count,
		NeedsRestart:    m.stats.count >= m.restartAfter,
		LoadsTotal:      m.stats.loads,
		EvictionsTotal:  m.stats.evictions,
		UptimeSeconds:   int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix:  time.Now().Unix(),
	}
	if m.stats.count > 0 {
		resp.AvgGenerationMS = (m.stats.totalElapsed / time.Duration(m.stats.count)).Milliseconds()
	}
	for wl, s := range m.slots {
		resp.Models[string(wl)] = types.ModelStatus{State: string(s.state), LoadCount: s.loadCount}
	}
	m.mu.Unlock()

	resp.VRAM = m.probe.Probe()
	return resp
}
