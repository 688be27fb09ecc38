package manager

// The execution gate is a single non-reentrant flag: one buffered slot,
// try-send to acquire. A caller that cannot acquire it immediately gets a
// busy outcome instead of waiting. There is no queue and no fairness among
// denied callers.

// tryAcquireGate attempts a non-blocking acquire.
func (m *Manager) tryAcquireGate() bool {
	select {
	case m.gate <- struct{}{}:
		return true
	default:
		return false
	}
}

// releaseGate releases the gate. Must only be called by the holder.
func (m *Manager) releaseGate() {
	<-m.gate
}
