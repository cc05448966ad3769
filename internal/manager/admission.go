package manager

// Acquire takes the admission gate without waiting. The returned release is
// idempotent. A held gate yields tooBusyError; the rejection is published.
func (m *Manager) Acquire(modelID string) (func(), error) {
	release, ok := m.gate.Enter()
	if !ok {
		m.publish("admission_rejected", modelID, map[string]any{"active": m.gate.ActiveCount()})
		return func() {}, ErrTooBusy(modelID)
	}
	return release, nil
}
