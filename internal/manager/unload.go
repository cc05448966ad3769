package manager

// Unload releases the loaded model. It waits for nothing: while a generation
// holds the gate, Unload reports tooBusyError.
func (m *Manager) Unload() error {
	m.mu.RLock()
	cur := m.cur
	m.mu.RUnlock()
	if cur == nil {
		return ErrModelNotFound("(none loaded)")
	}
	release, err := m.Acquire(cur.ID)
	if err != nil {
		return err
	}
	defer release()
	m.publish("unload_start", cur.ID, nil)
	err = m.sess.Close()
	m.mu.Lock()
	m.cur = nil
	m.state = StateIdle
	m.mu.Unlock()
	m.publish("unload_done", cur.ID, nil)
	return err
}
