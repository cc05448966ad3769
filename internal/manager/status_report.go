package manager

import (
	"npud/internal/session"
	"npud/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var cur *types.Model
	if m.cur != nil {
		c := *m.cur
		cur = &c
	}
	return Snapshot{State: m.state, CurrentModel: cur, Err: m.err}
}

// Status builds a detailed status response for /status. It never takes the
// admission gate, so it answers while a generation runs.
func (m *Manager) Status() types.StatusResponse {
	snap := m.Snapshot()
	m.mu.RLock()
	loads, lastLoad := m.loadsTotal, m.lastLoad
	m.mu.RUnlock()
	now := m.now()
	resp := types.StatusResponse{
		State:          string(m.sess.State()),
		ContextTokens:  m.sess.TotalTokens(),
		MaxContext:     m.sess.MaxLength(),
		Available:      m.gate.IsAvailable(),
		Active:         m.gate.ActiveCount(),
		LoadsTotal:     loads,
		LastLoadMs:     lastLoad.Milliseconds(),
		LastError:      snap.Err,
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	if snap.State == StateLoading || snap.State == StateError {
		resp.State = string(snap.State)
	}
	if snap.CurrentModel != nil {
		resp.Model = snap.CurrentModel.ID
	}
	if rt := m.sess.Runtime(); rt != nil && rt.Accelerator != nil {
		resp.Accelerator = &types.AcceleratorStatus{
			Binaries: len(rt.Accelerator.Binaries()),
			Apps:     len(rt.Accelerator.Apps()),
			Loads:    rt.Accelerator.Loads(),
		}
	}
	return resp
}

// Running lists the loaded model for /api/ps.
func (m *Manager) Running() []types.RunningModel {
	snap := m.Snapshot()
	if snap.CurrentModel == nil {
		return []types.RunningModel{}
	}
	c := snap.CurrentModel
	return []types.RunningModel{{
		Name:          c.ID,
		Model:         c.ID,
		ContextLength: m.sess.MaxLength(),
		ContextTokens: m.sess.TotalTokens(),
		Details:       c.Details,
	}}
}

// Profile returns the session's latency accumulators.
func (m *Manager) Profile() session.Profile { return m.sess.Profile() }
