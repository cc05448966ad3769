package manager

import "npud/pkg/types"

// applyOptions maps request overrides onto the session. Unset fields keep
// the session's current values; out of range values are logged and ignored
// by the session setters.
func (m *Manager) applyOptions(o types.Options, think *bool) {
	s := m.sess
	if o.Temperature != nil {
		s.SetTemperature(float32(*o.Temperature))
	}
	if o.TopK != nil {
		s.SetTopK(*o.TopK)
	}
	if o.TopP != nil {
		s.SetTopP(float32(*o.TopP))
	}
	if o.RepeatPenalty != nil {
		s.SetRepetitionPenalty(float32(*o.RepeatPenalty))
	}
	if o.FrequencyPenalty != nil {
		s.SetFrequencyPenalty(float32(*o.FrequencyPenalty))
	}
	if o.Seed != nil && *o.Seed != 0 {
		s.SetSeed(*o.Seed)
	}
	if think != nil && *think != s.Think() {
		s.SetThink(*think)
	}
}
