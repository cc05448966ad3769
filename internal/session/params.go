package session

import "npud/internal/sampler"

// Sampling parameter setters. An out of range value is logged and ignored so
// a bad option never aborts a session.

// SetTemperature sets the softmax temperature; 0 falls back to 1.
func (s *Session) SetTemperature(v float32) {
	if v < 0 {
		s.invalid("temperature", v, "must be >= 0")
		return
	}
	s.updateSampler(func(c *sampler.Config) { c.Temperature = v })
}

// SetTopK limits sampling to the k most likely tokens.
func (s *Session) SetTopK(v int) {
	if v < 1 {
		s.invalid("top_k", v, "must be greater than 0")
		return
	}
	s.updateSampler(func(c *sampler.Config) { c.TopK = v })
}

// SetTopP sets the nucleus sampling threshold in [0, 1].
func (s *Session) SetTopP(v float32) {
	if v < 0 || v > 1 {
		s.invalid("top_p", v, "must be between 0.0 and 1.0")
		return
	}
	s.updateSampler(func(c *sampler.Config) { c.TopP = v })
}

// SetRepetitionPenalty sets how strongly logits of recently emitted tokens are damped.
func (s *Session) SetRepetitionPenalty(v float32) {
	if v < 0 || v > 1 {
		s.invalid("rep_penalty", v, "must be between 0.0 and 1.0")
		return
	}
	s.updateSampler(func(c *sampler.Config) { c.RepPenalty = v })
}

// SetRepetitionPenaltyWindow sets how many recent tokens the repetition penalty covers.
func (s *Session) SetRepetitionPenaltyWindow(v int) {
	if v < 1 {
		s.invalid("rep_penalty_window", v, "must be greater than 0")
		return
	}
	s.updateSampler(func(c *sampler.Config) { c.RepPenaltyWindow = v })
}

// SetFrequencyPenalty sets the penalty subtracted from a logit per windowed occurrence.
func (s *Session) SetFrequencyPenalty(v float32) {
	if v < 0 {
		s.invalid("freq_penalty", v, "must be >= 0")
		return
	}
	s.updateSampler(func(c *sampler.Config) { c.FreqPenalty = v })
}

// SetFrequencyPenaltyWindow sets how many recent tokens are counted for the frequency penalty.
func (s *Session) SetFrequencyPenaltyWindow(v int) {
	if v < 1 {
		s.invalid("freq_penalty_window", v, "must be greater than 0")
		return
	}
	s.updateSampler(func(c *sampler.Config) { c.FreqPenaltyWindow = v })
}

// SetFrequencyPenaltyDecay records the frequency decay in [0, 1]; sampling does not apply it.
func (s *Session) SetFrequencyPenaltyDecay(v float32) {
	if v < 0 || v > 1 {
		s.invalid("freq_penalty_decay", v, "must be between 0.0 and 1.0")
		return
	}
	s.updateSampler(func(c *sampler.Config) { c.FreqPenaltyDecay = v })
}

// SetSeed reseeds the sampler. Zero keeps the current source.
func (s *Session) SetSeed(v int64) {
	s.updateSampler(func(c *sampler.Config) { c.Seed = v })
}

// SamplerConfig returns the active sampling parameters.
func (s *Session) SamplerConfig() sampler.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.smp != nil {
		return s.smp.Config()
	}
	return s.samplerCfg
}

func (s *Session) updateSampler(f func(*sampler.Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.smp != nil {
		cfg := s.smp.Config()
		f(&cfg)
		s.smp.SetConfig(cfg)
		return
	}
	f(&s.samplerCfg)
}

func (s *Session) invalid(param string, v any, why string) {
	s.log.Warn().Str("param", param).Interface("value", v).Msg("session event=invalid_param " + why)
}

// Think reports whether think mode is on.
func (s *Session) Think() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.think
}

// ThinkCapability returns the loaded model's think capability.
func (s *Session) ThinkCapability() ThinkCapability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Think
}

// SetThink turns think mode on or off when the model allows toggling;
// otherwise it logs a warning and does nothing.
func (s *Session) SetThink(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.model.Think.Toggleable {
		s.log.Warn().Str("model", s.model.Tag).Bool("think", on).Msg("session event=think_not_toggleable")
		return
	}
	s.think = on
}
