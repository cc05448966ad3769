package session

import "time"

type phase int

const (
	phasePrefill phase = iota
	phaseDecoding
	phaseSampling
	phaseTokenEncode
	phaseTokenDecode
	phaseTTFT
	phaseTotal
	numPhases
)

type timer struct {
	total  time.Duration
	tokens int
}

type profiler [numPhases]timer

func (p *profiler) add(ph phase, d time.Duration, tokens int) {
	p[ph].total += d
	p[ph].tokens += tokens
}

func (p *profiler) reset() { *p = profiler{} }

// PhaseStats is the accumulated time and token count of one phase.
type PhaseStats struct {
	Total           time.Duration `json:"total_ns"`
	Tokens          int           `json:"tokens"`
	TokensPerSecond float64       `json:"tokens_per_second"`
}

func (t timer) stats() PhaseStats {
	ps := PhaseStats{Total: t.total, Tokens: t.tokens}
	if t.total > 0 {
		ps.TokensPerSecond = float64(t.tokens) / t.total.Seconds()
	}
	return ps
}

// Profile is a snapshot of the session's latency accumulators. The system
// prompt prefill is never counted.
type Profile struct {
	ContextTokens int        `json:"context_tokens"`
	MaxLength     int        `json:"max_length"`
	Prefill       PhaseStats `json:"prefill"`
	Decoding      PhaseStats `json:"decoding"`
	Sampling      PhaseStats `json:"sampling"`
	TokenEncode   PhaseStats `json:"token_encode"`
	TokenDecode   PhaseStats `json:"token_decode"`
	TTFT          PhaseStats `json:"ttft"`
	Total         PhaseStats `json:"total"`
}

// Profile returns the current accumulators.
func (s *Session) Profile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.prof
	return Profile{
		ContextTokens: s.totalLocked(),
		MaxLength:     s.maxLen,
		Prefill:       p[phasePrefill].stats(),
		Decoding:      p[phaseDecoding].stats(),
		Sampling:      p[phaseSampling].stats(),
		TokenEncode:   p[phaseTokenEncode].stats(),
		TokenDecode:   p[phaseTokenDecode].stats(),
		TTFT:          p[phaseTTFT].stats(),
		Total:         p[phaseTotal].stats(),
	}
}

func (s *Session) record(ph phase, start time.Time, tokens int) {
	d := s.now().Sub(start)
	s.mu.Lock()
	s.prof.add(ph, d, tokens)
	s.mu.Unlock()
}
