// Package sampler picks the next token from a logits vector.
//
// The pipeline runs in a fixed order: windowed repetition penalty, windowed
// frequency penalty, temperature scaling, top-k shortlist, top-p cut, draw.
// A Sampler is not safe for concurrent use; the session owns exactly one.
package sampler

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// Config configures a Sampler.
type Config struct {
	Temperature       float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK              int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP              float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	RepPenalty        float32 `json:"rep_penalty" yaml:"rep_penalty" toml:"rep_penalty"`
	RepPenaltyWindow  int     `json:"rep_penalty_window" yaml:"rep_penalty_window" toml:"rep_penalty_window"`
	FreqPenalty       float32 `json:"freq_penalty" yaml:"freq_penalty" toml:"freq_penalty"`
	FreqPenaltyWindow int     `json:"freq_penalty_window" yaml:"freq_penalty_window" toml:"freq_penalty_window"`
	// FreqPenaltyDecay is carried for clients that tune it; the frequency
	// penalty is a flat windowed count.
	FreqPenaltyDecay float32 `json:"freq_penalty_decay" yaml:"freq_penalty_decay" toml:"freq_penalty_decay"`
	// Seed of zero seeds from the clock.
	Seed int64 `json:"seed" yaml:"seed" toml:"seed"`
}

// DefaultConfig returns the runtime's default sampling parameters.
func DefaultConfig() Config {
	return Config{
		Temperature:       0.8,
		TopK:              5,
		TopP:              0.9,
		RepPenalty:        0.05,
		RepPenaltyWindow:  64,
		FreqPenalty:       0.05,
		FreqPenaltyWindow: 128,
		FreqPenaltyDecay:  0.9,
	}
}

type candidate struct {
	logit float32
	id    int
}

// Sampler holds the penalty state for one token stream.
type Sampler struct {
	cfg   Config
	vocab int
	rng   *rand.Rand

	scratch   []float32
	counters  []int
	lastPos   []int
	history   []int // ring of the last FreqPenaltyWindow tokens
	total     int
	shortlist []candidate
}

// New returns a Sampler for a vocabulary of size vocab.
func New(vocab int, cfg Config) *Sampler {
	if cfg.TopK < 1 {
		cfg.TopK = 1
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Sampler{
		cfg:      cfg,
		vocab:    vocab,
		rng:      rand.New(rand.NewSource(seed)),
		scratch:  make([]float32, vocab),
		counters: make([]int, vocab),
		lastPos:  make([]int, vocab),
	}
	s.ResetPenalties()
	return s
}

// Config returns the active configuration.
func (s *Sampler) Config() Config { return s.cfg }

// SetConfig replaces the sampling parameters. Penalty state is kept.
func (s *Sampler) SetConfig(cfg Config) {
	if cfg.TopK < 1 {
		cfg.TopK = 1
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.Seed != 0 && cfg.Seed != s.cfg.Seed {
		s.rng = rand.New(rand.NewSource(cfg.Seed))
	}
	s.cfg = cfg
}

// ResetPenalties forgets every token seen so far.
func (s *Sampler) ResetPenalties() {
	for i := range s.counters {
		s.counters[i] = 0
		s.lastPos[i] = -1
	}
	s.history = s.history[:0]
	s.total = 0
}

// Sample returns the next token id. logits is not modified.
func (s *Sampler) Sample(logits []float32) int {
	n := len(logits)
	if n == 0 {
		return 0
	}
	if n > s.vocab {
		n = s.vocab
	}
	x := s.scratch[:n]
	copy(x, logits[:n])
	s.applyPenalties(x)

	var id int
	if s.cfg.TopK == 1 {
		id = argmax(x)
	} else {
		id = s.draw(x)
	}
	s.observe(id)
	return id
}

func (s *Sampler) applyPenalties(x []float32) {
	repWin := s.cfg.RepPenaltyWindow
	freqWin := s.cfg.FreqPenaltyWindow
	for id := range x {
		if last := s.lastPos[id]; last >= 0 && repWin > 0 {
			if dist := s.total - last; dist < repWin {
				p := s.cfg.RepPenalty * (1 - float32(dist)/float32(repWin))
				if x[id] > 0 {
					x[id] /= 1 + p
				} else {
					x[id] *= 1 + p
				}
			}
		}
		if freqWin > 0 && s.counters[id] > 0 {
			x[id] -= s.cfg.FreqPenalty * float32(s.counters[id]) / float32(freqWin)
		}
	}
}

func (s *Sampler) draw(x []float32) int {
	maxLogit := x[argmax(x)]
	temp := s.cfg.Temperature
	for i := range x {
		x[i] = (x[i] - maxLogit) / temp
	}

	k := s.cfg.TopK
	if k > len(x) {
		k = len(x)
	}
	s.shortlist = s.shortlist[:0]
	for i, v := range x {
		s.shortlist = append(s.shortlist, candidate{logit: v, id: i})
	}
	sort.SliceStable(s.shortlist, func(a, b int) bool { return s.shortlist[a].logit > s.shortlist[b].logit })
	top := s.shortlist[:k]

	probs := make([]float64, k)
	var sum float64
	for i, c := range top {
		probs[i] = math.Exp(float64(c.logit))
		sum += probs[i]
	}
	cut := k - 1
	var running float64
	for i := range probs {
		running += probs[i] / sum
		if running > float64(s.cfg.TopP) {
			cut = i
			break
		}
	}
	var kept float64
	for i := 0; i <= cut; i++ {
		kept += probs[i]
	}

	u := s.rng.Float64()
	var cdf float64
	for i := 0; i <= cut; i++ {
		cdf += probs[i] / kept
		if u < cdf {
			return top[i].id
		}
	}
	return top[cut].id
}

func (s *Sampler) observe(id int) {
	if win := s.cfg.FreqPenaltyWindow; win > 0 {
		s.history = append(s.history, id)
		s.counters[id]++
		if len(s.history) > win {
			oldest := s.history[0]
			s.history = s.history[1:]
			s.counters[oldest]--
		}
	}
	s.lastPos[id] = s.total
	s.total++
}

func argmax(x []float32) int {
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}
