// Package session owns one conversation against a loaded model: the token
// history, the prefill and decode loop, streaming of decoded text, sampling
// parameters and per-phase profiling.
//
// A Session is driven by one caller at a time. The admission gate in the
// server layer guarantees that; the accessors used by status endpoints are
// safe to call concurrently with a running generation.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"npud/internal/engine"
	"npud/internal/npu"
	"npud/internal/sampler"
	"npud/internal/tokenizer"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateUnloaded   State = "unloaded"
	StateReady      State = "ready"
	StatePrefilling State = "prefilling"
	StateDecoding   State = "decoding"
)

// DefaultMaxLength is the context length used when the model does not declare one.
const DefaultMaxLength = 4096

var (
	// ErrNotLoaded is returned by operations that need a model.
	ErrNotLoaded = errors.New("session: no model loaded")
	// ErrNoPendingToken is returned by Generate without a prior successful Insert.
	ErrNoPendingToken = errors.New("session: generate called without a pending token")
	// ErrNoFactory is returned by Load on a Session built without a Factory.
	ErrNoFactory = errors.New("session: no runtime factory")
)

// ThinkCapability describes a model's reasoning mode.
type ThinkCapability struct {
	Supported  bool `json:"supported"`
	Toggleable bool `json:"toggleable"`
}

// Model identifies what to load. Two Models are the same model when Tag and
// Dir match.
type Model struct {
	Tag           string
	Dir           string
	ContextLength int
	Think         ThinkCapability
}

func (m Model) same(o Model) bool { return m.Tag == o.Tag && m.Dir == o.Dir }

// Runtime is what a Factory builds for one model load.
type Runtime struct {
	Engine      engine.Engine
	Tokenizer   tokenizer.Tokenizer
	Accelerator *npu.Manager
	Config      engine.Config
	// WeightsPath is streamed through Engine.LoadWeights by Load.
	WeightsPath string
}

// Close releases the engine, then the accelerator resources it was built on.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Engine != nil {
		errs = append(errs, rt.Engine.Close())
	}
	if rt.Accelerator != nil {
		errs = append(errs, rt.Accelerator.Close())
	}
	return errors.Join(errs...)
}

// Factory builds the runtime for a model with the given context length.
type Factory func(ctx context.Context, m Model, maxLen int) (*Runtime, error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.log = l } }

// WithSampler sets the initial sampling parameters.
func WithSampler(cfg sampler.Config) Option { return func(s *Session) { s.samplerCfg = cfg } }

// WithMaxLength sets the context length used when a model declares none.
func WithMaxLength(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.defaultMaxLen = n
		}
	}
}

// WithSystemInfo appends custom text to the default system prompt.
func WithSystemInfo(info string) Option { return func(s *Session) { s.systemInfo = info } }

// WithLoadProgress installs a writer factory that observes weight loading.
// It is called once per load with the weights size.
func WithLoadProgress(f func(size int64) io.Writer) Option {
	return func(s *Session) { s.progress = f }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// Session is the generation state machine for one loaded model.
type Session struct {
	log           zerolog.Logger
	factory       Factory
	progress      func(int64) io.Writer
	now           func() time.Time
	defaultMaxLen int
	systemInfo    string
	samplerCfg    sampler.Config

	// mu guards the fields below for concurrent readers. Engine and sampler
	// calls happen outside it.
	mu         sync.Mutex
	state      State
	model      Model
	rt         *Runtime
	smp        *sampler.Sampler
	maxLen     int
	history    []int
	pending    int
	hasPending bool
	lastToken  int
	think      bool

	prof      profiler
	turnStart time.Time
}

// New returns an unloaded Session that builds runtimes with factory.
func New(factory Factory, opts ...Option) *Session {
	s := &Session{
		log:           zerolog.Nop(),
		factory:       factory,
		now:           time.Now,
		defaultMaxLen: DefaultMaxLength,
		samplerCfg:    sampler.DefaultConfig(),
		state:         StateUnloaded,
		lastToken:     -1,
	}
	for _, o := range opts {
		o(s)
	}
	s.maxLen = s.defaultMaxLen
	return s
}

// Load makes m the active model. Loading the active model again is a no-op;
// loading a different one discards the previous context and runtime.
func (s *Session) Load(ctx context.Context, m Model) error {
	if s.factory == nil {
		return ErrNoFactory
	}
	s.mu.Lock()
	if s.rt != nil && s.model.same(m) {
		s.mu.Unlock()
		s.log.Debug().Str("model", m.Tag).Msg("session event=load_noop")
		return nil
	}
	old, oldTag := s.rt, s.model.Tag
	s.rt = nil
	s.state = StateUnloaded
	s.model = Model{}
	s.history = nil
	s.hasPending = false
	s.mu.Unlock()
	if old != nil {
		s.log.Info().Str("model", oldTag).Msg("session event=unload")
		if err := old.Close(); err != nil {
			s.log.Warn().Err(err).Str("model", oldTag).Msg("session event=release_failed")
		}
	}

	maxLen := s.defaultMaxLen
	if m.ContextLength > 0 {
		maxLen = m.ContextLength
	}
	start := s.now()
	rt, err := s.factory(ctx, m, maxLen)
	if err != nil {
		return fmt.Errorf("session: load %s: %w", m.Tag, err)
	}
	if err := s.loadWeights(ctx, rt); err != nil {
		_ = rt.Close()
		return fmt.Errorf("session: load %s: %w", m.Tag, err)
	}
	rt.Engine.ClearContext()

	cfg := s.samplerCfg
	if s.smp != nil {
		cfg = s.smp.Config()
	}
	s.mu.Lock()
	s.rt = rt
	s.model = m
	s.maxLen = maxLen
	s.smp = sampler.New(rt.Engine.VocabSize(), cfg)
	s.history = make([]int, 0, maxLen)
	s.hasPending = false
	s.lastToken = -1
	s.think = m.Think.Supported
	s.state = StateReady
	s.prof.reset()
	s.mu.Unlock()

	s.log.Info().Str("model", m.Tag).Str("family", rt.Engine.Family().String()).
		Int("max_len", maxLen).Dur("dur", s.now().Sub(start)).Msg("session event=loaded")
	return s.insertSystemPrompt(ctx)
}

func (s *Session) loadWeights(ctx context.Context, rt *Runtime) error {
	if rt.WeightsPath == "" {
		return nil
	}
	f, err := os.Open(rt.WeightsPath)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	var r io.Reader = f
	if s.progress != nil {
		if w := s.progress(fi.Size()); w != nil {
			r = io.TeeReader(f, w)
		}
	}
	return rt.Engine.LoadWeights(ctx, r, fi.Size())
}

// Close releases the runtime and returns the session to StateUnloaded.
func (s *Session) Close() error {
	s.mu.Lock()
	rt := s.rt
	s.rt = nil
	s.state = StateUnloaded
	s.model = Model{}
	s.history = nil
	s.hasPending = false
	s.mu.Unlock()
	if rt == nil {
		return nil
	}
	return rt.Close()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Model returns the loaded model, and false when nothing is loaded.
func (s *Session) Model() (Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model, s.rt != nil
}

// Runtime returns the loaded runtime or nil.
func (s *Session) Runtime() *Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt
}

// TotalTokens is the context length including a pending sampled token.
func (s *Session) TotalTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked()
}

func (s *Session) totalLocked() int {
	n := len(s.history)
	if s.hasPending {
		n++
	}
	return n
}

// MaxLength returns the context length limit.
func (s *Session) MaxLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxLen
}

// History returns a copy of the committed token history.
func (s *Session) History() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.history...)
}

// HistoryText decodes the committed history.
func (s *Session) HistoryText() string {
	s.mu.Lock()
	rt := s.rt
	h := append([]int(nil), s.history...)
	s.mu.Unlock()
	if rt == nil {
		return ""
	}
	return rt.Tokenizer.Decode(h)
}

// LastToken returns the most recently sampled token, or -1.
func (s *Session) LastToken() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastToken
}

func (s *Session) runtime() (*Runtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rt == nil {
		return nil, ErrNotLoaded
	}
	return s.rt, nil
}
