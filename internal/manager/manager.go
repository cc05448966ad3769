package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"npud/internal/admission"
	"npud/internal/registry"
	"npud/internal/session"
	"npud/pkg/types"
)

const defaultVersion = "0.1.0"

type Manager struct {
	mu           sync.RWMutex
	state        State
	cur          *types.Model
	err          string
	catalog      *registry.Catalog
	sess         *session.Session
	gate         *admission.Gate
	defaultModel string
	maxContext   int
	version      string

	publisher EventPublisher
	log       zerolog.Logger
	now       func() time.Time

	loadGroup  singleflight.Group
	loadsTotal uint64
	lastLoad   time.Duration
	startTime  time.Time
}

// New builds a Manager over catalog and sess with a private admission gate.
func New(catalog *registry.Catalog, sess *session.Session, defaultModel string) *Manager {
	// Delegate to NewWithConfig to centralize defaults
	return NewWithConfig(ManagerConfig{
		Catalog:      catalog,
		Session:      sess,
		DefaultModel: defaultModel,
	})
}

// Ready reports whether a model is loaded and usable.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.cur != nil
}

// ListModels returns the catalog entries.
func (m *Manager) ListModels() []types.Model {
	return m.catalog.Models()
}

// Version returns the server version string.
func (m *Manager) Version() string { return m.version }

// Session exposes the underlying session for in-process drivers (the CLI).
// Callers must hold the gate while generating; see Acquire.
func (m *Manager) Session() *session.Session { return m.sess }

// Gate returns the admission gate guarding the accelerator.
func (m *Manager) Gate() *admission.Gate { return m.gate }

// DefaultModel returns the tag used when a request names none.
func (m *Manager) DefaultModel() string { return m.defaultModel }
