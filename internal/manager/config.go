package manager

import (
	"time"

	"github.com/rs/zerolog"

	"npud/internal/admission"
	"npud/internal/registry"
	"npud/internal/session"
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Catalog *registry.Catalog
	Session *session.Session
	// Gate is shared with anything else that drives the accelerator. A nil
	// Gate gets a private one.
	Gate         *admission.Gate
	DefaultModel string
	// MaxContext overrides the catalog context length when > 0.
	MaxContext int
	Publisher  EventPublisher
	Logger     *zerolog.Logger
	// Version is reported by /api/version.
	Version string
}

// Option adjusts a Manager after NewWithConfig applied its config.
type Option func(*Manager)

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithPublisher installs an event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.publisher = p
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig, opts ...Option) *Manager {
	m := &Manager{
		state:        StateIdle,
		catalog:      cfg.Catalog,
		sess:         cfg.Session,
		gate:         cfg.Gate,
		defaultModel: cfg.DefaultModel,
		maxContext:   cfg.MaxContext,
		publisher:    cfg.Publisher,
		version:      cfg.Version,
		log:          zerolog.Nop(),
		now:          time.Now,
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	// Apply defaults if unset
	if m.catalog == nil {
		m.catalog = registry.NewCatalog("", nil)
	}
	if m.sess == nil {
		m.sess = session.New(nil)
	}
	if m.gate == nil {
		m.gate = admission.New()
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if m.version == "" {
		m.version = defaultVersion
	}
	for _, o := range opts {
		o(m)
	}
	m.startTime = m.now()
	return m
}
