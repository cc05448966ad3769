package manager

import (
	"context"
	"errors"
	"time"

	"npud/internal/registry"
	"npud/internal/session"
	"npud/pkg/types"
)

// resolve maps a tag (or the default when empty) to a catalog model and
// checks its folder is complete.
func (m *Manager) resolve(tag string) (types.Model, error) {
	if tag == "" {
		tag = m.defaultModel
		if tag == "" {
			return types.Model{}, ErrModelNotFound("(unspecified)")
		}
	}
	mdl, err := m.catalog.Resolve(tag)
	if err != nil {
		if errors.Is(err, registry.ErrModelNotFound) {
			return types.Model{}, ErrModelNotFound(tag)
		}
		return types.Model{}, err
	}
	if missing := registry.Missing(mdl.Path); len(missing) > 0 {
		return types.Model{}, ErrModelNotInstalled(mdl.ID, missing)
	}
	return mdl, nil
}

// EnsureModel makes tag the loaded model, else no-op when it already is.
// Concurrent calls for the same tag share one load. The returned duration is
// the time spent loading, zero on the fast path.
func (m *Manager) EnsureModel(ctx context.Context, tag string) (types.Model, time.Duration, error) {
	mdl, err := m.resolve(tag)
	if err != nil {
		return types.Model{}, 0, err
	}
	m.mu.RLock()
	if m.cur != nil && m.cur.ID == mdl.ID && m.state == StateReady {
		cur := *m.cur
		m.mu.RUnlock()
		return cur, 0, nil
	}
	m.mu.RUnlock()

	start := m.now()
	_, err, _ = m.loadGroup.Do(mdl.ID, func() (any, error) {
		return nil, m.load(ctx, mdl)
	})
	dur := m.now().Sub(start)
	if err != nil {
		return types.Model{}, dur, err
	}
	return mdl, dur, nil
}

func (m *Manager) load(ctx context.Context, mdl types.Model) error {
	// A load that finished between the caller's fast path and Do.
	m.mu.RLock()
	done := m.cur != nil && m.cur.ID == mdl.ID && m.state == StateReady
	m.mu.RUnlock()
	if done {
		return nil
	}
	m.publish("ensure_start", mdl.ID, map[string]any{"path": mdl.Path})
	m.mu.Lock()
	m.state = StateLoading
	m.err = ""
	m.mu.Unlock()

	ctxLen := mdl.ContextLength
	if m.maxContext > 0 {
		ctxLen = m.maxContext
	}
	start := m.now()
	err := m.sess.Load(ctx, session.Model{
		Tag:           mdl.ID,
		Dir:           mdl.Path,
		ContextLength: ctxLen,
		Think: session.ThinkCapability{
			Supported:  mdl.Details.Think,
			Toggleable: mdl.Details.ThinkToggleable,
		},
	})
	dur := m.now().Sub(start)
	if err != nil {
		if errors.Is(err, session.ErrNoFactory) {
			err = ErrDependencyUnavailable("no accelerator runtime configured")
		}
		m.mu.Lock()
		m.state = StateError
		m.err = err.Error()
		m.cur = nil
		m.mu.Unlock()
		modelLoadsTotal.WithLabelValues("error").Inc()
		m.publish("ensure_error", mdl.ID, map[string]any{"error": err.Error()})
		return err
	}
	m.mu.Lock()
	cur := mdl
	m.cur = &cur
	m.state = StateReady
	m.loadsTotal++
	m.lastLoad = dur
	m.mu.Unlock()
	modelLoadsTotal.WithLabelValues("ok").Inc()
	modelLoadDuration.Observe(dur.Seconds())
	m.publish("ensure_ready", mdl.ID, map[string]any{"load_ms": dur.Milliseconds()})
	return nil
}
