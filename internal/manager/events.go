package manager

// Event represents a manager lifecycle event.
// Minimal and stable: name + model ID and optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// logPublisher writes events to the manager logger at debug level.
type logPublisher struct{ m *Manager }

func (p logPublisher) Publish(e Event) {
	ev := p.m.log.Debug().Str("model", e.ModelID)
	for k, v := range e.Fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("manager event=" + e.Name)
}

func (m *Manager) publish(name, modelID string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	e := Event{Name: name, ModelID: modelID, Fields: fields}
	logPublisher{m}.Publish(e)
	m.publisher.Publish(e)
}
