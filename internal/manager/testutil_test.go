package manager

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"npud/internal/modeltest"
	"npud/internal/registry"
	"npud/internal/sampler"
	"npud/internal/session"
)

const testTag = "llama3.2:1b"

func greedy() sampler.Config {
	c := sampler.DefaultConfig()
	c.TopK = 1
	c.Seed = 1
	return c
}

// newTestManager builds a manager over one simulated llama model that
// answers every prompt with reply.
func newTestManager(t *testing.T, reply string, ctxLen int, opts ...Option) (*Manager, *MemoryPublisher) {
	t.Helper()
	dir := t.TempDir()
	modeltest.WriteModel(t, dir, "Llama-3.2-1B-NPU2", "llama")
	cat := registry.NewCatalog(dir, map[string]map[string]registry.Entry{
		"llama3.2": {"1b": {Name: "Llama-3.2-1B-NPU2", DefaultContextLength: ctxLen}},
		"ghost":    {"1b": {Name: "Not-Downloaded"}},
	})
	sess := session.New(session.SimFactory(reply, zerolog.Nop()), session.WithSampler(greedy()))
	pub := NewMemoryPublisher()
	m := NewWithConfig(ManagerConfig{Catalog: cat, Session: sess, DefaultModel: testTag, Publisher: pub}, opts...)
	return m, pub
}

// recWriter records chunks and the final result.
type recWriter struct {
	chunks   []string
	res      *Result
	chunkErr error
	onChunk  func(n int)
}

func (w *recWriter) Chunk(text string) error {
	if w.chunkErr != nil {
		return w.chunkErr
	}
	w.chunks = append(w.chunks, text)
	if w.onChunk != nil {
		w.onChunk(len(w.chunks))
	}
	return nil
}

func (w *recWriter) Done(r Result) error {
	if w.res != nil {
		return errors.New("Done called twice")
	}
	w.res = &r
	return nil
}

func (w *recWriter) text() string { return strings.Join(w.chunks, "") }

func count(names []string, name string) int {
	n := 0
	for _, x := range names {
		if x == name {
			n++
		}
	}
	return n
}
