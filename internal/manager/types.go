package manager

import (
	"npud/internal/session"
	"npud/pkg/types"
)

// State represents lifecycle state of the manager.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *types.Model
	Err          string
}

// Result is the outcome of one generation, handed to StreamWriter.Done.
type Result struct {
	Model string
	// Text is the full decoded output.
	Text   string
	Reason session.StopReason
	Meta   session.MetaInfo
	// Context is the token history after the turn (generate only).
	Context []int
}

// StreamWriter receives decoded text as it is produced and the final result.
// Chunk is called zero or more times, Done exactly once on success.
type StreamWriter interface {
	Chunk(text string) error
	Done(Result) error
}

// chunkSink adapts a StreamWriter to the io.Writer the session streams into.
type chunkSink struct{ w StreamWriter }

func (c chunkSink) Write(p []byte) (int, error) {
	if err := c.w.Chunk(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
