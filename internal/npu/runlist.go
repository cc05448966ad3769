package npu

import (
	"context"
	"fmt"
)

type queuedRun struct {
	h    Handle
	args []*Buffer
}

// RunList batches launches that share one hardware context and waits for all
// of them in Execute.
type RunList struct {
	binID int
	runs  []queuedRun
}

// CreateRunList returns an empty RunList scoped to the context of h.
func (m *Manager) CreateRunList(h Handle) (*RunList, error) {
	if !h.Valid() {
		return nil, ErrInvalidHandle
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.AppID >= len(m.apps) {
		return nil, fmt.Errorf("npu: unknown application id %d", h.AppID)
	}
	return &RunList{binID: m.apps[h.AppID].bin}, nil
}

// Add queues a launch of h. The handle must belong to the run list's context.
func (r *RunList) Add(h Handle, args ...*Buffer) error {
	if !h.Valid() {
		return ErrInvalidHandle
	}
	if h.binID != r.binID {
		return fmt.Errorf("npu: app %d is bound to a different hardware context", h.AppID)
	}
	r.runs = append(r.runs, queuedRun{h: h, args: args})
	return nil
}

// Len returns the number of queued launches.
func (r *RunList) Len() int { return len(r.runs) }

// Execute submits queued launches in order and waits for each. The context is
// checked between launches, never during one. The list is empty afterwards.
func (r *RunList) Execute(ctx context.Context) error {
	runs := r.runs
	r.runs = r.runs[:0]
	for i, q := range runs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := q.h.kernel.Launch(ctx, q.h.Sequence, q.args); err != nil {
			return fmt.Errorf("npu: runlist entry %d (app %d): %w", i, q.h.AppID, err)
		}
	}
	return nil
}
