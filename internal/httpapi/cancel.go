package httpapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5/middleware"

	"npud/pkg/types"
)

// cancelRegistry maps the request id of each running generation to the
// func that cancels it.
type cancelRegistry struct {
	mu sync.Mutex
	m  map[string]*cancelEntry
}

type cancelEntry struct {
	cancel context.CancelFunc
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{m: make(map[string]*cancelEntry)}
}

// add registers cancel under id and returns the func that removes it. A
// reused id replaces the older entry; removing the older one is then a no-op.
func (c *cancelRegistry) add(id string, cancel context.CancelFunc) func() {
	if id == "" {
		return func() {}
	}
	e := &cancelEntry{cancel: cancel}
	c.mu.Lock()
	c.m[id] = e
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		if c.m[id] == e {
			delete(c.m, id)
		}
		c.mu.Unlock()
	}
}

// cancel cancels and forgets the generation registered under id.
func (c *cancelRegistry) cancel(id string) bool {
	c.mu.Lock()
	e, ok := c.m[id]
	if ok {
		delete(c.m, id)
	}
	c.mu.Unlock()
	if ok {
		e.cancel()
	}
	return ok
}

func (c *cancelRegistry) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// startGeneration derives the generation context of r and makes it
// cancellable through POST /api/cancel under the request id, which is echoed
// in the X-Request-Id response header.
func (h *handlers) startGeneration(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := generationContext(r)
	id := middleware.GetReqID(r.Context())
	if id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
	remove := h.cancels.add(id, cancel)
	return ctx, func() {
		remove()
		cancel()
	}
}

// cancelRequest godoc
// @Summary      Cancel a running generation
// @Description  Stops the generation started with the given X-Request-Id. The stream ends with done_reason "cancelled".
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        request  body      types.CancelRequest  true  "Request to cancel"
// @Success      200      {object}  types.CancelResponse
// @Failure      400      {object}  types.ErrorResponse
// @Router       /api/cancel [post]
func (h *handlers) cancelRequest(w http.ResponseWriter, r *http.Request) {
	var req types.CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		writeJSONError(w, http.StatusBadRequest, "request_id is required")
		return
	}
	if !h.cancels.cancel(req.RequestID) {
		writeJSON(w, http.StatusOK, types.CancelResponse{Cancelled: false, Message: "Request not found or already completed"})
		return
	}
	zlog.Info().Str("request_id", req.RequestID).Msg("http event=request_cancelled")
	writeJSON(w, http.StatusOK, types.CancelResponse{Cancelled: true, Message: "Request cancelled successfully"})
}

// npuStatus godoc
// @Summary      NPU availability
// @Description  Whether a generation request would be admitted now.
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.NPUStatusResponse
// @Router       /api/npu/status [get]
func (h *handlers) npuStatus(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status()
	msg := "NPU is available"
	if !st.Available {
		msg = "NPU is currently in use"
	}
	writeJSON(w, http.StatusOK, types.NPUStatusResponse{NPUAvailable: st.Available, ActiveRequests: st.Active, Message: msg})
}
