package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"npud/internal/manager"
	"npud/internal/session"
	"npud/pkg/types"
)

// responseWriter writes whole frames with a per-write deadline and flushes
// after each one. It records whether anything reached the client, after which
// errors can no longer change the status code.
type responseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	log     *requestLog
	started bool
}

func newResponseWriter(w http.ResponseWriter, rl *requestLog) *responseWriter {
	return &responseWriter{w: w, rc: http.NewResponseController(w), log: rl}
}

func (rw *responseWriter) start(contentType string, status int) {
	if rw.started {
		return
	}
	rw.started = true
	rw.w.Header().Set("Content-Type", contentType)
	if contentType == "text/event-stream" {
		rw.w.Header().Set("Cache-Control", "no-cache")
	}
	rw.w.WriteHeader(status)
}

func (rw *responseWriter) write(b []byte) error {
	if err := rw.rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := rw.w.Write(b); err != nil {
		return err
	}
	if err := rw.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (rw *responseWriter) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	streamFramesTotal.WithLabelValues(formatNDJSON).Inc()
	return rw.write(append(b, '\n'))
}

func (rw *responseWriter) writeEvent(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame := make([]byte, 0, len(b)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, b...)
	frame = append(frame, '\n', '\n')
	streamFramesTotal.WithLabelValues(formatSSE).Inc()
	return rw.write(frame)
}

// fail reports err to the client: as a JSON error before anything was
// written, as a trailing frame afterwards.
func (rw *responseWriter) fail(err error, sse bool) int {
	status, msg := statusFor(err)
	if !rw.started {
		writeJSONError(rw.w, status, msg)
		return status
	}
	body := types.ErrorResponse{Error: msg, Code: status}
	format := formatNDJSON
	if sse {
		format = formatSSE
		_ = rw.writeEvent(body)
	} else {
		_ = rw.writeLine(body)
	}
	streamErrorsTotal.WithLabelValues(format, strconv.Itoa(status)).Inc()
	return status
}

func timestamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func metricsOf(m session.MetaInfo) types.Metrics {
	return types.Metrics{
		TotalDuration:      int64(m.TotalDuration),
		LoadDuration:       int64(m.LoadDuration),
		PromptEvalCount:    m.PromptTokens,
		PromptEvalDuration: int64(m.PrefillDuration),
		EvalCount:          m.GeneratedTokens,
		EvalDuration:       int64(m.DecodingDuration),
	}
}

// generateWriter renders /api/generate responses, streamed as NDJSON or as a
// single JSON object.
type generateWriter struct {
	*responseWriter
	model  string
	stream bool
}

func (g *generateWriter) Chunk(text string) error {
	g.log.chunk(text)
	if !g.stream {
		return nil
	}
	g.start("application/x-ndjson", http.StatusOK)
	return g.writeLine(types.GenerateResponse{Model: g.model, CreatedAt: timestamp(), Response: text})
}

func (g *generateWriter) Done(r manager.Result) error {
	resp := types.GenerateResponse{
		Model:      r.Model,
		CreatedAt:  timestamp(),
		Done:       true,
		DoneReason: r.Reason.String(),
		Context:    r.Context,
		Metrics:    metricsOf(r.Meta),
	}
	if g.stream {
		g.start("application/x-ndjson", http.StatusOK)
	} else {
		resp.Response = r.Text
		g.start("application/json", http.StatusOK)
	}
	return g.writeLine(resp)
}

// chatWriter renders /api/chat responses.
type chatWriter struct {
	*responseWriter
	model  string
	stream bool
}

func (c *chatWriter) Chunk(text string) error {
	c.log.chunk(text)
	if !c.stream {
		return nil
	}
	c.start("application/x-ndjson", http.StatusOK)
	return c.writeLine(types.ChatResponse{
		Model:     c.model,
		CreatedAt: timestamp(),
		Message:   types.ChatMessage{Role: "assistant", Content: text},
	})
}

func (c *chatWriter) Done(r manager.Result) error {
	resp := types.ChatResponse{
		Model:      r.Model,
		CreatedAt:  timestamp(),
		Message:    types.ChatMessage{Role: "assistant"},
		Done:       true,
		DoneReason: r.Reason.String(),
		Metrics:    metricsOf(r.Meta),
	}
	if c.stream {
		c.start("application/x-ndjson", http.StatusOK)
	} else {
		resp.Message.Content = r.Text
		c.start("application/json", http.StatusOK)
	}
	return c.writeLine(resp)
}

// completionWriter renders /v1/chat/completions, streamed as server-sent
// events terminated by "data: [DONE]".
type completionWriter struct {
	*responseWriter
	id      string
	created int64
	model   string
	stream  bool
}

func newCompletionWriter(rw *responseWriter, model string, stream bool) *completionWriter {
	return &completionWriter{
		responseWriter: rw,
		id:             "chatcmpl-" + uuid.NewString(),
		created:        time.Now().Unix(),
		model:          model,
		stream:         stream,
	}
}

func (c *completionWriter) chunk(delta types.ChatMessage, finish *string, usage *types.Usage) types.ChatCompletionChunk {
	return types.ChatCompletionChunk{
		ID:      c.id,
		Object:  "chat.completion.chunk",
		Created: c.created,
		Model:   c.model,
		Choices: []types.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		Usage:   usage,
	}
}

func (c *completionWriter) Chunk(text string) error {
	c.log.chunk(text)
	if !c.stream {
		return nil
	}
	if !c.started {
		c.responseWriter.start("text/event-stream", http.StatusOK)
		if err := c.writeEvent(c.chunk(types.ChatMessage{Role: "assistant"}, nil, nil)); err != nil {
			return err
		}
	}
	return c.writeEvent(c.chunk(types.ChatMessage{Content: text}, nil, nil))
}

func (c *completionWriter) Done(r manager.Result) error {
	reason := finishReason(r.Reason)
	usage := types.Usage{
		PromptTokens:     r.Meta.PromptTokens,
		CompletionTokens: r.Meta.GeneratedTokens,
		TotalTokens:      r.Meta.PromptTokens + r.Meta.GeneratedTokens,
	}
	if !c.stream {
		c.responseWriter.start("application/json", http.StatusOK)
		return c.writeLine(types.ChatCompletion{
			ID:      c.id,
			Object:  "chat.completion",
			Created: c.created,
			Model:   r.Model,
			Choices: []types.ChatCompletionChoice{{
				Index:        0,
				Message:      types.ChatMessage{Role: "assistant", Content: r.Text},
				FinishReason: reason,
			}},
			Usage: usage,
		})
	}
	if !c.started {
		c.responseWriter.start("text/event-stream", http.StatusOK)
		if err := c.writeEvent(c.chunk(types.ChatMessage{Role: "assistant"}, nil, nil)); err != nil {
			return err
		}
	}
	if err := c.writeEvent(c.chunk(types.ChatMessage{}, &reason, &usage)); err != nil {
		return err
	}
	return c.write([]byte("data: [DONE]\n\n"))
}

func finishReason(r session.StopReason) string {
	if r == session.StopMaxLength {
		return "length"
	}
	return "stop"
}
