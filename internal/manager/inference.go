package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"npud/internal/session"
	"npud/internal/tokenizer"
	"npud/pkg/types"
)

// Generate runs a single prompt as a user turn. The conversation is kept, so
// successive calls share context until it fills up; the final Result carries
// the token history as Context.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest, w StreamWriter) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrBadRequest("prompt is required")
	}
	release, err := m.Acquire(m.tagOrDefault(req.Model))
	if err != nil {
		return err
	}
	defer release()

	mdl, loadDur, err := m.EnsureModel(ctx, req.Model)
	if err != nil {
		return err
	}
	m.applyOptions(req.Options, req.Think)
	ids, err := m.sess.Tokenize([]tokenizer.Message{{Role: "user", Content: req.Prompt}}, true)
	if err != nil {
		return err
	}
	res, err := m.run(ctx, mdl.ID, ids, req.MaxTokens, loadDur, w)
	if err != nil {
		return err
	}
	res.Context = m.sess.History()
	return w.Done(res)
}

// Chat runs a conversation. System messages are replaced by the session's
// own system prompt. The context is cleared after every turn: the client
// resends the conversation each time.
func (m *Manager) Chat(ctx context.Context, req types.ChatRequest, w StreamWriter) error {
	msgs := chatMessages(req.Messages)
	if len(msgs) == 0 {
		return ErrBadRequest("messages are required")
	}
	release, err := m.Acquire(m.tagOrDefault(req.Model))
	if err != nil {
		return err
	}
	defer release()

	mdl, loadDur, err := m.EnsureModel(ctx, req.Model)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.sess.ClearContext(context.WithoutCancel(ctx)); err != nil {
			m.log.Warn().Err(err).Str("model", mdl.ID).Msg("manager event=clear_context_failed")
		}
	}()
	m.applyOptions(req.Options, req.Think)
	ids, err := m.sess.Tokenize(msgs, true)
	if err != nil {
		return err
	}
	res, err := m.run(ctx, mdl.ID, ids, req.MaxTokens, loadDur, w)
	if err != nil {
		return err
	}
	return w.Done(res)
}

// run prefills ids and streams the generation into w. A prompt that does
// not fit behind the current conversation gets one retry on a cleared
// context.
func (m *Manager) run(ctx context.Context, tag string, ids []int, limit int, loadDur time.Duration, w StreamWriter) (Result, error) {
	meta := session.MetaInfo{LoadDuration: loadDur}
	start := m.now()
	m.publish("generate_start", tag, map[string]any{"prompt_tokens": len(ids)})

	ok, err := m.sess.Insert(ctx, &meta, ids, false)
	if err == nil && !ok {
		m.log.Warn().Str("model", tag).Int("context_tokens", m.sess.TotalTokens()).Msg("manager event=context_reset")
		if err = m.sess.ClearContext(ctx); err == nil {
			ok, err = m.sess.Insert(ctx, &meta, ids, false)
		}
	}
	if err == nil && !ok {
		err = ErrBadRequest(fmt.Sprintf("prompt of %d tokens does not fit the context length %d", len(ids), m.sess.MaxLength()))
	}
	if err != nil {
		m.publish("generate_error", tag, map[string]any{"error": err.Error()})
		return Result{}, err
	}

	text, err := m.sess.Generate(ctx, &meta, limit, chunkSink{w})
	meta.TotalDuration = m.now().Sub(start)
	if err != nil {
		m.publish("generate_error", tag, map[string]any{"error": err.Error()})
		return Result{}, err
	}

	promptTokensTotal.WithLabelValues(tag).Add(float64(meta.PromptTokens))
	generatedTokensTotal.WithLabelValues(tag).Add(float64(meta.GeneratedTokens))
	prefillDuration.WithLabelValues(tag).Observe(meta.PrefillDuration.Seconds())
	decodeDuration.WithLabelValues(tag).Observe(meta.DecodingDuration.Seconds())
	stopReasonsTotal.WithLabelValues(meta.StopReason.String()).Inc()
	m.publish("generate_done", tag, map[string]any{
		"reason":           meta.StopReason.String(),
		"prompt_tokens":    meta.PromptTokens,
		"generated_tokens": meta.GeneratedTokens,
	})
	return Result{Model: tag, Text: text, Reason: meta.StopReason, Meta: meta}, nil
}

func (m *Manager) tagOrDefault(tag string) string {
	if tag == "" {
		return m.defaultModel
	}
	return tag
}

// chatMessages drops system turns and empty roles.
func chatMessages(in []types.ChatMessage) []tokenizer.Message {
	out := make([]tokenizer.Message, 0, len(in))
	for _, msg := range in {
		switch msg.Role {
		case "user", "assistant":
			out = append(out, tokenizer.Message{Role: msg.Role, Content: msg.Content})
		}
	}
	return out
}
