package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"npud/internal/engine"
	"npud/internal/tokenizer"
)

// Tokenize renders msgs through the model's chat template and encodes the
// result. The think flag of the session selects the template variant.
func (s *Session) Tokenize(msgs []tokenizer.Message, addGenerationPrompt bool) ([]int, error) {
	rt, err := s.runtime()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	think := s.think
	s.mu.Unlock()
	start := s.now()
	ids := rt.Tokenizer.Encode(rt.Tokenizer.ApplyChatTemplate(msgs, addGenerationPrompt, think))
	s.record(phaseTokenEncode, start, len(ids))
	return ids, nil
}

// Encode tokenizes raw text without a template.
func (s *Session) Encode(text string) ([]int, error) {
	rt, err := s.runtime()
	if err != nil {
		return nil, err
	}
	start := s.now()
	ids := rt.Tokenizer.Encode(text)
	s.record(phaseTokenEncode, start, len(ids))
	return ids, nil
}

// Insert prefills tokens and samples the token that follows them into the
// pending slot. It returns false without touching history or the engine when
// the context cannot hold tokens. A token still pending from an earlier
// Insert is discarded; the engine never consumed it.
//
// With systemPrompt set, every latency accumulator is reset afterwards.
func (s *Session) Insert(ctx context.Context, meta *MetaInfo, tokens []int, systemPrompt bool) (bool, error) {
	rt, err := s.runtime()
	if err != nil {
		return false, err
	}
	if len(tokens) == 0 {
		return false, nil
	}

	s.mu.Lock()
	if s.totalLocked()+len(tokens) >= s.maxLen {
		total, maxLen := s.totalLocked(), s.maxLen
		s.mu.Unlock()
		s.log.Warn().Int("total", total).Int("tokens", len(tokens)).Int("max_len", maxLen).
			Msg("session event=insert_rejected reason=context_full")
		return false, nil
	}
	if !systemPrompt {
		s.turnStart = s.now()
	}
	base := len(s.history)
	// Tokens committed by Generate that the engine has not consumed yet
	// (the last token of a turn stopped by a length limit) go first.
	seen := rt.Engine.ContextLength()
	if seen > base {
		seen = base
	}
	feed := append(append([]int(nil), s.history[seen:]...), tokens...)
	s.history = append(s.history, tokens...)
	hadPending := s.hasPending
	s.hasPending = false
	s.state = StatePrefilling
	s.mu.Unlock()

	start := s.now()
	logits, err := rt.Engine.Prefill(ctx, feed)
	if err != nil {
		// The engine keeps its position on a failed prefill, so restoring
		// history and the pending slot leaves both sides where they were.
		s.mu.Lock()
		s.history = s.history[:base]
		s.hasPending = hadPending
		s.state = StateReady
		s.mu.Unlock()
		s.log.Warn().Err(err).Int("tokens", len(tokens)).Msg("session event=prefill_failed")
		return false, err
	}
	prefill := s.now().Sub(start)
	s.record(phasePrefill, start, len(feed))

	start = s.now()
	tok := s.smp.Sample(logits)
	s.record(phaseSampling, start, 1)

	s.mu.Lock()
	s.pending, s.hasPending, s.lastToken = tok, true, tok
	s.state = StateReady
	if systemPrompt {
		s.prof.reset()
	}
	s.mu.Unlock()

	if meta != nil {
		meta.PromptTokens += len(tokens)
		meta.PrefillDuration += prefill
	}
	s.log.Debug().Int("tokens", len(tokens)).Bool("system", systemPrompt).Dur("dur", prefill).Msg("session event=prefill")
	return true, nil
}

// Generate decodes from the pending token until an end-of-sequence token, the
// context limit, lengthLimit generated tokens (when > 0), or ctx cancellation.
// Decoded text is written to sink as it is produced and also returned. Write
// errors stop generation and are returned.
func (s *Session) Generate(ctx context.Context, meta *MetaInfo, lengthLimit int, sink io.Writer) (string, error) {
	rt, err := s.runtime()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	if !s.hasPending {
		s.mu.Unlock()
		return "", ErrNoPendingToken
	}
	last := s.pending
	s.history = append(s.history, last)
	s.hasPending = false
	s.state = StateDecoding
	think := s.think
	turnStart := s.turnStart
	s.mu.Unlock()

	if meta == nil {
		meta = &MetaInfo{}
	}
	g := &generation{s: s, rt: rt, sink: sink, dec: rt.Tokenizer.NewStreamDecoder(), start: s.now(), turnStart: turnStart}
	tok := rt.Tokenizer

	// Llama templates place the think marker in the prompt, so the client
	// never sees it unless it is echoed here.
	if think && tok.Family() == engine.FamilyLlama && tok.ThinkMarker() >= 0 {
		if err := g.emitToken(tok.ThinkMarker()); err != nil {
			return g.finish(meta, StopNone), err
		}
		if err := g.write("\n"); err != nil {
			return g.finish(meta, StopNone), err
		}
	}

	g.generated = 1
	if tok.IsNormal(last) {
		if err := g.emitToken(last); err != nil {
			return g.finish(meta, StopNone), err
		}
	}
	if tok.IsEOS(last) {
		return g.finish(meta, StopEOT), nil
	}
	if lengthLimit > 0 && g.generated >= lengthLimit {
		return g.finish(meta, StopMaxLength), nil
	}

	for s.TotalTokens() < s.MaxLength() {
		if ctx.Err() != nil {
			return g.finish(meta, StopCancelled), nil
		}
		start := s.now()
		logits, err := rt.Engine.Forward(ctx, last)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return g.finish(meta, StopCancelled), nil
			}
			return g.finish(meta, StopNone), err
		}
		s.record(phaseDecoding, start, 1)

		start = s.now()
		next := s.smp.Sample(logits)
		s.record(phaseSampling, start, 1)

		s.mu.Lock()
		s.history = append(s.history, next)
		s.lastToken = next
		s.mu.Unlock()
		g.generated++
		last = next

		if tok.IsNormal(next) {
			if err := g.emitToken(next); err != nil {
				return g.finish(meta, StopNone), err
			}
		}
		if tok.IsEOS(next) {
			// One more step flushes the engine pipeline past the end marker.
			if _, err := rt.Engine.Forward(ctx, next); err != nil && !errors.Is(err, engine.ErrContextFull) {
				s.log.Warn().Err(err).Msg("session event=eos_flush_failed")
			}
			return g.finish(meta, StopEOT), nil
		}
		if lengthLimit > 0 && g.generated >= lengthLimit {
			return g.finish(meta, StopMaxLength), nil
		}
	}
	s.log.Warn().Int("max_len", s.MaxLength()).Msg("session event=max_length_reached")
	return g.finish(meta, StopMaxLength), nil
}

// GenerateWithPrompt inserts tokens and generates. It returns "" when the
// insert is rejected.
func (s *Session) GenerateWithPrompt(ctx context.Context, meta *MetaInfo, tokens []int, lengthLimit int, sink io.Writer) (string, error) {
	ok, err := s.Insert(ctx, meta, tokens, false)
	if err != nil || !ok {
		return "", err
	}
	return s.Generate(ctx, meta, lengthLimit, sink)
}

// ClearContext empties the history, resets counters and accumulators,
// rewinds the engine and inserts the system prompt again.
func (s *Session) ClearContext(ctx context.Context) error {
	rt, err := s.runtime()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.history = s.history[:0]
	s.hasPending = false
	s.lastToken = -1
	s.turnStart = time.Time{}
	s.prof.reset()
	s.mu.Unlock()
	rt.Engine.ClearContext()
	s.smp.ResetPenalties()
	return s.insertSystemPrompt(ctx)
}

// SetMaxLength changes the context limit and resizes the engine.
func (s *Session) SetMaxLength(n int) error {
	if n <= 0 {
		s.log.Warn().Int("value", n).Msg("session event=invalid_param param=max_length")
		return nil
	}
	s.mu.Lock()
	rt := s.rt
	s.mu.Unlock()
	if rt != nil {
		if err := rt.Engine.UpdateMaxLength(n); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.maxLen = n
	s.mu.Unlock()
	return nil
}

// generation is the per-call state of Generate.
type generation struct {
	s         *Session
	rt        *Runtime
	sink      io.Writer
	dec       *tokenizer.StreamDecoder
	out       strings.Builder
	start     time.Time
	turnStart time.Time
	firstOut  bool
	generated int
}

func (g *generation) emitToken(id int) error {
	start := g.s.now()
	text := g.dec.Next(id)
	g.s.record(phaseTokenDecode, start, 1)
	return g.write(text)
}

func (g *generation) write(text string) error {
	if text == "" {
		return nil
	}
	if !g.firstOut {
		g.firstOut = true
		if !g.turnStart.IsZero() {
			g.s.record(phaseTTFT, g.turnStart, 1)
		}
	}
	g.out.WriteString(text)
	if g.sink == nil {
		return nil
	}
	_, err := io.WriteString(g.sink, text)
	return err
}

func (g *generation) finish(meta *MetaInfo, reason StopReason) string {
	if rest := g.dec.Flush(); rest != "" {
		g.out.WriteString(rest)
		if g.sink != nil {
			_, _ = io.WriteString(g.sink, rest)
		}
	}
	now := g.s.now()
	meta.StopReason = reason
	meta.GeneratedTokens += g.generated
	meta.DecodingDuration += now.Sub(g.start)
	if !g.turnStart.IsZero() {
		g.s.record(phaseTotal, g.turnStart, g.generated)
	}
	g.s.mu.Lock()
	g.s.state = StateReady
	g.s.turnStart = time.Time{}
	g.s.mu.Unlock()
	g.s.log.Debug().Int("generated", g.generated).Str("reason", reason.String()).
		Dur("dur", now.Sub(g.start)).Msg("session event=generate_done")
	return g.out.String()
}
