package session

import (
	"context"
	"time"

	"npud/internal/tokenizer"
)

// DefaultSystemPrompt renders the system prompt: a fixed preamble, the
// local date and time, then any custom info.
func DefaultSystemPrompt(now time.Time, info string) string {
	p := "You are a helpful assistant.\n\nCurrent date and time: " + now.Format("2006-01-02 15:04:05") + ".\n"
	if info != "" {
		p += info + " "
	}
	return p
}

// SystemPrompt returns the system prompt as it would be inserted now.
func (s *Session) SystemPrompt() string {
	s.mu.Lock()
	info := s.systemInfo
	s.mu.Unlock()
	return DefaultSystemPrompt(s.now(), info)
}

// SetSystemPrompt replaces the custom system info. It takes effect on the
// next ClearContext or Load.
func (s *Session) SetSystemPrompt(info string) {
	s.mu.Lock()
	s.systemInfo = info
	s.mu.Unlock()
}

func (s *Session) insertSystemPrompt(ctx context.Context) error {
	rt, err := s.runtime()
	if err != nil {
		return err
	}
	text := rt.Tokenizer.ApplyChatTemplate([]tokenizer.Message{{Role: "system", Content: s.SystemPrompt()}}, false, false)
	ok, err := s.Insert(ctx, nil, rt.Tokenizer.Encode(text), true)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn().Int("max_len", s.MaxLength()).Msg("session event=system_prompt_skipped reason=context_full")
	}
	return nil
}
