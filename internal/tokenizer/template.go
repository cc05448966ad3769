package tokenizer

import (
	"strings"

	"npud/internal/engine"
)

// ApplyChatTemplate renders msgs in the family's turn format. The begin-of-text
// marker is emitted only when the conversation opens with a system turn, since
// later turns extend an existing context.
func (t *BPE) ApplyChatTemplate(msgs []Message, addGenerationPrompt, think bool) string {
	var b strings.Builder
	opensContext := len(msgs) > 0 && msgs[0].Role == "system"
	switch t.family {
	case engine.FamilyQwen:
		for _, m := range msgs {
			b.WriteString("<|im_start|>" + m.Role + "\n" + m.Content + "<|im_end|>\n")
		}
		if addGenerationPrompt {
			b.WriteString("<|im_start|>assistant\n")
			if !think && t.think >= 0 {
				b.WriteString("<think>\n\n</think>\n\n")
			}
		}
	case engine.FamilyGemma:
		if opensContext {
			b.WriteString("<bos>")
		}
		var system string
		for _, m := range msgs {
			if m.Role == "system" {
				system = m.Content
				continue
			}
			role := m.Role
			if role == "assistant" {
				role = "model"
			}
			content := m.Content
			if system != "" && role == "user" {
				content = system + "\n\n" + content
				system = ""
			}
			b.WriteString("<start_of_turn>" + role + "\n" + content + "<end_of_turn>\n")
		}
		if system != "" {
			b.WriteString("<start_of_turn>user\n" + system + "<end_of_turn>\n")
		}
		if addGenerationPrompt {
			b.WriteString("<start_of_turn>model\n")
		}
	default:
		if opensContext {
			b.WriteString("<|begin_of_text|>")
		}
		for _, m := range msgs {
			b.WriteString("<|start_header_id|>" + m.Role + "<|end_header_id|>\n\n" + m.Content + "<|eot_id|>")
		}
		if addGenerationPrompt {
			b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
			if think && t.think >= 0 {
				b.WriteString(t.TokenString(t.think) + "\n")
			}
		}
	}
	return b.String()
}
