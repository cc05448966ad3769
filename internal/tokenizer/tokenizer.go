// Package tokenizer converts between text and token ids for the supported
// model families and renders their chat templates.
package tokenizer

import "npud/internal/engine"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tokenizer is the text side of a loaded model.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	// TokenBytes returns the raw bytes one token contributes to decoded text.
	TokenBytes(id int) []byte
	NewStreamDecoder() *StreamDecoder
	IsEOS(id int) bool
	// IsNormal reports whether id is neither BOS nor an end-of-sequence id.
	IsNormal(id int) bool
	BOS() int
	EOS() []int
	// ThinkMarker is the id that opens a reasoning block, or -1.
	ThinkMarker() int
	ApplyChatTemplate(msgs []Message, addGenerationPrompt, think bool) string
	VocabSize() int
	Family() engine.Family
}
