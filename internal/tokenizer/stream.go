package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// StreamDecoder turns a token stream into text fragments that never split a
// multi-byte character. Bytes of an incomplete trailing sequence are held
// until the next token completes them.
type StreamDecoder struct {
	bytesOf func(id int) []byte
	pending []byte
}

// NewStreamDecoderFunc returns a StreamDecoder over a token-to-bytes function.
func NewStreamDecoderFunc(bytesOf func(id int) []byte) *StreamDecoder {
	return &StreamDecoder{bytesOf: bytesOf}
}

// Next appends the bytes of id and returns the text that is now complete.
func (d *StreamDecoder) Next(id int) string {
	d.pending = append(d.pending, d.bytesOf(id)...)
	cut := completePrefix(d.pending)
	if cut == 0 {
		return ""
	}
	out := strings.ToValidUTF8(string(d.pending[:cut]), string(utf8.RuneError))
	d.pending = append(d.pending[:0], d.pending[cut:]...)
	return out
}

// Flush returns any held bytes, each invalid run replaced by U+FFFD.
func (d *StreamDecoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	out := strings.ToValidUTF8(string(d.pending), string(utf8.RuneError))
	d.pending = d.pending[:0]
	return out
}

// Pending reports how many bytes are held.
func (d *StreamDecoder) Pending() int { return len(d.pending) }

// completePrefix returns the length of b without a trailing incomplete rune.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax+1; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return i
			}
			break
		}
	}
	return len(b)
}
