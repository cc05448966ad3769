package tokenizer

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"npud/internal/engine"
)

// Go regexp has no lookahead, so the trailing-whitespace branch of the
// usual pattern collapses into a plain \s+ match.
var splitPattern = regexp.MustCompile(`(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`)

const metaspace = "▁"

type pair struct{ a, b string }

// BPE is a byte pair encoding tokenizer loaded from a tokenizer.json.
type BPE struct {
	family    engine.Family
	byteLevel bool
	encoder   map[string]int
	decoder   []string
	ranks     map[pair]int
	special   []string // longest first
	specialID map[int]bool
	unk       int

	bos   int
	eos   []int
	think int

	mu    sync.Mutex
	cache map[string][]string
}

var _ Tokenizer = (*BPE)(nil)

func (t *BPE) Family() engine.Family { return t.family }
func (t *BPE) VocabSize() int        { return len(t.decoder) }
func (t *BPE) BOS() int              { return t.bos }
func (t *BPE) EOS() []int            { return append([]int(nil), t.eos...) }
func (t *BPE) ThinkMarker() int      { return t.think }

func (t *BPE) IsEOS(id int) bool {
	for _, e := range t.eos {
		if id == e {
			return true
		}
	}
	return false
}

func (t *BPE) IsNormal(id int) bool {
	return id >= 0 && id != t.bos && !t.IsEOS(id)
}

// TokenString returns the vocabulary entry for id.
func (t *BPE) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

// ID returns the id of a vocabulary entry.
func (t *BPE) ID(token string) (int, bool) {
	id, ok := t.encoder[token]
	return id, ok
}

func (t *BPE) TokenBytes(id int) []byte {
	tok := t.TokenString(id)
	if tok == "" {
		return nil
	}
	if t.specialID[id] {
		return []byte(tok)
	}
	if t.byteLevel {
		out := make([]byte, 0, len(tok))
		for _, r := range tok {
			if b, ok := byteDecoder[r]; ok {
				out = append(out, b)
			} else {
				out = utf8.AppendRune(out, r)
			}
		}
		return out
	}
	if len(tok) == 6 && strings.HasPrefix(tok, "<0x") && tok[5] == '>' {
		if b, err := strconv.ParseUint(tok[3:5], 16, 8); err == nil {
			return []byte{byte(b)}
		}
	}
	return []byte(strings.ReplaceAll(tok, metaspace, " "))
}

func (t *BPE) Decode(ids []int) string {
	var b []byte
	for _, id := range ids {
		b = append(b, t.TokenBytes(id)...)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

func (t *BPE) NewStreamDecoder() *StreamDecoder { return NewStreamDecoderFunc(t.TokenBytes) }

// Encode splits out special tokens, pre-tokenizes the rest and applies merges.
func (t *BPE) Encode(text string) []int {
	var ids []int
	for _, part := range t.splitSpecial(text) {
		if part.special {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		if t.byteLevel {
			for _, piece := range splitPattern.FindAllString(part.text, -1) {
				var sb strings.Builder
				for i := 0; i < len(piece); i++ {
					sb.WriteRune(byteEncoder[piece[i]])
				}
				ids = t.appendPieces(ids, sb.String())
			}
			continue
		}
		ids = t.appendPieces(ids, strings.ReplaceAll(part.text, " ", metaspace))
	}
	return ids
}

func (t *BPE) appendPieces(ids []int, word string) []int {
	for _, p := range t.merge(word) {
		if id, ok := t.encoder[p]; ok {
			ids = append(ids, id)
			continue
		}
		// byte fallback
		found := true
		for i := 0; i < len(p); i++ {
			id, ok := t.encoder[fmt.Sprintf("<0x%02X>", p[i])]
			if !ok {
				found = false
				break
			}
			ids = append(ids, id)
		}
		if !found && t.unk >= 0 {
			ids = append(ids, t.unk)
		}
	}
	return ids
}

func (t *BPE) merge(word string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.cache[word]; ok {
		return v
	}
	if _, ok := t.encoder[word]; ok {
		t.cache[word] = []string{word}
		return t.cache[word]
	}
	parts := make([]string, 0, len(word))
	for _, r := range word {
		parts = append(parts, string(r))
	}
	for len(parts) > 1 {
		best, at := -1, -1
		for i := 0; i+1 < len(parts); i++ {
			if r, ok := t.ranks[pair{parts[i], parts[i+1]}]; ok && (best < 0 || r < best) {
				best, at = r, i
			}
		}
		if at < 0 {
			break
		}
		merged := parts[at] + parts[at+1]
		parts = append(parts[:at+1], parts[at+2:]...)
		parts[at] = merged
	}
	t.cache[word] = parts
	return parts
}

type textPart struct {
	text    string
	special bool
}

func (t *BPE) splitSpecial(text string) []textPart {
	if len(t.special) == 0 {
		return []textPart{{text: text}}
	}
	var parts []textPart
	start := 0
	for i := 0; i < len(text); {
		match := ""
		for _, sp := range t.special {
			if strings.HasPrefix(text[i:], sp) {
				match = sp
				break
			}
		}
		if match == "" {
			i++
			continue
		}
		if i > start {
			parts = append(parts, textPart{text: text[start:i]})
		}
		parts = append(parts, textPart{text: match, special: true})
		i += len(match)
		start = i
	}
	if start < len(text) {
		parts = append(parts, textPart{text: text[start:]})
	}
	return parts
}

func sortLongestFirst(s []string) {
	sort.SliceStable(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
}
