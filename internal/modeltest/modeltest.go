// Package modeltest writes small but complete model directories for tests and
// the simulated driver: a byte-level vocabulary, chat specials, config files,
// empty accelerator binaries and a weights file.
package modeltest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"npud/internal/tokenizer"
)

// Merged tokens that follow the 256 byte tokens.
var merges = [][2]string{{"h", "e"}, {"l", "l"}, {"he", "ll"}, {"hell", "o"}}

// Specials are the added tokens, in id order after the merged tokens.
var Specials = []string{
	"<|begin_of_text|>", "<|end_of_text|>", "<|start_header_id|>", "<|end_header_id|>", "<|eot_id|>",
	"<|im_start|>", "<|im_end|>", "<|endoftext|>",
	"<bos>", "<eos>", "<start_of_turn>", "<end_of_turn>",
	"<think>", "</think>",
}

// WeightsSize is the size of the model.q4nx file WriteModel creates.
const WeightsSize = 4096

// FirstSpecial is the id of Specials[0].
func FirstSpecial() int { return 256 + len(merges) }

// VocabSize is the number of tokens in the fixture vocabulary.
func VocabSize() int { return FirstSpecial() + len(Specials) }

// SpecialID returns the id of a special token, or -1.
func SpecialID(s string) int {
	for i, sp := range Specials {
		if sp == s {
			return FirstSpecial() + i
		}
	}
	return -1
}

// ByteID returns the token id of a single byte.
func ByteID(b byte) int { return int(b) }

// TextIDs spells s one byte per token.
func TextIDs(s string) []int {
	ids := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		ids[i] = int(s[i])
	}
	return ids
}

// TokenizerJSON returns a byte-level BPE tokenizer.json.
func TokenizerJSON() []byte {
	vocab := make(map[string]int, VocabSize())
	for b := 0; b < 256; b++ {
		vocab[tokenizer.ByteToken(byte(b))] = b
	}
	ms := make([]string, 0, len(merges))
	for i, m := range merges {
		vocab[m[0]+m[1]] = 256 + i
		ms = append(ms, m[0]+" "+m[1])
	}
	type added struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	}
	var at []added
	for i, s := range Specials {
		at = append(at, added{ID: FirstSpecial() + i, Content: s, Special: true})
	}
	doc := map[string]any{
		"model":        map[string]any{"type": "BPE", "vocab": vocab, "merges": ms},
		"added_tokens": at,
		"decoder":      map[string]any{"type": "ByteLevel"},
	}
	b, _ := json.Marshal(doc)
	return b
}

// TokenizerConfigJSON returns tokenizer_config.json for a config.json model_type.
func TokenizerConfigJSON(modelType string) []byte {
	var doc map[string]any
	switch modelType {
	case "qwen3", "qwen2":
		doc = map[string]any{"bos_token": nil, "eos_token": "<|im_end|>", "think_marker_id": SpecialID("<think>")}
	case "gemma3", "gemma3_text", "gemma":
		doc = map[string]any{"bos_token": "<bos>", "eos_token": "<eos>"}
	default:
		doc = map[string]any{
			"bos_token":    "<|begin_of_text|>",
			"bos_token_id": SpecialID("<|begin_of_text|>"),
			"eos_token":    "<|eot_id|>",
			"eos_token_id": []int{SpecialID("<|end_of_text|>"), SpecialID("<|eot_id|>")},
		}
	}
	b, _ := json.Marshal(doc)
	return b
}

// ConfigJSON returns a minimal config.json.
func ConfigJSON(modelType string) []byte {
	return []byte(fmt.Sprintf(`{"model_type":%q,"vocab_size":%d,"hidden_size":16,"intermediate_size":32,"num_attention_heads":2,"num_key_value_heads":1,"num_hidden_layers":2,"rms_norm_eps":1e-5}`,
		modelType, VocabSize()))
}

// RequiredFiles lists the files a model directory must hold.
var RequiredFiles = []string{
	"config.json", "tokenizer.json", "tokenizer_config.json",
	"attn.xclbin", "mm.xclbin", "dequant.xclbin", "layer.xclbin", "lm_head.xclbin",
	"model.q4nx",
}

// WriteModel writes a complete model directory under dir/name and returns its path.
func WriteModel(tb testing.TB, dir, name, modelType string) string {
	tb.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	files := map[string][]byte{
		"config.json":           ConfigJSON(modelType),
		"tokenizer.json":        TokenizerJSON(),
		"tokenizer_config.json": TokenizerConfigJSON(modelType),
		"model.q4nx":            make([]byte, WeightsSize),
	}
	for _, f := range RequiredFiles {
		body, ok := files[f]
		if !ok {
			body = []byte("xclbin")
		}
		if err := os.WriteFile(filepath.Join(p, f), body, 0o644); err != nil {
			tb.Fatalf("write %s: %v", f, err)
		}
	}
	return p
}
