package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"npud/internal/engine"
)

type tokenizerFile struct {
	Model struct {
		Type     string          `json:"type"`
		Vocab    map[string]int  `json:"vocab"`
		Merges   json.RawMessage `json:"merges"`
		UnkToken *string         `json:"unk_token"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
	Decoder *struct {
		Type string `json:"type"`
	} `json:"decoder"`
}

type configFile struct {
	BOSToken      json.RawMessage `json:"bos_token"`
	EOSToken      json.RawMessage `json:"eos_token"`
	BOSTokenID    *int            `json:"bos_token_id"`
	EOSTokenID    json.RawMessage `json:"eos_token_id"`
	ThinkMarkerID *int            `json:"think_marker_id"`
}

// Load reads tokenizer.json and tokenizer_config.json from dir.
func Load(dir string, family engine.Family) (*BPE, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	var cfgRaw []byte
	if b, err := os.ReadFile(filepath.Join(dir, "tokenizer_config.json")); err == nil {
		cfgRaw = b
	}
	return Parse(raw, cfgRaw, family)
}

// Parse builds a tokenizer from the contents of tokenizer.json and an
// optional tokenizer_config.json.
func Parse(tokJSON, cfgJSON []byte, family engine.Family) (*BPE, error) {
	var tf tokenizerFile
	if err := json.Unmarshal(tokJSON, &tf); err != nil {
		return nil, fmt.Errorf("tokenizer: parse tokenizer.json: %w", err)
	}
	if t := strings.ToUpper(tf.Model.Type); t != "" && t != "BPE" {
		return nil, fmt.Errorf("tokenizer: unsupported model type %q", tf.Model.Type)
	}
	t := &BPE{
		family:    family,
		byteLevel: tf.Decoder == nil || tf.Decoder.Type == "ByteLevel",
		encoder:   make(map[string]int, len(tf.Model.Vocab)+len(tf.AddedTokens)),
		ranks:     map[pair]int{},
		specialID: map[int]bool{},
		unk:       -1,
		bos:       -1,
		think:     -1,
		cache:     map[string][]string{},
	}
	maxID := -1
	for tok, id := range tf.Model.Vocab {
		t.encoder[tok] = id
		maxID = max(maxID, id)
	}
	for _, at := range tf.AddedTokens {
		t.encoder[at.Content] = at.ID
		maxID = max(maxID, at.ID)
		if at.Special {
			t.special = append(t.special, at.Content)
			t.specialID[at.ID] = true
		}
	}
	sortLongestFirst(t.special)
	t.decoder = make([]string, maxID+1)
	for tok, id := range t.encoder {
		if id >= 0 {
			t.decoder[id] = tok
		}
	}
	if err := t.loadMerges(tf.Model.Merges); err != nil {
		return nil, err
	}
	if tf.Model.UnkToken != nil {
		if id, ok := t.encoder[*tf.Model.UnkToken]; ok {
			t.unk = id
		}
	}
	if len(cfgJSON) > 0 {
		if err := t.applyConfig(cfgJSON); err != nil {
			return nil, err
		}
	}
	t.fillFamilyDefaults()
	return t, nil
}

func (t *BPE) loadMerges(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("tokenizer: merges: %w", err)
	}
	for rank, it := range items {
		var a, b string
		var s string
		if err := json.Unmarshal(it, &s); err == nil {
			var ok bool
			a, b, ok = strings.Cut(s, " ")
			if !ok {
				continue
			}
		} else {
			var p []string
			if err := json.Unmarshal(it, &p); err != nil || len(p) != 2 {
				continue
			}
			a, b = p[0], p[1]
		}
		if _, seen := t.ranks[pair{a, b}]; !seen {
			t.ranks[pair{a, b}] = rank
		}
	}
	return nil
}

func (t *BPE) applyConfig(raw []byte) error {
	var cf configFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return fmt.Errorf("tokenizer: parse tokenizer_config.json: %w", err)
	}
	switch {
	case cf.BOSTokenID != nil:
		t.bos = *cf.BOSTokenID
	default:
		if s := tokenContent(cf.BOSToken); s != "" {
			if id, ok := t.encoder[s]; ok {
				t.bos = id
			}
		}
	}
	if len(cf.EOSTokenID) > 0 {
		var one int
		var many []int
		if err := json.Unmarshal(cf.EOSTokenID, &one); err == nil {
			t.eos = []int{one}
		} else if err := json.Unmarshal(cf.EOSTokenID, &many); err == nil {
			t.eos = many
		}
	}
	if len(t.eos) == 0 {
		if s := tokenContent(cf.EOSToken); s != "" {
			if id, ok := t.encoder[s]; ok {
				t.eos = []int{id}
			}
		}
	}
	if cf.ThinkMarkerID != nil {
		t.think = *cf.ThinkMarkerID
	}
	return nil
}

// tokenContent accepts either "<tok>" or {"content": "<tok>"}.
func tokenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Content
	}
	return ""
}

// fillFamilyDefaults adds the turn terminators each family's template emits.
func (t *BPE) fillFamilyDefaults() {
	var stops []string
	switch t.family {
	case engine.FamilyLlama:
		stops = []string{"<|eot_id|>", "<|end_of_text|>", "<|eom_id|>"}
	case engine.FamilyQwen:
		stops = []string{"<|im_end|>", "<|endoftext|>"}
	case engine.FamilyGemma:
		stops = []string{"<end_of_turn>", "<eos>"}
	}
	for _, s := range stops {
		if id, ok := t.encoder[s]; ok && !t.IsEOS(id) {
			t.eos = append(t.eos, id)
		}
	}
	if t.think < 0 {
		if id, ok := t.encoder["<think>"]; ok {
			t.think = id
		}
	}
}
