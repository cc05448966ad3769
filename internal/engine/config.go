package engine

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// Config mirrors the fields of a model directory's config.json the engine uses.
type Config struct {
	ModelType            string  `json:"model_type"`
	VocabSize            int     `json:"vocab_size"`
	HiddenSize           int     `json:"hidden_size"`
	IntermediateSize     int     `json:"intermediate_size"`
	NumAttentionHeads    int     `json:"num_attention_heads"`
	NumHiddenLayers      int     `json:"num_hidden_layers"`
	NumKeyValueHeads     int     `json:"num_key_value_heads"`
	HeadDim              int     `json:"head_dim"`
	RMSNormEps           float32 `json:"rms_norm_eps"`
	RopeTheta            float32 `json:"rope_theta"`
	SlidingWindow        int     `json:"sliding_window"`
	SlidingWindowPattern int     `json:"sliding_window_pattern"`

	LayerBinary   string `json:"layer_xclbin_name"`
	LMHeadBinary  string `json:"lm_head_xclbin_name"`
	DequantBinary string `json:"dequant_xclbin_name"`
	MMBinary      string `json:"mm_engine_xclbin_name"`
	MHABinary     string `json:"mha_engine_xclbin_name"`
	FLMVersion    string `json:"flm_version"`

	// Dir is the model directory the binaries are resolved against.
	Dir string `json:"-"`
}

// ApplyDefaults fills unset binary names with the standard file names.
func (c *Config) ApplyDefaults() {
	if c.LayerBinary == "" {
		c.LayerBinary = "layer.xclbin"
	}
	if c.LMHeadBinary == "" {
		c.LMHeadBinary = "lm_head.xclbin"
	}
	if c.DequantBinary == "" {
		c.DequantBinary = "dequant.xclbin"
	}
	if c.MMBinary == "" {
		c.MMBinary = "mm.xclbin"
	}
	if c.MHABinary == "" {
		c.MHABinary = "attn.xclbin"
	}
	if c.FLMVersion == "" {
		c.FLMVersion = "0.0.0"
	}
	if c.HeadDim == 0 && c.NumAttentionHeads > 0 {
		c.HeadDim = c.HiddenSize / c.NumAttentionHeads
	}
}

// Validate reports the first missing required dimension.
func (c Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("engine: config: vocab_size must be > 0")
	case c.HiddenSize <= 0:
		return fmt.Errorf("engine: config: hidden_size must be > 0")
	case c.NumHiddenLayers <= 0:
		return fmt.Errorf("engine: config: num_hidden_layers must be > 0")
	}
	return nil
}

// BinaryPath resolves a binary file name against the model directory.
func (c Config) BinaryPath(name string) string {
	if c.Dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Dir, name)
}

// LoadConfig reads dir/config.json.
func LoadConfig(dir string) (Config, error) {
	b, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return Config{}, fmt.Errorf("engine: read config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("engine: parse config.json: %w", err)
	}
	c.Dir = dir
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
