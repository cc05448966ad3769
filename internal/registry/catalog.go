package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"npud/internal/common/fsutil"
	"npud/pkg/types"
)

// ErrModelNotFound is returned (wrapped) when a tag names no catalog entry.
var ErrModelNotFound = errors.New("model not found")

const defaultQuantization = "Q4_1"

// EntryDetails is the details block of a catalog entry.
type EntryDetails struct {
	Think           bool   `json:"think" yaml:"think" toml:"think"`
	ThinkToggleable bool   `json:"think_toggleable" yaml:"think_toggleable" toml:"think_toggleable"`
	Family          string `json:"family" yaml:"family" toml:"family"`
	ParameterSize   string `json:"parameter_size" yaml:"parameter_size" toml:"parameter_size"`
	Quantization    string `json:"quantization_level" yaml:"quantization_level" toml:"quantization_level"`
}

// Entry is one size of a model family in the catalog.
type Entry struct {
	// Name is the model folder under the catalog's model path.
	Name                 string `json:"name" yaml:"name" toml:"name"`
	URL                  string `json:"url" yaml:"url" toml:"url"`
	Size                 int64  `json:"size" yaml:"size" toml:"size"`
	DefaultContextLength int    `json:"default_context_length" yaml:"default_context_length" toml:"default_context_length"`
	// Default marks the size a bare family tag resolves to.
	Default bool         `json:"default" yaml:"default" toml:"default"`
	Details EntryDetails `json:"details" yaml:"details" toml:"details"`
}

type catalogFile struct {
	ModelPath string                      `json:"model_path" yaml:"model_path" toml:"model_path"`
	Models    map[string]map[string]Entry `json:"models" yaml:"models" toml:"models"`
}

// Catalog maps tags of the form family:size to model directories.
type Catalog struct {
	modelPath string
	families  []string
	sizes     map[string][]string
	entries   map[string]map[string]Entry
}

// LoadCatalog reads a catalog file. The format follows the extension: .json,
// .yaml/.yml or .toml. A relative model_path is resolved against the
// catalog's directory.
func LoadCatalog(path string) (*Catalog, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	switch strings.ToLower(filepath.Ext(p)) {
	case ".json":
		err = json.Unmarshal(b, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &f)
	case ".toml":
		err = toml.Unmarshal(b, &f)
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", filepath.Ext(p))
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	mp, err := fsutil.ExpandHome(f.ModelPath)
	if err != nil {
		return nil, err
	}
	if mp != "" && !filepath.IsAbs(mp) {
		mp = filepath.Join(filepath.Dir(p), mp)
	}
	c := NewCatalog(mp, f.Models)
	if len(c.families) == 0 {
		return nil, fmt.Errorf("catalog %s lists no models", path)
	}
	return c, nil
}

// NewCatalog builds a catalog from family -> size -> entry. Entries without a
// name are dropped.
func NewCatalog(modelPath string, models map[string]map[string]Entry) *Catalog {
	c := &Catalog{
		modelPath: modelPath,
		sizes:     make(map[string][]string),
		entries:   make(map[string]map[string]Entry),
	}
	for fam, sizes := range models {
		for size, e := range sizes {
			if e.Name == "" {
				continue
			}
			if c.entries[fam] == nil {
				c.entries[fam] = make(map[string]Entry)
				c.families = append(c.families, fam)
			}
			c.entries[fam][size] = e
			c.sizes[fam] = append(c.sizes[fam], size)
		}
	}
	sort.Strings(c.families)
	for fam := range c.sizes {
		sortSizes(c.sizes[fam])
	}
	return c
}

// FromModels builds a catalog from scanned model folders; each folder is its
// own family with a single size.
func FromModels(modelPath string, ms []types.Model) *Catalog {
	models := make(map[string]map[string]Entry, len(ms))
	for _, m := range ms {
		models[m.ID] = map[string]Entry{"": {
			Name: m.Name,
			Size: m.Size,
			Details: EntryDetails{
				Family:       m.Details.Family,
				Quantization: m.Details.QuantizationLevel,
			},
		}}
	}
	return NewCatalog(modelPath, models)
}

// ModelPath returns the directory model folders live in.
func (c *Catalog) ModelPath() string { return c.modelPath }

// SetModelPath overrides the directory model folders live in.
func (c *Catalog) SetModelPath(dir string) { c.modelPath = dir }

// Resolve maps a tag to its model. "family:size" selects one entry; a bare
// "family" selects the entry marked default, else the smallest size.
func (c *Catalog) Resolve(tag string) (types.Model, error) {
	fam, size, hasSize := strings.Cut(tag, ":")
	sizes, ok := c.entries[fam]
	if !ok {
		return types.Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, tag)
	}
	if !hasSize || size == "" {
		size = c.defaultSize(fam)
	}
	e, ok := sizes[size]
	if !ok {
		// Tags are matched case-insensitively on the size part ("1B" == "1b").
		for k, v := range sizes {
			if strings.EqualFold(k, size) {
				size, e, ok = k, v, true
				break
			}
		}
	}
	if !ok {
		return types.Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, tag)
	}
	return c.model(fam, size, e), nil
}

// Models lists every entry, ordered by family then size.
func (c *Catalog) Models() []types.Model {
	var out []types.Model
	for _, fam := range c.families {
		for _, size := range c.sizes[fam] {
			out = append(out, c.model(fam, size, c.entries[fam][size]))
		}
	}
	return out
}

// Installed reports whether the model folder holds every required file.
func (c *Catalog) Installed(m types.Model) bool { return len(Missing(m.Path)) == 0 }

func (c *Catalog) defaultSize(fam string) string {
	for _, size := range c.sizes[fam] {
		if c.entries[fam][size].Default {
			return size
		}
	}
	return c.sizes[fam][0]
}

func (c *Catalog) model(fam, size string, e Entry) types.Model {
	tag := fam
	if size != "" {
		tag = fam + ":" + size
	}
	path := e.Name
	if !filepath.IsAbs(path) && c.modelPath != "" {
		path = filepath.Join(c.modelPath, e.Name)
	}
	quant := e.Details.Quantization
	if quant == "" {
		quant = defaultQuantization
	}
	family := e.Details.Family
	if family == "" {
		family = fam
	}
	param := e.Details.ParameterSize
	if param == "" {
		param = size
	}
	return types.Model{
		ID:            tag,
		Name:          e.Name,
		Path:          path,
		URL:           e.URL,
		Size:          e.Size,
		ContextLength: e.DefaultContextLength,
		Details: types.ModelDetails{
			Format:            "q4nx",
			Family:            family,
			ParameterSize:     param,
			QuantizationLevel: quant,
			Think:             e.Details.Think,
			ThinkToggleable:   e.Details.ThinkToggleable,
		},
	}
}

// sortSizes orders size labels by their numeric prefix ("0.6b" < "1b" < "14b"),
// falling back to string order.
func sortSizes(s []string) {
	sort.Slice(s, func(i, j int) bool {
		a, aok := sizeValue(s[i])
		b, bok := sizeValue(s[j])
		switch {
		case aok && bok && a != b:
			return a < b
		case aok != bok:
			return aok
		}
		return s[i] < s[j]
	})
}

func sizeValue(label string) (float64, bool) {
	end := 0
	for end < len(label) && (label[end] == '.' || (label[end] >= '0' && label[end] <= '9')) {
		end++
	}
	v, err := strconv.ParseFloat(label[:end], 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(label[end:]) {
	case "m":
		v /= 1000
	case "t":
		v *= 1000
	}
	return v, true
}
