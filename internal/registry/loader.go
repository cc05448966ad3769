package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"npud/internal/common/fsutil"
	"npud/internal/engine"
	"npud/pkg/types"
)

// RequiredFiles lists the files a model directory must contain to be loadable.
var RequiredFiles = []string{
	"config.json",
	"tokenizer.json",
	"tokenizer_config.json",
	"attn.xclbin",
	"mm.xclbin",
	"dequant.xclbin",
	"layer.xclbin",
	"lm_head.xclbin",
	"model.q4nx",
}

// LoadDir scans a directory for model folders (subdirectories holding a
// config.json) and builds a registry from them. ID and Name are the folder
// name; Path is the absolute folder path. Folders whose config.json cannot be
// parsed are skipped.
func LoadDir(dir string) ([]types.Model, error) {
	abs, err := fsutil.AbsPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(abs, e.Name())
		cfg, err := engine.LoadConfig(p)
		if err != nil {
			continue
		}
		name := e.Name()
		models = append(models, types.Model{
			ID:   name,
			Name: name,
			Path: p,
			Size: fsutil.DirSize(p),
			Details: types.ModelDetails{
				Format:            "q4nx",
				Family:            cfg.ModelType,
				QuantizationLevel: defaultQuantization,
			},
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Missing returns the required files absent from dir, in RequiredFiles order.
func Missing(dir string) []string { return fsutil.MissingFiles(dir, RequiredFiles) }
