package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedModel is returned for a config.json model_type with no engine.
var ErrUnsupportedModel = errors.New("engine: unsupported model type")

// Family is the closed set of model architectures the runtime can drive.
type Family int

const (
	FamilyLlama Family = iota + 1
	FamilyQwen
	FamilyGemma
)

func (f Family) String() string {
	switch f {
	case FamilyLlama:
		return "llama"
	case FamilyQwen:
		return "qwen"
	case FamilyGemma:
		return "gemma"
	default:
		return "unknown"
	}
}

// ParseFamily maps a config.json model_type to a Family.
func ParseFamily(modelType string) (Family, error) {
	switch t := strings.ToLower(strings.TrimSpace(modelType)); {
	case t == "llama":
		return FamilyLlama, nil
	case t == "qwen2" || t == "qwen3" || t == "qwen":
		return FamilyQwen, nil
	case strings.HasPrefix(t, "gemma"):
		return FamilyGemma, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
}
