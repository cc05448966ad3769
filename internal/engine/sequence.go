package engine

import "fmt"

// Operator names. Application names are "<family>.<op>".
const (
	opRTP       = "rtp"
	opPrefill   = "prefill"
	opDecode    = "decode"
	opMM        = "mm"
	opAttention = "attention"
	opLMHead    = "lm_head"
	opDequant   = "dequant"
)

// Command stream opcodes, in the high byte of each header word.
const (
	cmdQueueWrite uint32 = 0x00
	cmdBlockWrite uint32 = 0x01
	cmdIssueToken uint32 = 0x03
	cmdSync       uint32 = 0x80
	cmdPatch      uint32 = 0x81
)

func word(op, arg uint32) uint32 { return op<<24 | arg&0xFFFFFF }

// sequenceBuilder produces the command stream of one operator for a family.
// Each family has one implementation, chosen once when the engine is built.
type sequenceBuilder interface {
	build(op string, cfg Config, maxLen int) ([]uint32, error)
}

func builderFor(f Family) (sequenceBuilder, error) {
	switch f {
	case FamilyLlama:
		return llamaSequence{}, nil
	case FamilyQwen:
		return qwenSequence{}, nil
	case FamilyGemma:
		return gemmaSequence{}, nil
	}
	return nil, fmt.Errorf("%w: family %d", ErrUnsupportedModel, int(f))
}

// common emits the operator layout shared by all families; extra adds per-layer
// words for family specific blocks.
func common(op string, cfg Config, maxLen int, extra func(layer int) []uint32) ([]uint32, error) {
	var w []uint32
	switch op {
	case opRTP:
		w = append(w, word(cmdQueueWrite, uint32(maxLen)), word(cmdBlockWrite, uint32(cfg.HeadDim)))
	case opPrefill, opDecode:
		for l := 0; l < cfg.NumHiddenLayers; l++ {
			w = append(w, word(cmdPatch, uint32(l)), word(cmdBlockWrite, uint32(cfg.HiddenSize)))
			if extra != nil {
				w = append(w, extra(l)...)
			}
			w = append(w, word(cmdIssueToken, uint32(maxLen)))
		}
	case opMM:
		w = append(w, word(cmdBlockWrite, uint32(cfg.HiddenSize)), word(cmdBlockWrite, uint32(cfg.IntermediateSize)))
	case opAttention:
		w = append(w, word(cmdBlockWrite, uint32(cfg.NumAttentionHeads)), word(cmdBlockWrite, uint32(cfg.NumKeyValueHeads)), word(cmdIssueToken, uint32(maxLen)))
	case opLMHead:
		w = append(w, word(cmdBlockWrite, uint32(cfg.HiddenSize)), word(cmdBlockWrite, uint32(cfg.VocabSize)))
	case opDequant:
		w = append(w, word(cmdQueueWrite, uint32(cfg.HiddenSize)))
	default:
		return nil, fmt.Errorf("engine: unknown operator %q", op)
	}
	return append(w, word(cmdSync, 0)), nil
}

type llamaSequence struct{}

func (llamaSequence) build(op string, cfg Config, maxLen int) ([]uint32, error) {
	return common(op, cfg, maxLen, nil)
}

// qwenSequence adds the q/k norm block to every layer.
type qwenSequence struct{}

func (qwenSequence) build(op string, cfg Config, maxLen int) ([]uint32, error) {
	return common(op, cfg, maxLen, func(int) []uint32 {
		return []uint32{word(cmdQueueWrite, uint32(cfg.HeadDim))}
	})
}

// gemmaSequence bounds attention on sliding-window layers.
type gemmaSequence struct{}

func (gemmaSequence) build(op string, cfg Config, maxLen int) ([]uint32, error) {
	return common(op, cfg, maxLen, func(layer int) []uint32 {
		if cfg.SlidingWindow > 0 && cfg.SlidingWindowPattern > 0 && (layer+1)%cfg.SlidingWindowPattern != 0 {
			return []uint32{word(cmdQueueWrite, uint32(min(cfg.SlidingWindow, maxLen)))}
		}
		return nil
	})
}

// appOp returns the operator part of an application name.
func appOp(app string) string {
	for i := len(app) - 1; i >= 0; i-- {
		if app[i] == '.' {
			return app[i+1:]
		}
	}
	return app
}
