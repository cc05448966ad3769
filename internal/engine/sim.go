package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"npud/internal/npu"
)

// SimModel is a deterministic stand-in for the accelerator's compute graph.
// Its Kernel method plugs into npu.SimDriver: prefill and decode launches
// update a token context the same way a KV cache is addressed by position, and
// lm_head launches write logits peaked at Next(context).
type SimModel struct {
	Vocab int
	// Next picks the token the model "predicts" after ctx.
	Next func(ctx []int) int
	// Peak is the logit assigned to the predicted token; all others are zero.
	Peak float32

	mu          sync.Mutex
	ctx         []int
	dequantized int64
	heads       int
}

// NewSimModel returns a SimModel over vocab with the given predictor.
func NewSimModel(vocab int, next func(ctx []int) int) *SimModel {
	return &SimModel{Vocab: vocab, Next: next, Peak: 30}
}

// Kernel implements npu.KernelFunc.
func (m *SimModel) Kernel(ctx context.Context, seq *npu.Sequence, args []*npu.Buffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch appOp(seq.App) {
	case opPrefill, opDecode:
		in := findGroup(args, GroupIO)
		if in == nil || len(in.Data) < 8 {
			return fmt.Errorf("sim: %s without io buffer", seq.App)
		}
		pos := int(binary.LittleEndian.Uint32(in.Data[0:]))
		n := int(binary.LittleEndian.Uint32(in.Data[4:]))
		if pos > len(m.ctx) {
			return fmt.Errorf("sim: position %d past context %d", pos, len(m.ctx))
		}
		m.ctx = m.ctx[:pos]
		for i := 0; i < n; i++ {
			m.ctx = append(m.ctx, int(binary.LittleEndian.Uint32(in.Data[8+4*i:])))
		}
	case opLMHead:
		out := findGroup(args, GroupLogits)
		if out == nil {
			return fmt.Errorf("sim: lm_head without logits buffer")
		}
		logits := make([]float32, m.Vocab)
		if m.Next != nil {
			if id := m.Next(m.ctx); id >= 0 && id < m.Vocab {
				logits[id] = m.Peak
			}
		}
		EncodeLogits(out.Data, logits)
		m.heads++
	case opDequant:
		if w := findGroup(args, GroupWeights); w != nil {
			m.dequantized += int64(len(w.Data))
		}
	}
	return nil
}

// Context returns a copy of the tokens the model has seen.
func (m *SimModel) Context() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.ctx...)
}

// Dequantized returns the number of weight bytes streamed through dequant.
func (m *SimModel) Dequantized() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dequantized
}

// HeadCalls returns how many lm_head launches ran.
func (m *SimModel) HeadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heads
}

func findGroup(args []*npu.Buffer, group int) *npu.Buffer {
	for _, b := range args {
		if b != nil && b.Group == group {
			return b
		}
	}
	return nil
}

// ScriptedReply returns a predictor that answers any prompt with reply
// followed by eos. It finds how much of reply already ends the context.
func ScriptedReply(reply []int, eos int) func(ctx []int) int {
	return func(ctx []int) int {
		for k := min(len(reply), len(ctx)); k > 0; k-- {
			if equalInts(ctx[len(ctx)-k:], reply[:k]) {
				if k == len(reply) {
					return eos
				}
				return reply[k]
			}
		}
		if len(reply) == 0 {
			return eos
		}
		return reply[0]
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
