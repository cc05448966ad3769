package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"npud/internal/npu"
)

// ErrContextFull is returned when a call would grow the context past the max length.
var ErrContextFull = errors.New("engine: context full")

// ErrClosed is returned by calls on a closed engine.
var ErrClosed = errors.New("engine: closed")

// Engine runs a causal language model on the accelerator over a growing context.
type Engine interface {
	// LoadWeights streams size bytes of quantized weights through the dequant kernel.
	LoadWeights(ctx context.Context, r io.Reader, size int64) error
	// Prefill processes tokens in one batched pass and returns next-token logits.
	// On error the context length is unchanged and the tokens may be fed again.
	Prefill(ctx context.Context, tokens []int) ([]float32, error)
	// Forward processes a single token and returns next-token logits.
	Forward(ctx context.Context, token int) ([]float32, error)
	ClearContext()
	UpdateMaxLength(n int) error
	ContextLength() int
	VocabSize() int
	Family() Family
	Close() error
}

// Buffer groups shared by every kernel launch.
const (
	GroupIO      = 0
	GroupLogits  = 1
	GroupWeights = 2
)

// WeightChunk is the number of weight bytes handed to one dequant launch.
const WeightChunk = 1 << 20

type handles struct {
	rtp, prefill, decode, mm, attention, lmHead, dequant npu.Handle
}

type npuEngine struct {
	family Family
	cfg    Config
	mgr    *npu.Manager
	seq    sequenceBuilder
	maxLen int
	pos    int
	h      handles
	io     *npu.Buffer
	logits *npu.Buffer
	closed bool
}

// New builds the engine for family and registers its applications with mgr.
func New(family Family, cfg Config, mgr *npu.Manager, maxLen int) (Engine, error) {
	sb, err := builderFor(family)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if maxLen <= 0 {
		return nil, fmt.Errorf("engine: max length must be > 0")
	}
	e := &npuEngine{family: family, cfg: cfg, mgr: mgr, seq: sb, maxLen: maxLen}
	apps := []struct {
		op  string
		bin string
		dst *npu.Handle
	}{
		{opRTP, cfg.LayerBinary, &e.h.rtp},
		{opPrefill, cfg.LayerBinary, &e.h.prefill},
		{opDecode, cfg.LayerBinary, &e.h.decode},
		{opMM, cfg.MMBinary, &e.h.mm},
		{opAttention, cfg.MHABinary, &e.h.attention},
		{opLMHead, cfg.LMHeadBinary, &e.h.lmHead},
		{opDequant, cfg.DequantBinary, &e.h.dequant},
	}
	for _, a := range apps {
		op := a.op
		h, err := mgr.CreateAppWith(e.appName(op), cfg.BinaryPath(a.bin), func(app string) (*npu.Sequence, error) {
			words, err := sb.build(op, cfg, maxLen)
			if err != nil {
				return nil, err
			}
			return &npu.Sequence{App: app, Words: words}, nil
		})
		if err != nil {
			return nil, fmt.Errorf("engine: register %s: %w", op, err)
		}
		*a.dst = h
	}
	e.io = npu.NewBuffer(GroupIO, 8+4*maxLen)
	e.logits = npu.NewBuffer(GroupLogits, 4*cfg.VocabSize)
	return e, nil
}

// Open reads dir/config.json and builds the matching engine.
func Open(dir string, mgr *npu.Manager, maxLen int) (Engine, Config, error) {
	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, Config{}, err
	}
	fam, err := ParseFamily(cfg.ModelType)
	if err != nil {
		return nil, cfg, err
	}
	e, err := New(fam, cfg, mgr, maxLen)
	return e, cfg, err
}

func (e *npuEngine) appName(op string) string { return e.family.String() + "." + op }

func (e *npuEngine) Family() Family     { return e.family }
func (e *npuEngine) VocabSize() int     { return e.cfg.VocabSize }
func (e *npuEngine) ContextLength() int { return e.pos }

func (e *npuEngine) LoadWeights(ctx context.Context, r io.Reader, size int64) error {
	if e.closed {
		return ErrClosed
	}
	buf := npu.NewBuffer(GroupWeights, WeightChunk)
	var done int64
	for done < size {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := int64(WeightChunk)
		if size-done < n {
			n = size - done
		}
		chunk := buf.Data[:n]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fmt.Errorf("engine: read weights at %d: %w", done, err)
		}
		if err := e.h.dequant.Run(ctx, &npu.Buffer{Group: GroupWeights, Data: chunk}); err != nil {
			return fmt.Errorf("engine: dequant: %w", err)
		}
		done += n
	}
	return nil
}

func (e *npuEngine) Prefill(ctx context.Context, tokens []int) ([]float32, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("engine: prefill with no tokens")
	}
	if err := e.stage(tokens); err != nil {
		return nil, err
	}
	if err := e.h.mm.Run(ctx, e.io); err != nil {
		return nil, err
	}
	if err := e.h.attention.Run(ctx, e.io); err != nil {
		return nil, err
	}
	if err := e.runLayers(ctx, e.h.prefill); err != nil {
		return nil, err
	}
	logits, err := e.head(ctx)
	if err != nil {
		return nil, err
	}
	e.pos += len(tokens)
	return logits, nil
}

func (e *npuEngine) Forward(ctx context.Context, token int) ([]float32, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if err := e.stage([]int{token}); err != nil {
		return nil, err
	}
	if err := e.runLayers(ctx, e.h.decode); err != nil {
		return nil, err
	}
	logits, err := e.head(ctx)
	if err != nil {
		return nil, err
	}
	e.pos++
	return logits, nil
}

func (e *npuEngine) ClearContext() { e.pos = 0 }

// UpdateMaxLength rebuilds the length dependent sequences in place.
func (e *npuEngine) UpdateMaxLength(n int) error {
	if n <= 0 {
		return fmt.Errorf("engine: max length must be > 0")
	}
	for _, h := range []npu.Handle{e.h.rtp, e.h.prefill, e.h.decode, e.h.attention} {
		words, err := e.seq.build(appOp(h.Sequence.App), e.cfg, n)
		if err != nil {
			return err
		}
		h.Sequence.Words = words
	}
	e.maxLen = n
	if need := 8 + 4*n; len(e.io.Data) < need {
		e.io = npu.NewBuffer(GroupIO, need)
	}
	if e.pos > n {
		e.pos = n
	}
	return nil
}

func (e *npuEngine) Close() error {
	e.closed = true
	return nil
}

// stage writes [pos, n, tokens...] into the IO buffer.
func (e *npuEngine) stage(tokens []int) error {
	if e.pos+len(tokens) > e.maxLen {
		return fmt.Errorf("%w: %d + %d > %d", ErrContextFull, e.pos, len(tokens), e.maxLen)
	}
	d := e.io.Data
	binary.LittleEndian.PutUint32(d[0:], uint32(e.pos))
	binary.LittleEndian.PutUint32(d[4:], uint32(len(tokens)))
	for i, t := range tokens {
		binary.LittleEndian.PutUint32(d[8+4*i:], uint32(t))
	}
	return nil
}

func (e *npuEngine) runLayers(ctx context.Context, layers npu.Handle) error {
	rl, err := e.mgr.CreateRunList(e.h.rtp)
	if err != nil {
		return err
	}
	if err := rl.Add(e.h.rtp, e.io); err != nil {
		return err
	}
	if err := rl.Add(layers, e.io); err != nil {
		return err
	}
	return rl.Execute(ctx)
}

func (e *npuEngine) head(ctx context.Context) ([]float32, error) {
	if err := e.h.lmHead.Run(ctx, e.io, e.logits); err != nil {
		return nil, err
	}
	return DecodeLogits(e.logits.Data), nil
}

// DecodeLogits converts a little-endian float32 buffer to a slice.
func DecodeLogits(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// EncodeLogits writes logits into b as little-endian float32.
func EncodeLogits(b []byte, logits []float32) {
	for i, v := range logits {
		if 4*i+4 > len(b) {
			return
		}
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
}
