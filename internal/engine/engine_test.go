package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"npud/internal/npu"
)

func testConfig() Config {
	c := Config{ModelType: "llama", VocabSize: 16, HiddenSize: 8, IntermediateSize: 16, NumAttentionHeads: 2, NumKeyValueHeads: 1, NumHiddenLayers: 2}
	c.ApplyDefaults()
	return c
}

func newSimEngine(t *testing.T, fam Family, next func([]int) int, maxLen int) (Engine, *SimModel, *npu.SimDriver, *npu.Manager) {
	t.Helper()
	model := NewSimModel(16, next)
	drv := npu.NewSimDriver()
	drv.Kernel = model.Kernel
	mgr := npu.New(drv)
	e, err := New(fam, testConfig(), mgr, maxLen)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, model, drv, mgr
}

func argmax(x []float32) int {
	best := 0
	for i := range x {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}

func TestParseFamily(t *testing.T) {
	cases := map[string]Family{"llama": FamilyLlama, "qwen3": FamilyQwen, "Qwen2": FamilyQwen, "gemma3_text": FamilyGemma}
	for in, want := range cases {
		got, err := ParseFamily(in)
		if err != nil || got != want {
			t.Fatalf("ParseFamily(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFamily("mamba"); !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("expected ErrUnsupportedModel, got %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	body := `{"model_type":"llama","vocab_size":32,"hidden_size":8,"num_hidden_layers":1,"num_attention_heads":2,"layer_xclbin_name":"custom.xclbin"}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.LayerBinary != "custom.xclbin" || c.LMHeadBinary != "lm_head.xclbin" || c.MHABinary != "attn.xclbin" {
		t.Fatalf("unexpected binaries %+v", c)
	}
	if c.HeadDim != 4 {
		t.Fatalf("head dim should derive from hidden/heads, got %d", c.HeadDim)
	}
	if got := c.BinaryPath(c.LayerBinary); got != filepath.Join(dir, "custom.xclbin") {
		t.Fatalf("binary path %q", got)
	}
}

func TestLoadConfigRejectsMissingVocab(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"model_type":"llama","hidden_size":8,"num_hidden_layers":1}`), 0o644)
	if _, err := LoadConfig(dir); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNewRegistersApplications(t *testing.T) {
	_, _, drv, mgr := newSimEngine(t, FamilyLlama, nil, 32)
	if n := len(mgr.Apps()); n != 7 {
		t.Fatalf("expected 7 apps, got %d", n)
	}
	if n := len(mgr.Binaries()); n != 5 {
		t.Fatalf("expected 5 binaries, got %d", n)
	}
	if drv.Registrations("layer.xclbin") != 1 {
		t.Fatalf("layer binary should be loaded once")
	}
	if _, ok := mgr.Lookup("llama.prefill"); !ok {
		t.Fatalf("prefill app missing")
	}
}

func TestPrefillAndForward(t *testing.T) {
	e, model, _, _ := newSimEngine(t, FamilyLlama, ScriptedReply([]int{5, 6}, 2), 32)
	ctx := context.Background()
	logits, err := e.Prefill(ctx, []int{1, 9, 9})
	if err != nil {
		t.Fatalf("prefill: %v", err)
	}
	if len(logits) != e.VocabSize() || argmax(logits) != 5 {
		t.Fatalf("unexpected prefill logits argmax %d", argmax(logits))
	}
	if e.ContextLength() != 3 {
		t.Fatalf("context length %d", e.ContextLength())
	}
	logits, err = e.Forward(ctx, 5)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if argmax(logits) != 6 {
		t.Fatalf("forward argmax %d, want 6", argmax(logits))
	}
	logits, _ = e.Forward(ctx, 6)
	if argmax(logits) != 2 {
		t.Fatalf("expected eos after reply, got %d", argmax(logits))
	}
	if got := model.Context(); len(got) != 5 {
		t.Fatalf("sim context %v", got)
	}
	if model.HeadCalls() != 3 {
		t.Fatalf("expected one lm_head per call, got %d", model.HeadCalls())
	}
}

func TestPrefillIsOneLaunchPerOperator(t *testing.T) {
	e, _, drv, _ := newSimEngine(t, FamilyLlama, nil, 64)
	before := drv.Launches()
	if _, err := e.Prefill(context.Background(), make([]int, 20)); err != nil {
		t.Fatalf("prefill: %v", err)
	}
	// mm, attention, rtp, prefill, lm_head
	if got := drv.Launches() - before; got != 5 {
		t.Fatalf("prefill of 20 tokens issued %d launches, want 5", got)
	}
}

func TestClearContextRewindsPosition(t *testing.T) {
	e, model, _, _ := newSimEngine(t, FamilyLlama, nil, 32)
	ctx := context.Background()
	_, _ = e.Prefill(ctx, []int{1, 2, 3})
	e.ClearContext()
	if e.ContextLength() != 0 {
		t.Fatalf("expected empty context")
	}
	_, _ = e.Prefill(ctx, []int{4})
	if got := model.Context(); len(got) != 1 || got[0] != 4 {
		t.Fatalf("sim should see rewound context, got %v", got)
	}
}

func TestFailedHeadKeepsPosition(t *testing.T) {
	e, model, drv, _ := newSimEngine(t, FamilyLlama, ScriptedReply([]int{5}, 2), 32)
	failHead := true
	drv.Kernel = func(ctx context.Context, seq *npu.Sequence, args []*npu.Buffer) error {
		if failHead && strings.HasSuffix(seq.App, "."+opLMHead) {
			failHead = false
			return errors.New("lm_head fault")
		}
		return model.Kernel(ctx, seq, args)
	}
	ctx := context.Background()
	if _, err := e.Prefill(ctx, []int{1, 9, 9}); err == nil {
		t.Fatalf("expected lm_head error")
	}
	if e.ContextLength() != 0 {
		t.Fatalf("failed prefill advanced the context to %d", e.ContextLength())
	}
	logits, err := e.Prefill(ctx, []int{1, 9, 9})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if e.ContextLength() != 3 || len(model.Context()) != 3 {
		t.Fatalf("retry saw engine=%d sim=%v", e.ContextLength(), model.Context())
	}
	if argmax(logits) != 5 {
		t.Fatalf("argmax %d", argmax(logits))
	}
}

func TestContextFull(t *testing.T) {
	e, _, _, _ := newSimEngine(t, FamilyLlama, nil, 4)
	ctx := context.Background()
	if _, err := e.Prefill(ctx, []int{1, 2, 3}); err != nil {
		t.Fatalf("prefill: %v", err)
	}
	if _, err := e.Forward(ctx, 1); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if _, err := e.Forward(ctx, 1); !errors.Is(err, ErrContextFull) {
		t.Fatalf("expected ErrContextFull, got %v", err)
	}
	if err := e.UpdateMaxLength(8); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := e.Forward(ctx, 1); err != nil {
		t.Fatalf("forward after resize: %v", err)
	}
}

func TestUpdateMaxLengthRebuildsSequences(t *testing.T) {
	e, _, _, mgr := newSimEngine(t, FamilyLlama, nil, 32)
	h, _ := mgr.Lookup("llama.rtp")
	first := h.Sequence.Words[0]
	if err := e.UpdateMaxLength(64); err != nil {
		t.Fatal(err)
	}
	if h.Sequence.Words[0] == first || h.Sequence.Words[0]&0xFFFFFF != 64 {
		t.Fatalf("rtp sequence not rebuilt: %08x", h.Sequence.Words[0])
	}
}

func TestLoadWeightsStreamsChunks(t *testing.T) {
	e, model, _, _ := newSimEngine(t, FamilyLlama, nil, 32)
	size := int64(WeightChunk + 123)
	if err := e.LoadWeights(context.Background(), bytes.NewReader(make([]byte, size)), size); err != nil {
		t.Fatalf("load: %v", err)
	}
	if model.Dequantized() != size {
		t.Fatalf("dequantized %d bytes, want %d", model.Dequantized(), size)
	}
	if err := e.LoadWeights(context.Background(), bytes.NewReader(make([]byte, 10)), 20); err == nil {
		t.Fatalf("expected short read error")
	}
}

func TestFamilySequencesDiffer(t *testing.T) {
	cfg := testConfig()
	cfg.SlidingWindow, cfg.SlidingWindowPattern = 16, 2
	llama, _ := llamaSequence{}.build(opDecode, cfg, 32)
	qwen, _ := qwenSequence{}.build(opDecode, cfg, 32)
	gemma, _ := gemmaSequence{}.build(opDecode, cfg, 32)
	if len(qwen) != len(llama)+cfg.NumHiddenLayers {
		t.Fatalf("qwen should add one word per layer: %d vs %d", len(qwen), len(llama))
	}
	if len(gemma) != len(llama)+1 {
		t.Fatalf("gemma should window one of two layers: %d vs %d", len(gemma), len(llama))
	}
	if last := llama[len(llama)-1]; last>>24 != cmdSync {
		t.Fatalf("sequence must end with sync, got %08x", last)
	}
	if _, err := (llamaSequence{}).build("bogus", cfg, 32); err == nil {
		t.Fatalf("expected unknown operator error")
	}
}

func TestClosedEngine(t *testing.T) {
	e, _, _, _ := newSimEngine(t, FamilyQwen, nil, 32)
	_ = e.Close()
	if _, err := e.Forward(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestScriptedReply(t *testing.T) {
	next := ScriptedReply([]int{7, 8}, 1)
	if got := next([]int{3, 4}); got != 7 {
		t.Fatalf("got %d", got)
	}
	if got := next([]int{3, 4, 7}); got != 8 {
		t.Fatalf("got %d", got)
	}
	if got := next([]int{3, 4, 7, 8}); got != 1 {
		t.Fatalf("got %d", got)
	}
}
