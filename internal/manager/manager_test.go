package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"npud/internal/modeltest"
	"npud/internal/registry"
	"npud/internal/session"
	"npud/pkg/types"
)

func TestNewWithConfigDefaults(t *testing.T) {
	m := NewWithConfig(ManagerConfig{})
	if m.gate == nil || m.sess == nil || m.catalog == nil || m.publisher == nil {
		t.Fatalf("defaults not applied: %+v", m)
	}
	if m.Version() != defaultVersion {
		t.Fatalf("version %q", m.Version())
	}
	if m.Ready() {
		t.Fatalf("fresh manager should not be ready")
	}
	if len(m.ListModels()) != 0 {
		t.Fatalf("expected empty catalog")
	}
}

func TestEnsureModelWithoutRuntimeIsDependencyError(t *testing.T) {
	dir := t.TempDir()
	modeltest.WriteModel(t, dir, "m", "llama")
	cat := registry.NewCatalog(dir, map[string]map[string]registry.Entry{"m": {"1b": {Name: "m"}}})
	m := NewWithConfig(ManagerConfig{Catalog: cat})
	_, _, err := m.EnsureModel(context.Background(), "m")
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if m.Snapshot().State != StateError || m.Status().LastError == "" {
		t.Fatalf("error state not recorded: %+v", m.Snapshot())
	}
}

func TestGenerateStreamsAndFinishes(t *testing.T) {
	m, pub := newTestManager(t, "hi there", 1024)
	before := testutil.ToFloat64(generatedTokensTotal.WithLabelValues(testTag))
	w := &recWriter{}
	if err := m.Generate(context.Background(), types.GenerateRequest{Prompt: "hello"}, w); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if w.text() != "hi there" {
		t.Fatalf("streamed %q", w.text())
	}
	if w.res == nil {
		t.Fatalf("Done not called")
	}
	r := w.res
	if r.Text != "hi there" || r.Reason != session.StopEOT || r.Model != testTag {
		t.Fatalf("result %+v", r)
	}
	if want := len(modeltest.TextIDs("hi there")) + 1; r.Meta.GeneratedTokens != want {
		t.Fatalf("generated %d want %d", r.Meta.GeneratedTokens, want)
	}
	if r.Meta.PromptTokens == 0 || len(r.Context) == 0 {
		t.Fatalf("missing accounting: %+v", r)
	}
	if got := testutil.ToFloat64(generatedTokensTotal.WithLabelValues(testTag)) - before; int(got) != r.Meta.GeneratedTokens {
		t.Fatalf("metric delta %v want %d", got, r.Meta.GeneratedTokens)
	}
	names := pub.Names()
	for _, n := range []string{"ensure_start", "ensure_ready", "generate_start", "generate_done"} {
		if count(names, n) != 1 {
			t.Fatalf("event %s: %v", n, names)
		}
	}
	if !m.Ready() || !m.Gate().IsAvailable() {
		t.Fatalf("manager should be ready with the gate free")
	}
}

func TestGenerateKeepsContextAndSkipsReload(t *testing.T) {
	m, pub := newTestManager(t, "ok", 1024)
	ctx := context.Background()
	w1 := &recWriter{}
	if err := m.Generate(ctx, types.GenerateRequest{Prompt: "a"}, w1); err != nil {
		t.Fatalf("first: %v", err)
	}
	w2 := &recWriter{}
	if err := m.Generate(ctx, types.GenerateRequest{Model: testTag, Prompt: "b"}, w2); err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(w2.res.Context) <= len(w1.res.Context) {
		t.Fatalf("context did not grow: %d then %d", len(w1.res.Context), len(w2.res.Context))
	}
	if w2.res.Meta.LoadDuration != 0 {
		t.Fatalf("second request reloaded: %v", w2.res.Meta.LoadDuration)
	}
	if n := count(pub.Names(), "ensure_ready"); n != 1 {
		t.Fatalf("loads %d", n)
	}
}

func TestChatClearsContextAfterTurn(t *testing.T) {
	m, _ := newTestManager(t, "fine", 1024)
	ctx := context.Background()
	if _, _, err := m.EnsureModel(ctx, ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	base := m.Session().TotalTokens()
	w := &recWriter{}
	req := types.ChatRequest{Messages: []types.ChatMessage{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "how are you"},
	}}
	if err := m.Chat(ctx, req, w); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if w.res.Text != "fine" || w.res.Context != nil {
		t.Fatalf("result %+v", w.res)
	}
	if got := m.Session().TotalTokens(); got != base {
		t.Fatalf("context not cleared: %d, want %d", got, base)
	}
	if strings.Contains(m.Session().HistoryText(), "ignored") {
		t.Fatalf("client system message reached the context")
	}
}

func TestChatValidation(t *testing.T) {
	m, _ := newTestManager(t, "x", 1024)
	for _, msgs := range [][]types.ChatMessage{nil, {{Role: "system", Content: "only"}}} {
		err := m.Chat(context.Background(), types.ChatRequest{Messages: msgs}, &recWriter{})
		if !IsBadRequest(err) {
			t.Fatalf("expected bad request for %v, got %v", msgs, err)
		}
	}
	if err := m.Generate(context.Background(), types.GenerateRequest{Prompt: "  "}, &recWriter{}); !IsBadRequest(err) {
		t.Fatalf("expected bad request for blank prompt, got %v", err)
	}
}

func TestGenerateBusyIsRejected(t *testing.T) {
	m, pub := newTestManager(t, "x", 1024)
	if !m.Gate().TryAcquire() {
		t.Fatalf("gate should be free")
	}
	err := m.Generate(context.Background(), types.GenerateRequest{Prompt: "hi"}, &recWriter{})
	if !IsTooBusy(err) {
		t.Fatalf("expected too busy, got %v", err)
	}
	if count(pub.Names(), "admission_rejected") != 1 {
		t.Fatalf("events %v", pub.Names())
	}
	m.Gate().Release()
	if err := m.Generate(context.Background(), types.GenerateRequest{Prompt: "hi"}, &recWriter{}); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestGenerateUnknownAndMissingModels(t *testing.T) {
	m, _ := newTestManager(t, "x", 1024)
	err := m.Generate(context.Background(), types.GenerateRequest{Model: "mistral:7b", Prompt: "hi"}, &recWriter{})
	if !IsModelNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	err = m.Generate(context.Background(), types.GenerateRequest{Model: "ghost", Prompt: "hi"}, &recWriter{})
	if !IsModelNotFound(err) || !strings.Contains(err.Error(), "config.json") {
		t.Fatalf("expected not installed, got %v", err)
	}
	if !m.Gate().IsAvailable() {
		t.Fatalf("gate leaked after failure")
	}
}

func TestGenerateWriterErrorReleasesGate(t *testing.T) {
	m, pub := newTestManager(t, "abc", 1024)
	boom := errors.New("client gone")
	err := m.Generate(context.Background(), types.GenerateRequest{Prompt: "hi"}, &recWriter{chunkErr: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}
	if !m.Gate().IsAvailable() {
		t.Fatalf("gate leaked")
	}
	if count(pub.Names(), "generate_error") != 1 {
		t.Fatalf("events %v", pub.Names())
	}
}

func TestGenerateCancelledMidStream(t *testing.T) {
	m, _ := newTestManager(t, "abcdefgh", 1024)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &recWriter{onChunk: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	if err := m.Generate(ctx, types.GenerateRequest{Prompt: "go"}, w); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if w.res == nil || w.res.Reason != session.StopCancelled {
		t.Fatalf("result %+v", w.res)
	}
	if w.text() != "ab" {
		t.Fatalf("streamed %q", w.text())
	}
}

func TestGenerateMaxTokens(t *testing.T) {
	m, _ := newTestManager(t, "abcdefgh", 1024)
	w := &recWriter{}
	if err := m.Generate(context.Background(), types.GenerateRequest{Prompt: "go", MaxTokens: 3}, w); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if w.res.Reason != session.StopMaxLength || w.res.Text != "abc" {
		t.Fatalf("result %+v", w.res)
	}
}

func TestPromptLargerThanContextIsBadRequest(t *testing.T) {
	m, pub := newTestManager(t, "x", 256)
	err := m.Generate(context.Background(), types.GenerateRequest{Prompt: strings.Repeat("z", 400)}, &recWriter{})
	if !IsBadRequest(err) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if count(pub.Names(), "generate_error") != 1 || !m.Gate().IsAvailable() {
		t.Fatalf("events %v", pub.Names())
	}
}

func TestApplyOptions(t *testing.T) {
	m, _ := newTestManager(t, "x", 1024)
	temp, topP, topK, seed := 0.3, 0.5, 7, int64(99)
	bad := -1.0
	m.applyOptions(types.Options{Temperature: &temp, TopP: &topP, TopK: &topK, Seed: &seed, FrequencyPenalty: &bad}, nil)
	c := m.Session().SamplerConfig()
	if c.Temperature != float32(temp) || c.TopP != float32(topP) || c.TopK != topK || c.Seed != seed {
		t.Fatalf("options not applied: %+v", c)
	}
	if c.FreqPenalty < 0 {
		t.Fatalf("invalid frequency penalty accepted: %+v", c)
	}
}

func TestStatusAndRunning(t *testing.T) {
	m, _ := newTestManager(t, "x", 1024)
	st := m.Status()
	if st.State != string(session.StateUnloaded) || !st.Available || st.Model != "" || st.Accelerator != nil {
		t.Fatalf("status before load: %+v", st)
	}
	if len(m.Running()) != 0 {
		t.Fatalf("nothing should be running")
	}
	if _, _, err := m.EnsureModel(context.Background(), testTag); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	st = m.Status()
	if st.State != string(session.StateReady) || st.Model != testTag || st.MaxContext != 1024 || st.ContextTokens == 0 || st.LoadsTotal != 1 {
		t.Fatalf("status after load: %+v", st)
	}
	if st.Accelerator == nil || st.Accelerator.Apps == 0 || st.Accelerator.Binaries == 0 {
		t.Fatalf("accelerator status: %+v", st.Accelerator)
	}
	run := m.Running()
	if len(run) != 1 || run[0].Name != testTag || run[0].ContextLength != 1024 {
		t.Fatalf("running: %+v", run)
	}
}

func TestEnsureModelConcurrentLoadsOnce(t *testing.T) {
	m, pub := newTestManager(t, "x", 1024)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := m.EnsureModel(context.Background(), testTag)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	if n := count(pub.Names(), "ensure_ready"); n != 1 {
		t.Fatalf("model loaded %d times", n)
	}
}

func TestUnload(t *testing.T) {
	m, _ := newTestManager(t, "x", 1024)
	if err := m.Unload(); !IsModelNotFound(err) {
		t.Fatalf("unload with nothing loaded: %v", err)
	}
	if _, _, err := m.EnsureModel(context.Background(), testTag); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := m.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if m.Ready() || m.Session().State() != session.StateUnloaded {
		t.Fatalf("still loaded")
	}
}
