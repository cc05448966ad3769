package npu

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateAppIdempotent(t *testing.T) {
	drv := NewSimDriver()
	m := New(drv)
	h1, err := m.CreateApp("llama.decode", "layer.xclbin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h2, err := m.CreateApp("llama.decode", "layer.xclbin")
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if h1.AppID != h2.AppID {
		t.Fatalf("expected same app id, got %d and %d", h1.AppID, h2.AppID)
	}
	if n := drv.Registrations("layer.xclbin"); n != 1 {
		t.Fatalf("expected one hardware load, got %d", n)
	}
	if len(m.Apps()) != 1 || len(m.Binaries()) != 1 {
		t.Fatalf("unexpected registry sizes: apps=%d bins=%d", len(m.Apps()), len(m.Binaries()))
	}
}

func TestCloseReleasesContexts(t *testing.T) {
	drv := NewSimDriver()
	m := New(drv)
	for i, bin := range []string{"layer.xclbin", "lm_head.xclbin", "layer.xclbin"} {
		if _, err := m.CreateApp(fmt.Sprintf("app%d", i), bin); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if drv.OpenContexts() != 2 {
		t.Fatalf("expected 2 open contexts, got %d", drv.OpenContexts())
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if drv.OpenContexts() != 0 || drv.Unregistrations() != 2 {
		t.Fatalf("after close: contexts=%d unregistrations=%d", drv.OpenContexts(), drv.Unregistrations())
	}
	if len(m.Apps()) != 0 || len(m.Binaries()) != 0 {
		t.Fatalf("registry not emptied")
	}
	if _, err := m.CreateApp("again", "layer.xclbin"); err != nil {
		t.Fatalf("manager should be reusable: %v", err)
	}
	if drv.Registrations("layer.xclbin") != 2 || drv.OpenContexts() != 1 {
		t.Fatalf("reload after close: registrations=%d contexts=%d", drv.Registrations("layer.xclbin"), drv.OpenContexts())
	}
}

func TestCreateAppSharesBinary(t *testing.T) {
	drv := NewSimDriver()
	m := New(drv)
	a, _ := m.CreateApp("a", "layer.xclbin")
	b, err := m.CreateApp("b", "layer.xclbin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.AppID == b.AppID {
		t.Fatalf("distinct apps must get distinct ids")
	}
	if drv.Registrations("layer.xclbin") != 1 {
		t.Fatalf("binary should load once")
	}
	bins := m.Binaries()
	if bins[0].AppRefs != 2 {
		t.Fatalf("expected 2 app refs, got %d", bins[0].AppRefs)
	}
	if !strings.HasPrefix(a.KernelName(), KernelPrefix) {
		t.Fatalf("kernel symbol %q lacks prefix", a.KernelName())
	}
}

func TestBinaryCapacity(t *testing.T) {
	m := New(NewSimDriver())
	for i := 0; i < MaxBinaries; i++ {
		if _, err := m.CreateApp(fmt.Sprintf("app%d", i), fmt.Sprintf("bin%d", i)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	_, err := m.CreateApp("one-more", "bin-extra")
	if !IsCapacity(err) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	var ce *CapacityError
	if !errors.As(err, &ce) || ce.Resource != ResourceBinaries || ce.Limit != MaxBinaries {
		t.Fatalf("unexpected capacity error %#v", ce)
	}
	// existing binaries keep working when full
	if _, err := m.CreateApp("late-app", "bin3"); err != nil {
		t.Fatalf("reuse existing binary: %v", err)
	}
}

func TestAppCapacity(t *testing.T) {
	m := New(NewSimDriver())
	for i := 0; i < MaxApps; i++ {
		if _, err := m.CreateApp(fmt.Sprintf("app%d", i), "layer.xclbin"); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	_, err := m.CreateApp("app-extra", "layer.xclbin")
	var ce *CapacityError
	if !errors.As(err, &ce) || ce.Resource != ResourceApps {
		t.Fatalf("expected apps capacity error, got %v", err)
	}
	if _, err := m.CreateApp("app10", "layer.xclbin"); err != nil {
		t.Fatalf("lookup of registered app must still succeed: %v", err)
	}
}

func TestLoadFailureConsumesNoSlot(t *testing.T) {
	for _, step := range []string{"register", "context", "kernel"} {
		t.Run(step, func(t *testing.T) {
			drv := NewSimDriver()
			drv.FailOn("bad.xclbin", step)
			m := New(drv)
			_, err := m.CreateApp("bad", "bad.xclbin")
			if !IsLoadError(err) {
				t.Fatalf("expected load error, got %v", err)
			}
			var le *LoadError
			if errors.As(err, &le) && le.Step != step {
				t.Fatalf("expected step %s, got %s", step, le.Step)
			}
			if len(m.Binaries()) != 0 || len(m.Apps()) != 0 {
				t.Fatalf("failed load must not register anything")
			}
			if step != "register" && drv.Unregistrations() != 1 {
				t.Fatalf("expected rollback of registration")
			}
			if drv.OpenContexts() != 0 {
				t.Fatalf("rolled back load left %d contexts open", drv.OpenContexts())
			}
			for i := 0; i < MaxBinaries; i++ {
				if _, err := m.CreateApp(fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)); err != nil {
					t.Fatalf("slot %d should be free: %v", i, err)
				}
			}
		})
	}
}

func TestMissingKernelSymbol(t *testing.T) {
	drv := NewSimDriver()
	drv.OmitKernel("dma.xclbin")
	m := New(drv)
	_, err := m.CreateApp("dma", "dma.xclbin")
	if !IsLoadError(err) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestSequenceBuilderUsedOnce(t *testing.T) {
	calls := 0
	m := New(NewSimDriver(), WithSequenceFunc(func(app string) (*Sequence, error) {
		calls++
		return &Sequence{App: app, Words: []uint32{1, 2, 3}}, nil
	}))
	h, _ := m.CreateApp("x", "b")
	_, _ = m.CreateApp("x", "b")
	if calls != 1 {
		t.Fatalf("expected builder called once, got %d", calls)
	}
	if h.Sequence.Len() != 3 {
		t.Fatalf("unexpected sequence length %d", h.Sequence.Len())
	}
	boom := errors.New("boom")
	if _, err := m.CreateAppWith("y", "b", func(string) (*Sequence, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected builder error, got %v", err)
	}
	if _, ok := m.Lookup("y"); ok {
		t.Fatalf("failed app must not be registered")
	}
}

func TestHandleRunAndRunList(t *testing.T) {
	drv := NewSimDriver()
	var seen []string
	drv.Kernel = func(ctx context.Context, seq *Sequence, args []*Buffer) error {
		seen = append(seen, seq.App)
		return nil
	}
	m := New(drv)
	pre, _ := m.CreateApp("prefill", "layer.xclbin")
	head, _ := m.CreateApp("lm_head", "layer.xclbin")
	other, _ := m.CreateApp("dequant", "dequant.xclbin")

	if err := pre.Run(context.Background(), NewBuffer(0, 16)); err != nil {
		t.Fatalf("run: %v", err)
	}
	rl, err := m.CreateRunList(pre)
	if err != nil {
		t.Fatalf("runlist: %v", err)
	}
	if err := rl.Add(pre); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := rl.Add(head); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := rl.Add(other); err == nil {
		t.Fatalf("expected error adding app from another context")
	}
	if err := rl.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := []string{"prefill", "prefill", "lm_head"}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Fatalf("launch order %v, want %v", seen, want)
	}
	if rl.Len() != 0 {
		t.Fatalf("runlist should be empty after execute")
	}
	if drv.Launches() != 3 {
		t.Fatalf("expected 3 launches, got %d", drv.Launches())
	}
}

func TestRunListStopsOnCancel(t *testing.T) {
	drv := NewSimDriver()
	m := New(drv)
	h, _ := m.CreateApp("a", "b")
	rl, _ := m.CreateRunList(h)
	_ = rl.Add(h)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if drv.Launches() != 0 {
		t.Fatalf("no launch expected after cancel")
	}
}

func TestZeroHandle(t *testing.T) {
	var h Handle
	if h.Valid() {
		t.Fatalf("zero handle must be invalid")
	}
	if err := h.Run(context.Background()); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
}

func TestWriteTrace(t *testing.T) {
	p := filepath.Join(t.TempDir(), "trace.txt")
	data := []byte{0x01, 0x00, 0x00, 0x00, 0xef, 0xbe, 0xad, 0xde, 0xff}
	if err := WriteTrace(p, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got, want := string(b), "00000001\ndeadbeef\n"; got != want {
		t.Fatalf("trace = %q, want %q", got, want)
	}
}

func TestCapacityErrorMessage(t *testing.T) {
	err := error(&CapacityError{Resource: ResourceApps, Limit: 64, Name: "x"})
	if !strings.Contains(err.Error(), "max number of apps reached (64)") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if IsCapacity(errors.New("other")) {
		t.Fatalf("plain error is not a capacity error")
	}
}
