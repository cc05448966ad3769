package e2e

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"npud/internal/httpapi"
	"npud/internal/manager"
	"npud/internal/modeltest"
	"npud/internal/registry"
	"npud/internal/sampler"
	"npud/internal/session"
)

const catalogYAML = `model_path: models
models:
  llama3.2:
    1b:
      name: Llama-3.2-1B-NPU2
      default_context_length: 1024
      details:
        parameter_size: 1.2B
  qwen3:
    8b:
      name: Qwen3-8B-NPU2
      details:
        think: true
        think_toggleable: true
`

// newServer starts the HTTP API over a simulated accelerator. Every model
// answers with reply; only llama3.2:1b is installed.
func newServer(t *testing.T, reply string) (*httptest.Server, *manager.Manager) {
	t.Helper()
	return newServerWithFactory(t, session.SimFactory(reply, zerolog.Nop()))
}

// newServerWithFactory is newServer with a caller supplied runtime factory.
func newServerWithFactory(t *testing.T, factory session.Factory) (*httptest.Server, *manager.Manager) {
	t.Helper()
	root := t.TempDir()
	modeltest.WriteModel(t, filepath.Join(root, "models"), "Llama-3.2-1B-NPU2", "llama")
	catPath := filepath.Join(root, "catalog.yaml")
	if err := os.WriteFile(catPath, []byte(catalogYAML), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cat, err := registry.LoadCatalog(catPath)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	smp := sampler.DefaultConfig()
	smp.TopK = 1
	// A fixed clock keeps the rendered system prompt, and so its token count, stable.
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	sess := session.New(factory,
		session.WithSampler(smp),
		session.WithClock(func() time.Time { return fixed }))
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Catalog:      cat,
		Session:      sess,
		DefaultModel: "llama3.2:1b",
		Version:      "e2e",
	})
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(srv.Close)
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func httpPostJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func nonEmptyLines(b []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if l := sc.Text(); l != "" {
			out = append(out, l)
		}
	}
	return out
}
