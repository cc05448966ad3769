package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"info":  LevelInfo,
		"debug": LevelDebug,
		"loud":  LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q)=%d want %d", in, got, want)
		}
	}
}

func TestRequestLogLevelOverrides(t *testing.T) {
	SetRequestLogLevel("error")
	defer SetRequestLogLevel("")

	r := httptest.NewRequest(http.MethodPost, "/api/generate?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override: %d", got)
	}
	r = httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	r.Header.Set("X-Log-Level", "info")
	if got := requestLogLevel(r); got != LevelInfo {
		t.Fatalf("header override: %d", got)
	}
	r = httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("default: %d", got)
	}
}

func TestRequestLogWritesStartChunksAndEnd(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	defer SetLogger(zerolog.Nop())

	r := httptest.NewRequest(http.MethodPost, "/api/generate?log=debug", strings.NewReader(`{"prompt":"hi","stream":true}`))
	r.Header.Set("Content-Type", "application/json")
	NewMux(newStreamingService()).ServeHTTP(httptest.NewRecorder(), r)

	out := buf.String()
	for _, want := range []string{`"message":"generate start"`, `"message":"generate>"`, `"text":"hel"`, `"message":"generate end"`, `"status":200`, `"request_id"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s:\n%s", want, out)
		}
	}
}

func TestRequestLogErrorLevelSkipsSuccess(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer SetLogger(zerolog.Nop())

	r := httptest.NewRequest(http.MethodPost, "/api/generate?log=error", nil)
	rl := newRequestLog(r, "generate", "m")
	rl.end(http.StatusOK, nil)
	if buf.Len() != 0 {
		t.Fatalf("unexpected log: %s", buf.String())
	}
	rl.end(http.StatusInternalServerError, errors.New("boom"))
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), "boom") {
		t.Fatalf("error not logged: %s", buf.String())
	}
}
