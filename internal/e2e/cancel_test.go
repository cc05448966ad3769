package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"npud/internal/engine"
	"npud/internal/session"
	"npud/pkg/types"
)

// stallingEngine blocks the first decode step until its context ends.
type stallingEngine struct {
	engine.Engine
	once    *sync.Once
	stalled chan struct{}
}

func (e stallingEngine) Forward(ctx context.Context, token int) ([]float32, error) {
	stall := false
	e.once.Do(func() { stall = true })
	if stall {
		close(e.stalled)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return e.Engine.Forward(ctx, token)
}

func stallingFactory(reply string, stalled chan struct{}) session.Factory {
	sim := session.SimFactory(reply, zerolog.Nop())
	once := &sync.Once{}
	return func(ctx context.Context, m session.Model, maxLen int) (*session.Runtime, error) {
		rt, err := sim(ctx, m, maxLen)
		if err != nil {
			return nil, err
		}
		rt.Engine = stallingEngine{Engine: rt.Engine, once: once, stalled: stalled}
		return rt, nil
	}
}

func npuStatus(t *testing.T, url string) types.NPUStatusResponse {
	t.Helper()
	_, body := httpGet(t, url+"/api/npu/status")
	var st types.NPUStatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("npu status %s: %v", body, err)
	}
	return st
}

func cancelRequest(t *testing.T, url, id string) types.CancelResponse {
	t.Helper()
	resp, body := httpPostJSON(t, url+"/api/cancel", `{"request_id":"`+id+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status=%d body=%s", resp.StatusCode, body)
	}
	var out types.CancelResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("cancel json: %v", err)
	}
	return out
}

func TestE2E_CancelStopsStreamAndReleasesGate(t *testing.T) {
	stalled := make(chan struct{})
	srv, _ := newServerWithFactory(t, stallingFactory("ab", stalled))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/generate", bytes.NewBufferString(`{"prompt":"hi","stream":true}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "gen-cancel-1")

	type result struct {
		resp *http.Response
		body []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		done <- result{resp: resp, body: b, err: err}
	}()

	select {
	case <-stalled:
	case <-time.After(10 * time.Second):
		t.Fatalf("generation never reached decoding")
	}
	if st := npuStatus(t, srv.URL); st.NPUAvailable || st.ActiveRequests != 1 || st.Message != "NPU is currently in use" {
		t.Fatalf("npu status while generating: %+v", st)
	}

	if got := cancelRequest(t, srv.URL, "gen-cancel-1"); !got.Cancelled || got.Message != "Request cancelled successfully" {
		t.Fatalf("cancel: %+v", got)
	}

	var res result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("stream did not end after cancel")
	}
	if res.err != nil {
		t.Fatalf("generate: %v", res.err)
	}
	if res.resp.StatusCode != http.StatusOK || res.resp.Header.Get("X-Request-Id") != "gen-cancel-1" {
		t.Fatalf("status=%d request id=%q", res.resp.StatusCode, res.resp.Header.Get("X-Request-Id"))
	}
	lines := nonEmptyLines(res.body)
	if len(lines) == 0 {
		t.Fatalf("empty stream")
	}
	var last types.GenerateResponse
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("last line %s: %v", lines[len(lines)-1], err)
	}
	if !last.Done || last.DoneReason != session.StopCancelled.String() {
		t.Fatalf("last line=%+v", last)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		st := npuStatus(t, srv.URL)
		if st.NPUAvailable {
			if st.ActiveRequests != 0 || st.Message != "NPU is available" {
				t.Fatalf("npu status after cancel: %+v", st)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("gate still held after cancel: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := cancelRequest(t, srv.URL, "gen-cancel-1"); got.Cancelled || got.Message != "Request not found or already completed" {
		t.Fatalf("second cancel: %+v", got)
	}

	resp, body := httpPostJSON(t, srv.URL+"/api/generate", `{"prompt":"again"}`)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"done_reason"`) {
		t.Fatalf("generate after cancel %d %s", resp.StatusCode, body)
	}
}

func TestE2E_CancelRequiresRequestID(t *testing.T) {
	srv, _ := newServer(t, "hi")
	resp, body := httpPostJSON(t, srv.URL+"/api/cancel", `{}`)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), "request_id is required") {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
}
