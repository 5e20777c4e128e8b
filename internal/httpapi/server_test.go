package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"llmserve/internal/scheduler"
	"llmserve/pkg/types"
)

func postInfer(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/infer", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeLines(t *testing.T, body string) []types.TokenLine {
	t.Helper()
	var out []types.TokenLine
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var l types.TokenLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, l)
	}
	return out
}

func TestInferStreamsNDJSON(t *testing.T) {
	svc := &fakeService{tokens: []string{" world", " and", " more"}, ready: true}
	rr := postInfer(t, NewMux(svc), `{"prompt":"Hello","num_predict":3}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type %q", ct)
	}
	lines := decodeLines(t, rr.Body.String())
	if len(lines) != 4 {
		t.Fatalf("expected 3 tokens and a done line, got %+v", lines)
	}
	if lines[0].Token != " world" || lines[2].Token != " more" {
		t.Fatalf("tokens out of order: %+v", lines)
	}
	if last := lines[3]; !last.Done || last.Tokens != 3 || last.Error != "" {
		t.Fatalf("done line = %+v", last)
	}
	if req := svc.last(); req == nil || *req.NumPredict != 3 || req.ID == "" {
		t.Fatalf("request not forwarded: %+v", req)
	}
}

func TestInferBuffered(t *testing.T) {
	svc := &fakeService{tokens: []string{"a", "b", "c"}}
	rr := postInfer(t, NewMux(svc), `{"prompt":"x","stream":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var resp types.InferResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Content != "abc" || resp.Tokens != 3 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestInferGenerationError(t *testing.T) {
	genErr := &scheduler.GenerationError{RequestID: "r", Err: errors.New("context full")}
	svc := &fakeService{tokens: []string{"a"}, finishErr: genErr}

	lines := decodeLines(t, postInfer(t, NewMux(svc), `{"prompt":"x"}`).Body.String())
	last := lines[len(lines)-1]
	if len(lines) != 2 || !last.Done || last.Tokens != 1 || !strings.Contains(last.Error, "context full") {
		t.Fatalf("lines = %+v", lines)
	}

	rr := postInfer(t, NewMux(svc), `{"prompt":"x","stream":false}`)
	if rr.Code != http.StatusInternalServerError || !strings.Contains(rr.Body.String(), "context full") {
		t.Fatalf("buffered error: %d %s", rr.Code, rr.Body.String())
	}
}

func TestInferForwardsOverrides(t *testing.T) {
	svc := &fakeService{}
	body := `{"prompt":"p","n_batch":4,"top_k":5,"top_p":0.5,"repeat_penalty":1.1,"temp":0,"cache":9}`
	if rr := postInfer(t, NewMux(svc), body); rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	req := svc.last()
	if req.NumPredict != nil || *req.BatchSize != 4 || *req.TopK != 5 || *req.TopP != 0.5 || *req.RepeatPenalty != 1.1 {
		t.Fatalf("overrides = %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0 || req.Cache != 9 {
		t.Fatalf("temp/cache = %v/%d", req.Temperature, req.Cache)
	}
}

func TestInferRejectsBadInput(t *testing.T) {
	h := NewMux(&fakeService{})
	cases := []struct {
		name, ct, body string
		want           int
	}{
		{"content type", "text/plain", `{"prompt":"x"}`, http.StatusUnsupportedMediaType},
		{"json", "application/json", `{"prompt":`, http.StatusBadRequest},
		{"empty prompt", "application/json", `{"prompt":"  "}`, http.StatusBadRequest},
		{"top_p", "application/json", `{"prompt":"x","top_p":2}`, http.StatusBadRequest},
		{"num_predict", "application/json", `{"prompt":"x","num_predict":-1}`, http.StatusBadRequest},
		{"temp", "application/json", `{"prompt":"x","temp":-0.1}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/infer", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.ct)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status %d, want %d: %s", rr.Code, tc.want, rr.Body.String())
			}
			var e types.ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil || e.Code != tc.want {
				t.Fatalf("error body %q", rr.Body.String())
			}
		})
	}
}

func TestInferBodyLimit(t *testing.T) {
	SetMaxBodyBytes(16)
	t.Cleanup(func() { SetMaxBodyBytes(0) })
	rr := postInfer(t, NewMux(&fakeService{}), `{"prompt":"this body is longer than sixteen bytes"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestInferSchedulerClosed(t *testing.T) {
	rr := postInfer(t, NewMux(&fakeService{submitErr: scheduler.ErrSchedulerClosed}), `{"prompt":"x"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestClientDisconnectClosesSink(t *testing.T) {
	svc := &fakeService{tokens: []string{"a"}, hold: make(chan struct{})}
	defer close(svc.hold)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/infer", strings.NewReader(`{"prompt":"x"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	done := make(chan struct{})
	go func() {
		NewMux(svc).ServeHTTP(httptest.NewRecorder(), req)
		close(done)
	}()
	deadline := time.Now().Add(5 * time.Second)
	for svc.last() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("request never submitted")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("handler did not return after disconnect")
	}
	sink := svc.last().Sink
	if !sink.Discarded() {
		t.Fatalf("sink not closed after disconnect")
	}
	if err := sink.Send(scheduler.Result{Token: "late"}); !errors.Is(err, scheduler.ErrSinkClosed) {
		t.Fatalf("send after disconnect: %v", err)
	}
}

func TestInferTimeout(t *testing.T) {
	SetInferTimeoutSeconds(1)
	t.Cleanup(func() { SetInferTimeoutSeconds(0) })
	svc := &fakeService{hold: make(chan struct{})}
	defer close(svc.hold)

	lines := decodeLines(t, postInfer(t, NewMux(svc), `{"prompt":"x"}`).Body.String())
	if len(lines) != 1 || !lines[0].Done || lines[0].Error != "inference timed out" {
		t.Fatalf("lines = %+v", lines)
	}
	if !svc.last().Sink.Discarded() {
		t.Fatalf("sink not closed after timeout")
	}
}

func TestShutdownEndsStreams(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	SetBaseContext(base)
	t.Cleanup(func() { SetBaseContext(nil) })
	svc := &fakeService{hold: make(chan struct{})}
	defer close(svc.hold)
	cancel()
	rr := postInfer(t, NewMux(svc), `{"prompt":"x"}`)
	if !svc.last().Sink.Discarded() {
		t.Fatalf("sink not closed on shutdown: %s", rr.Body.String())
	}
}

func TestHealthReadyStatus(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)
	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}
	if rr := get("/healthz"); rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz %d %q", rr.Code, rr.Body.String())
	}
	if rr := get("/readyz"); rr.Code != http.StatusServiceUnavailable || rr.Body.String() != "loading" {
		t.Fatalf("readyz before ready %d %q", rr.Code, rr.Body.String())
	}
	svc.ready = true
	if rr := get("/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("readyz %d", rr.Code)
	}
	rr := get("/status")
	var st types.StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil || st.State != "ready" {
		t.Fatalf("status %q err=%v", rr.Body.String(), err)
	}
	if rr := get("/swagger/doc.json"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "llmserve API") {
		t.Fatalf("swagger doc %d", rr.Code)
	}
	if rr := get("/metrics"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "llmserve_http_requests_total") {
		t.Fatalf("metrics %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	SetCORSOptions(true, []string{"https://app.example"})
	t.Cleanup(func() { SetCORSOptions(false, nil) })
	req := httptest.NewRequest(http.MethodOptions, "/infer", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	NewMux(&fakeService{}).ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow-origin %q", got)
	}
}
