package e2e

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"llmserve/internal/httpapi"
	"llmserve/internal/llm"
	"llmserve/internal/llm/toylm"
	"llmserve/internal/scheduler"
	"llmserve/internal/snapshot"
	"llmserve/pkg/types"
)

func writeToyModel(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "toy.json")
	spec := toylm.Spec{
		Name:   "toy",
		Vocab:  []string{"hello", "world", "once", "upon", "a", "time", "there", "was", "cat", "end"},
		Hidden: 8,
		Seed:   5,
	}
	if err := toylm.WriteFile(p, spec); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

func writeSnapshot(t *testing.T, modelPath, prompt string) string {
	t.Helper()
	m, err := toylm.Loader{}.Load(modelPath, llm.LoadParams{ContextSize: 2048}, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess, _ := m.StartSession(llm.MemoryFor(llm.PrecisionF16))
	if err := m.Feed(context.Background(), sess, prompt, 8); err != nil {
		t.Fatalf("feed: %v", err)
	}
	snap, err := sess.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	p := filepath.Join(t.TempDir(), "primed.snap")
	if err := snapshot.Save(p, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	return p
}

func newServer(t *testing.T, cfg scheduler.Config) (*httptest.Server, *scheduler.Scheduler) {
	t.Helper()
	sched := scheduler.New(cfg, toylm.Loader{})
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(sched))
	t.Cleanup(func() {
		srv.Close()
		_ = sched.Close()
	})
	return srv, sched
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// infer posts a streaming request and returns the token texts and the final line.
func infer(t *testing.T, url, body string) ([]string, types.TokenLine) {
	t.Helper()
	resp, raw := httpPostJSON(t, url+"/infer", []byte(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("infer status %d: %s", resp.StatusCode, raw)
	}
	var (
		toks []string
		last types.TokenLine
	)
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		var l types.TokenLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		if l.Done {
			last = l
			continue
		}
		toks = append(toks, l.Token)
	}
	if !last.Done {
		t.Fatalf("stream ended without a done line: %s", raw)
	}
	return toks, last
}
