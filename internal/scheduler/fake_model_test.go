package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"llmserve/internal/llm"
	"llmserve/internal/snapshot"
)

var errFake = errors.New("fake generation failure")

// fakeModel emits "<prompt>-<i>" tokens and records what it was asked.
type fakeModel struct {
	mu      sync.Mutex
	log     []string
	params  []llm.SamplingParams
	closed  bool
	hold    map[string]chan struct{}
	started chan string
	failOn  string
	panicOn string
}

func newFakeModel() *fakeModel {
	return &fakeModel{hold: map[string]chan struct{}{}, started: make(chan string, 16)}
}

// holdPrompt makes Generate for prompt wait until the returned func is called.
func (f *fakeModel) holdPrompt(prompt string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.hold[prompt] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeModel) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *fakeModel) Info() llm.Info {
	return llm.Info{Name: "fake.bin", Path: "/models/fake.bin", Backend: "fake", Fingerprint: "fake", ContextSize: 64}
}

type fakeSession struct{ restored bool }

func (s *fakeSession) Snapshot() (*snapshot.Snapshot, error) {
	return &snapshot.Snapshot{Model: "fake"}, nil
}
func (s *fakeSession) Close() error { return nil }

func (f *fakeModel) StartSession(llm.MemoryConfig) (llm.Session, error) {
	return &fakeSession{}, nil
}

func (f *fakeModel) RestoreSession(s *snapshot.Snapshot) (llm.Session, error) {
	if s.Model != "fake" {
		return nil, llm.ErrIncompatibleSnapshot
	}
	return &fakeSession{restored: true}, nil
}

func (f *fakeModel) Feed(context.Context, llm.Session, string, int) error { return nil }

func (f *fakeModel) Generate(ctx context.Context, _ llm.Session, p llm.SamplingParams, _ *rand.Rand, prompt string, onToken llm.TokenFunc) error {
	f.mu.Lock()
	f.log = append(f.log, prompt+":start")
	f.params = append(f.params, p)
	hold := f.hold[prompt]
	f.mu.Unlock()
	select {
	case f.started <- prompt:
	default:
	}
	defer func() {
		f.mu.Lock()
		f.log = append(f.log, prompt+":end")
		f.mu.Unlock()
	}()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if prompt == f.panicOn {
		panic("boom")
	}
	n := p.MaxTokens
	if n == 0 {
		n = 4
	}
	for i := 0; i < n; i++ {
		if err := onToken(fmt.Sprintf("%s-%d", prompt, i)); err != nil {
			return err
		}
		if prompt == f.failOn {
			return errFake
		}
	}
	return nil
}

func (f *fakeModel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func fakeLoader(m *fakeModel) llm.Loader {
	return llm.LoaderFunc(func(string, llm.LoadParams, llm.ProgressFunc) (llm.Model, error) {
		return m, nil
	})
}

// startFake returns a started scheduler over m, closed on cleanup.
func startFake(t *testing.T, m *fakeModel, cfg Config, opts ...Option) *Scheduler {
	t.Helper()
	s := New(cfg, fakeLoader(m), opts...)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func submit(t *testing.T, s *Scheduler, prompt string, n int) *Sink {
	t.Helper()
	req := &InferenceRequest{Prompt: prompt, Sink: NewSink()}
	if n > 0 {
		req.NumPredict = Ptr(n)
	}
	if err := s.Submit(req); err != nil {
		t.Fatalf("submit %q: %v", prompt, err)
	}
	return req.Sink
}

func collect(t *testing.T, sink *Sink) ([]string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	toks, err := sink.Collect(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("timed out collecting sink after %v", toks)
	}
	return toks, err
}

func waitStarted(t *testing.T, m *fakeModel, prompt string) {
	t.Helper()
	select {
	case got := <-m.started:
		if got != prompt {
			t.Fatalf("expected %q to start, got %q", prompt, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%q never started", prompt)
	}
}
