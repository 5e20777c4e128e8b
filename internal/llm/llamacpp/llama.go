//go:build llama

package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"llmserve/internal/llm"
	"llmserve/internal/snapshot"
)

// Built indicates this binary was compiled with real llama support.
const Built = true

// Model wraps one go-llama.cpp context. go-llama.cpp re-evaluates the
// prompt on every Predict, so a session is the text already fed into it.
type Model struct {
	l       *llama.LLama
	info    llm.Info
	threads int
	f16     bool
}

var _ llm.Model = (*Model)(nil)

// Load implements llm.Loader.
func (Loader) Load(path string, params llm.LoadParams, progress llm.ProgressFunc) (llm.Model, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("llamacpp: model path is empty")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: %w", err)
	}
	ctxSize := params.ContextSize
	if ctxSize <= 0 {
		ctxSize = 2048
	}
	progress.Report(llm.HyperparametersLoaded{})
	mo := []llama.ModelOption{llama.SetContext(ctxSize)}
	if params.Float16 {
		mo = append(mo, llama.EnableF16Memory)
	}
	l, err := llama.New(path, mo...)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: load %s: %w", path, err)
	}
	progress.Report(llm.Loaded{FileSize: fi.Size()})
	return &Model{
		l:       l,
		threads: params.Threads,
		f16:     params.Float16,
		info: llm.Info{
			Name:        fi.Name(),
			Path:        path,
			Backend:     "llama",
			Fingerprint: fmt.Sprintf("llama:%s:%d:c%d", fi.Name(), fi.Size(), ctxSize),
			ContextSize: ctxSize,
		},
	}, nil
}

type session struct {
	model  *Model
	prefix strings.Builder
	closed bool
}

func (s *session) Snapshot() (*snapshot.Snapshot, error) {
	if s.closed {
		return nil, errors.New("llamacpp: session closed")
	}
	prec := llm.PrecisionF32
	if s.model.f16 {
		prec = llm.PrecisionF16
	}
	return &snapshot.Snapshot{
		Model:     s.model.info.Fingerprint,
		Precision: string(prec),
		Memory:    []byte(s.prefix.String()),
	}, nil
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

// Info implements llm.Model.
func (m *Model) Info() llm.Info { return m.info }

// StartSession implements llm.Model. Memory precision is fixed when the
// model is loaded; a mismatching request is rejected.
func (m *Model) StartSession(mem llm.MemoryConfig) (llm.Session, error) {
	want := llm.PrecisionF32
	if m.f16 {
		want = llm.PrecisionF16
	}
	if mem.KeyType != "" && mem.KeyType != want {
		return nil, fmt.Errorf("llamacpp: model loaded with %s memory, session asked for %s", want, mem.KeyType)
	}
	return &session{model: m}, nil
}

// RestoreSession implements llm.Model.
func (m *Model) RestoreSession(snap *snapshot.Snapshot) (llm.Session, error) {
	if snap == nil || snap.Model != m.info.Fingerprint {
		return nil, llm.ErrIncompatibleSnapshot
	}
	s := &session{model: m}
	s.prefix.Write(snap.Memory)
	return s, nil
}

// Feed implements llm.Model.
func (m *Model) Feed(ctx context.Context, sess llm.Session, prompt string, batch int) error {
	s, err := m.own(sess)
	if err != nil {
		return err
	}
	s.prefix.WriteString(prompt)
	return ctx.Err()
}

// Generate implements llm.Model.
func (m *Model) Generate(ctx context.Context, sess llm.Session, params llm.SamplingParams, rng *rand.Rand, prompt string, onToken llm.TokenFunc) error {
	s, err := m.own(sess)
	if err != nil {
		return err
	}
	var cbErr error
	m.l.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		s.prefix.WriteString(tok)
		if onToken != nil {
			if cbErr = onToken(tok); cbErr != nil {
				return false
			}
		}
		return true
	})
	defer m.l.SetTokenCallback(nil)

	s.prefix.WriteString(prompt)
	po := predictOptions(params, m.threads, rng)
	if _, err := m.l.Predict(s.prefix.String(), po...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return cbErr
}

// Close implements llm.Model.
func (m *Model) Close() error {
	if m.l != nil {
		m.l.Free()
		m.l = nil
	}
	return nil
}

func (m *Model) own(sess llm.Session) (*session, error) {
	s, ok := sess.(*session)
	if !ok || s.model != m {
		return nil, errors.New("llamacpp: session belongs to a different model")
	}
	if s.closed {
		return nil, errors.New("llamacpp: session closed")
	}
	return s, nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts sampling params into go-llama.cpp options.
func predictOptions(p llm.SamplingParams, threads int, rng *rand.Rand) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetThreads(max(1, zn(p.Threads, threads))),
		llama.SetBatch(zn(p.BatchSize, 8)),
		llama.SetTopK(zn(p.TopK, llama.DefaultOptions.TopK)),
		llama.SetTopP(zf(p.TopP, llama.DefaultOptions.TopP)),
		llama.SetTemperature(p.Temperature),
		llama.SetPenalty(zf(p.RepeatPenalty, llama.DefaultOptions.Penalty)),
		llama.SetRepeat(zn(p.RepeatLastN, 64)),
		// 0 lifts the binding's 128-token default; the context bounds generation.
		llama.SetTokens(max(0, p.MaxTokens)),
	}
	if rng != nil {
		po = append(po, llama.SetSeed(int(rng.Int31())))
	}
	return po
}
