// Package toylm is a small pure-Go language model.
//
// It has the same surface as a real backend (sessions, key/value memory,
// sampling, snapshots) but its weights are generated from a seed, so a
// model file only carries hyperparameters and a vocabulary. Generation is
// deterministic for a given session state, sampling parameters and rng.
package toylm

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"strings"

	json "github.com/goccy/go-json"

	"llmserve/internal/llm"
	"llmserve/internal/snapshot"
)

const (
	defaultContext = 512
	defaultDecay   = 0.8
	backendName    = "toy"
)

// Spec is the on-disk model description.
type Spec struct {
	Name    string   `json:"name"`
	Vocab   []string `json:"vocab"`
	Hidden  int      `json:"hidden"`
	Context int      `json:"context,omitempty"`
	Seed    int64    `json:"seed"`
	// EOS is the vocabulary index that ends generation. Nil disables it.
	EOS   *int    `json:"eos,omitempty"`
	Decay float32 `json:"decay,omitempty"`
}

func (s Spec) validate() error {
	if len(s.Vocab) == 0 {
		return errors.New("toylm: empty vocabulary")
	}
	if s.Hidden <= 0 {
		return fmt.Errorf("toylm: hidden size must be positive, got %d", s.Hidden)
	}
	if s.EOS != nil {
		if *s.EOS < 0 || *s.EOS >= len(s.Vocab) {
			return fmt.Errorf("toylm: eos index %d outside vocabulary", *s.EOS)
		}
		if len(s.Vocab) < 2 {
			return errors.New("toylm: vocabulary needs a token besides eos")
		}
	}
	if s.Decay < 0 || s.Decay >= 1 {
		return fmt.Errorf("toylm: decay must be in [0,1), got %v", s.Decay)
	}
	return nil
}

// Model implements llm.Model.
type Model struct {
	spec        Spec
	path        string
	ctx         int
	decay       float32
	fingerprint string
	index       map[string]int

	emb  [][]float32 // [vocab][hidden]
	out  [][]float32 // [hidden][vocab]
	bias []float32   // [vocab]
}

var _ llm.Model = (*Model)(nil)

// Loader reads JSON model files.
type Loader struct{}

// Load implements llm.Loader.
func (Loader) Load(path string, params llm.LoadParams, progress llm.ProgressFunc) (llm.Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("toylm: read model: %w", err)
	}
	var spec Spec
	if err := json.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("toylm: parse model %s: %w", path, err)
	}
	m, err := build(spec, params, progress)
	if err != nil {
		return nil, err
	}
	m.path = path
	progress.Report(llm.Loaded{TensorCount: 3, FileSize: int64(len(b))})
	return m, nil
}

// New builds a model in memory.
func New(spec Spec, params llm.LoadParams) (*Model, error) {
	return build(spec, params, nil)
}

// WriteFile stores spec as a model file at path.
func WriteFile(path string, spec Spec) error {
	b, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func build(spec Spec, params llm.LoadParams, progress llm.ProgressFunc) (*Model, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	progress.Report(llm.HyperparametersLoaded{})

	m := &Model{
		spec:  spec,
		ctx:   spec.Context,
		decay: spec.Decay,
		index: make(map[string]int, len(spec.Vocab)),
	}
	if params.ContextSize > 0 {
		m.ctx = params.ContextSize
	}
	if m.ctx <= 0 {
		m.ctx = defaultContext
	}
	if m.decay == 0 {
		m.decay = defaultDecay
	}
	for i, w := range spec.Vocab {
		if _, dup := m.index[w]; !dup {
			m.index[w] = i
		}
	}
	m.fingerprint = fingerprint(spec)

	v, h := len(spec.Vocab), spec.Hidden
	weights := int64(v*h*2+v) * 4
	progress.Report(llm.ContextSize{Bytes: weights + int64(m.ctx*h*4)})

	m.emb = randMatrix(v, h, spec.Seed+11)
	progress.Report(llm.TensorLoaded{Current: 1, Count: 3})
	m.out = randMatrix(h, v, spec.Seed+23)
	progress.Report(llm.TensorLoaded{Current: 2, Count: 3})
	m.bias = randMatrix(1, v, spec.Seed+37)[0]
	for i := range m.bias {
		m.bias[i] *= 0.1
	}
	progress.Report(llm.TensorLoaded{Current: 3, Count: 3})
	return m, nil
}

func randMatrix(rows, cols int, seed int64) [][]float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([][]float32, rows)
	for i := range out {
		row := make([]float32, cols)
		for j := range row {
			row[j] = r.Float32()*2 - 1
		}
		out[i] = row
	}
	return out
}

func fingerprint(spec Spec) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(spec.Vocab, "\x00")))
	eos := -1
	if spec.EOS != nil {
		eos = *spec.EOS
	}
	return fmt.Sprintf("toylm:%s:v%d:h%d:s%d:e%d:d%g:%016x",
		spec.Name, len(spec.Vocab), spec.Hidden, spec.Seed, eos, spec.Decay, h.Sum64())
}

// Info implements llm.Model.
func (m *Model) Info() llm.Info {
	return llm.Info{
		Name:        m.spec.Name,
		Path:        m.path,
		Backend:     backendName,
		Fingerprint: m.fingerprint,
		ContextSize: m.ctx,
		VocabSize:   len(m.spec.Vocab),
	}
}

// StartSession implements llm.Model.
func (m *Model) StartSession(mem llm.MemoryConfig) (llm.Session, error) {
	p := mem.KeyType
	if p == "" {
		p = llm.PrecisionF32
	}
	if _, ok := llm.ParsePrecision(string(p)); !ok {
		return nil, fmt.Errorf("toylm: unsupported memory precision %q", p)
	}
	return newSession(m, p), nil
}

// RestoreSession implements llm.Model.
func (m *Model) RestoreSession(snap *snapshot.Snapshot) (llm.Session, error) {
	if snap == nil {
		return nil, errors.New("toylm: nil snapshot")
	}
	if snap.Model != m.fingerprint {
		return nil, fmt.Errorf("%w: snapshot model %q, loaded %q", llm.ErrIncompatibleSnapshot, snap.Model, m.fingerprint)
	}
	if snap.Position > m.ctx {
		return nil, fmt.Errorf("%w: position %d exceeds context %d", llm.ErrIncompatibleSnapshot, snap.Position, m.ctx)
	}
	s, err := restoreSession(m, snap)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Feed implements llm.Model.
func (m *Model) Feed(ctx context.Context, sess llm.Session, prompt string, batch int) error {
	s, err := m.own(sess)
	if err != nil {
		return err
	}
	return m.feed(ctx, s, m.tokenize(prompt), batch)
}

// Generate implements llm.Model.
func (m *Model) Generate(ctx context.Context, sess llm.Session, params llm.SamplingParams, rng *rand.Rand, prompt string, onToken llm.TokenFunc) error {
	s, err := m.own(sess)
	if err != nil {
		return err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	if err := m.feed(ctx, s, m.tokenize(prompt), params.BatchSize); err != nil {
		return err
	}
	logits := make([]float32, len(m.spec.Vocab))
	for n := 0; params.MaxTokens <= 0 || n < params.MaxTokens; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.pos() >= m.ctx {
			return llm.ErrContextFull
		}
		m.logits(s, logits)
		tok := sample(logits, s.tokens, params, rng)
		if m.spec.EOS != nil && tok == *m.spec.EOS {
			return nil
		}
		s.push(tok, m.emb[tok])
		if onToken != nil {
			if err := onToken(m.text(tok)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close implements llm.Model.
func (m *Model) Close() error { return nil }

func (m *Model) own(sess llm.Session) (*session, error) {
	s, ok := sess.(*session)
	if !ok || s.model != m {
		return nil, errors.New("toylm: session belongs to a different model")
	}
	if s.closed {
		return nil, errors.New("toylm: session closed")
	}
	return s, nil
}

func (m *Model) feed(ctx context.Context, s *session, toks []int, batch int) error {
	if batch <= 0 {
		batch = len(toks)
	}
	for start := 0; start < len(toks); start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batch, len(toks))
		for _, tok := range toks[start:end] {
			if s.pos() >= m.ctx {
				return llm.ErrContextFull
			}
			s.push(tok, m.emb[tok])
		}
	}
	return nil
}

// logits = state · out + bias
func (m *Model) logits(s *session, dst []float32) {
	copy(dst, m.bias)
	for i, x := range s.state {
		if x == 0 {
			continue
		}
		row := m.out[i]
		for j := range dst {
			dst[j] += x * row[j]
		}
	}
}
