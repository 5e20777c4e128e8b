package toylm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"llmserve/internal/llm"
	"llmserve/internal/snapshot"
)

// session keeps one hidden vector per position at the configured precision.
// state is the decayed sum of those stored vectors; it is always derived
// from memory so a restored session continues bit-identically.
type session struct {
	model     *Model
	precision llm.Precision
	tokens    []int32
	mem32     []float32
	mem16     []float16.Float16
	state     []float32
	scratch   []float32
	closed    bool
}

func newSession(m *Model, p llm.Precision) *session {
	return &session{
		model:     m,
		precision: p,
		state:     make([]float32, m.spec.Hidden),
		scratch:   make([]float32, m.spec.Hidden),
	}
}

func (s *session) pos() int { return len(s.tokens) }

// push stores vec for tok and folds the stored (possibly rounded) values into state.
func (s *session) push(tok int, vec []float32) {
	s.tokens = append(s.tokens, int32(tok))
	row := s.scratch
	switch s.precision {
	case llm.PrecisionF16:
		for i, v := range vec {
			h := float16.Fromfloat32(v)
			s.mem16 = append(s.mem16, h)
			row[i] = h.Float32()
		}
	default:
		s.mem32 = append(s.mem32, vec...)
		copy(row, vec)
	}
	s.fold(row)
}

func (s *session) fold(row []float32) {
	d := s.model.decay
	for i := range s.state {
		s.state[i] = s.state[i]*d + row[i]
	}
}

// Snapshot implements llm.Session.
func (s *session) Snapshot() (*snapshot.Snapshot, error) {
	if s.closed {
		return nil, fmt.Errorf("toylm: session closed")
	}
	snap := &snapshot.Snapshot{
		Model:     s.model.fingerprint,
		Precision: string(s.precision),
		Position:  s.pos(),
		Tokens:    append([]int32(nil), s.tokens...),
	}
	switch s.precision {
	case llm.PrecisionF16:
		snap.Memory = make([]byte, 2*len(s.mem16))
		for i, h := range s.mem16 {
			binary.LittleEndian.PutUint16(snap.Memory[2*i:], h.Bits())
		}
	default:
		snap.Memory = make([]byte, 4*len(s.mem32))
		for i, v := range s.mem32 {
			binary.LittleEndian.PutUint32(snap.Memory[4*i:], math.Float32bits(v))
		}
	}
	return snap, nil
}

// Close implements llm.Session.
func (s *session) Close() error {
	s.closed = true
	s.mem32, s.mem16 = nil, nil
	return nil
}

func restoreSession(m *Model, snap *snapshot.Snapshot) (*session, error) {
	p, ok := llm.ParsePrecision(snap.Precision)
	if !ok {
		return nil, fmt.Errorf("%w: unknown precision %q", llm.ErrIncompatibleSnapshot, snap.Precision)
	}
	h := m.spec.Hidden
	width := 4
	if p == llm.PrecisionF16 {
		width = 2
	}
	if len(snap.Tokens) != snap.Position || len(snap.Memory) != snap.Position*h*width {
		return nil, fmt.Errorf("%w: memory layout does not match %d positions of width %d",
			llm.ErrIncompatibleSnapshot, snap.Position, h)
	}
	s := newSession(m, p)
	s.tokens = make([]int32, 0, snap.Position)
	for i, tok := range snap.Tokens {
		if tok < 0 || int(tok) >= len(m.spec.Vocab) {
			return nil, fmt.Errorf("%w: token %d at %d outside vocabulary", llm.ErrIncompatibleSnapshot, tok, i)
		}
		row := s.scratch
		base := i * h * width
		for j := 0; j < h; j++ {
			off := base + j*width
			if p == llm.PrecisionF16 {
				v := float16.Frombits(binary.LittleEndian.Uint16(snap.Memory[off:]))
				s.mem16 = append(s.mem16, v)
				row[j] = v.Float32()
			} else {
				v := math.Float32frombits(binary.LittleEndian.Uint32(snap.Memory[off:]))
				s.mem32 = append(s.mem32, v)
				row[j] = v
			}
		}
		s.tokens = append(s.tokens, tok)
		s.fold(row)
	}
	return s, nil
}
