package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Result is one element of a request's output stream: either a token or
// the terminal error.
type Result struct {
	Token string
	Err   error
}

// Sink carries one request's results from the scheduler to the transport.
// It is unbounded so Send never blocks the scheduler. The scheduler owns
// the producer side (Send, Finish); the transport owns the consumer side
// (Next, Close).
type Sink struct {
	q       *Queue[Result]
	once    sync.Once
	mu      sync.Mutex
	discard bool
}

// NewSink returns an open sink.
func NewSink() *Sink {
	return &Sink{q: NewQueue[Result]()}
}

// Send enqueues r without blocking. It fails with ErrSinkClosed once the
// consumer closed the sink or the stream was finished.
func (s *Sink) Send(r Result) error {
	if err := s.q.Push(r); err != nil {
		return ErrSinkClosed
	}
	return nil
}

// Finish ends the stream. A non-nil err is delivered as the final result.
// Only the first call has an effect.
func (s *Sink) Finish(err error) {
	s.once.Do(func() {
		if err != nil {
			_ = s.q.Push(Result{Err: err})
		}
		s.q.Close()
	})
}

// Next returns the next result. ok is false once the stream has ended and
// every result was consumed. err is set only when ctx is done.
func (s *Sink) Next(ctx context.Context) (r Result, ok bool, err error) {
	r, err = s.q.Pop(ctx)
	if errors.Is(err, ErrQueueClosed) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	return r, true, nil
}

// Close tells the producer nobody is listening anymore. Buffered results
// are dropped and later sends fail.
func (s *Sink) Close() {
	s.mu.Lock()
	s.discard = true
	s.mu.Unlock()
	s.q.Close()
	s.q.Drain()
}

// Discarded reports whether the consumer closed the sink.
func (s *Sink) Discarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discard
}

// Collect reads the whole stream and returns the tokens in order together
// with the terminal error, if any.
func (s *Sink) Collect(ctx context.Context) ([]string, error) {
	var toks []string
	for {
		r, ok, err := s.Next(ctx)
		if err != nil {
			return toks, err
		}
		if !ok {
			return toks, nil
		}
		if r.Err != nil {
			return toks, r.Err
		}
		toks = append(toks, r.Token)
	}
}

// Text joins tokens collected from a sink.
func Text(tokens []string) string { return strings.Join(tokens, "") }
