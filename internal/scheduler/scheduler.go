package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llmserve/internal/llm"
)

// Scheduler is the only caller of the model. Producers Submit requests from
// any goroutine; one loop goroutine executes them strictly one at a time in
// submission order and streams tokens into each request's Sink.
type Scheduler struct {
	cfg       Config
	loader    llm.Loader
	queue     *Queue[*InferenceRequest]
	log       zerolog.Logger
	publisher EventPublisher

	// Owned by the loop goroutine once Start returns.
	model llm.Model
	store *SessionStore

	stopping  atomic.Bool
	done      chan struct{}
	startDone chan struct{}

	mu        sync.RWMutex
	starting  bool
	started   bool
	state     State
	info      llm.Info
	lastErr   string
	current   string
	startTime time.Time
	counters  counters
}

type counters struct {
	processed uint64
	failed    uint64
	tokens    uint64
	dropped   uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l.With().Str("component", "scheduler").Logger() }
}

// WithEventPublisher installs an event sink. The default drops events.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Scheduler) {
		if p == nil {
			p = noopPublisher{}
		}
		s.publisher = p
	}
}

// New creates a scheduler. Requests may be submitted right away; they are
// executed once Start has loaded the model.
func New(cfg Config, loader llm.Loader, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg.withDefaults(),
		loader:    loader,
		queue:     NewQueue[*InferenceRequest](),
		log:       zerolog.Nop(),
		publisher: noopPublisher{},
		done:      make(chan struct{}),
		startDone: make(chan struct{}),
		state:     StateLoading,
		startTime: time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit enqueues req without blocking. It fails only when req has no sink
// or the scheduler was closed.
func (s *Scheduler) Submit(req *InferenceRequest) error {
	if req == nil || req.Sink == nil {
		return ErrNoSink
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := s.queue.Push(req); err != nil {
		return ErrSchedulerClosed
	}
	queueLength.Set(float64(s.queue.Len()))
	s.publisher.Publish(Event{Name: EventRequestQueued, RequestID: req.ID, Fields: map[string]any{"cache": req.Cache}})
	return nil
}

// Start loads the model and the restore snapshot, then starts the loop.
// Any error is fatal: the loop is never started and nothing is served.
// ctx bounds the loop's lifetime; Close is the usual way to stop it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.queue.Closed() {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	if s.starting {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.starting = true
	s.state = StateLoading
	s.mu.Unlock()
	defer close(s.startDone)

	s.log.Info().Str("model", s.cfg.ModelPath).Msg("loading model")
	model, err := s.loader.Load(s.cfg.ModelPath, s.cfg.loadParams(), s.handleProgress)
	if err != nil {
		return s.fail(&StartupError{Stage: "load model", Err: err})
	}
	store, err := NewSessionStore(model, s.cfg, s.log)
	if err != nil {
		_ = model.Close()
		return s.fail(err)
	}

	s.mu.Lock()
	if s.queue.Closed() {
		// Close ran during the load; it waits on startDone and drains the queue.
		s.mu.Unlock()
		_ = model.Close()
		s.log.Info().Msg("scheduler closed during startup")
		return ErrSchedulerClosed
	}
	s.model = model
	s.store = store
	s.started = true
	s.state = StateReady
	s.info = model.Info()
	s.mu.Unlock()

	go s.run(ctx)

	s.log.Info().Str("backend", s.info.Backend).Int("context", s.info.ContextSize).Msg("ready")
	s.publisher.Publish(Event{Name: EventSchedulerReady, Fields: map[string]any{"model": s.info.Path}})
	return nil
}

func (s *Scheduler) fail(err error) error {
	s.mu.Lock()
	s.state = StateError
	s.lastErr = err.Error()
	s.mu.Unlock()
	s.log.Error().Err(err).Msg("scheduler startup failed")
	return err
}

// Close stops accepting requests, lets the running generation finish,
// fails everything still queued with ErrSchedulerClosed and releases the
// model. A Start still loading is waited for.
func (s *Scheduler) Close() error {
	s.stopping.Store(true)
	s.mu.Lock()
	s.queue.Close()
	starting := s.starting
	s.mu.Unlock()
	if starting {
		<-s.startDone
	}
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		for _, req := range s.queue.Drain() {
			s.reject(req)
		}
		s.setState(StateStopped)
		return nil
	}
	<-s.done
	return nil
}

// Done is closed when the loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Ready reports whether the model is loaded and the loop is serving.
func (s *Scheduler) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateReady
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	defer s.shutdown()
	for {
		req, err := s.next(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) {
				s.log.Info().Err(err).Msg("scheduler loop stopping")
			}
			return
		}
		queueLength.Set(float64(s.queue.Len()))
		if s.stopping.Load() {
			s.reject(req)
			continue
		}
		s.execute(ctx, req)
	}
}

// next waits for the next request: blocking by default, or polling with a
// bounded sleep when PollInterval is set.
func (s *Scheduler) next(ctx context.Context) (*InferenceRequest, error) {
	if s.cfg.PollInterval <= 0 {
		return s.queue.Pop(ctx)
	}
	for {
		if req, ok := s.queue.TryPop(); ok {
			return req, nil
		}
		if s.queue.Closed() {
			// Pushes are rejected once closed, so this second look is final.
			if req, ok := s.queue.TryPop(); ok {
				return req, nil
			}
			return nil, ErrQueueClosed
		}
		t := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Scheduler) shutdown() {
	s.stopping.Store(true)
	s.queue.Close()
	for _, req := range s.queue.Drain() {
		s.reject(req)
	}
	queueLength.Set(0)
	if err := s.model.Close(); err != nil {
		s.log.Warn().Err(err).Msg("closing model")
	}
	s.setState(StateStopped)
	s.log.Info().Msg("scheduler stopped")
	s.publisher.Publish(Event{Name: EventSchedulerStopped})
}

func (s *Scheduler) reject(req *InferenceRequest) {
	req.Sink.Finish(ErrSchedulerClosed)
	requestsTotal.WithLabelValues(outcomeClosed).Inc()
	s.publisher.Publish(Event{Name: EventRequestFailed, RequestID: req.ID, Fields: map[string]any{"error": ErrSchedulerClosed.Error()}})
}

func (s *Scheduler) execute(ctx context.Context, req *InferenceRequest) {
	start := time.Now()
	log := s.log.With().Str("request_id", req.ID).Uint64("cache", req.Cache).Logger()
	s.setCurrent(req.ID)
	defer s.setCurrent("")

	params := s.cfg.Defaults.Resolve(req)
	log.Info().Int("prompt_len", len(req.Prompt)).Int("max_tokens", params.MaxTokens).Msg("request start")
	s.publisher.Publish(Event{Name: EventRequestStart, RequestID: req.ID})

	var st streamStats
	err := s.generate(ctx, req, params, log, &st)
	dur := time.Since(start)
	generationDuration.Observe(dur.Seconds())
	s.record(st, err)

	if err != nil {
		log.Warn().Err(err).Dur("dur", dur).Int("tokens", st.sent).Msg("generation failed")
		req.Sink.Finish(&GenerationError{RequestID: req.ID, Err: err})
		requestsTotal.WithLabelValues(outcomeFailed).Inc()
		s.publisher.Publish(Event{Name: EventRequestFailed, RequestID: req.ID, Fields: map[string]any{"error": err.Error(), "tokens": st.sent}})
		return
	}
	req.Sink.Finish(nil)
	log.Info().Dur("dur", dur).Int("tokens", st.sent).Int("dropped", st.dropped).Msg("request done")
	requestsTotal.WithLabelValues(outcomeOK).Inc()
	s.publisher.Publish(Event{Name: EventRequestDone, RequestID: req.ID, Fields: map[string]any{"tokens": st.sent, "dropped": st.dropped}})
}

type streamStats struct {
	sent    int
	dropped int
}

// generate runs one request against the model. A panic in the model is
// turned into an error so the loop keeps serving.
func (s *Scheduler) generate(ctx context.Context, req *InferenceRequest, params llm.SamplingParams, log zerolog.Logger, st *streamStats) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during generation: %v", r)
		}
	}()
	sess, err := s.store.Session()
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	// Delivery failures never stop generation: the callback always reports continue.
	onToken := func(tok string) error {
		if err := req.Sink.Send(Result{Token: tok}); err != nil {
			st.dropped++
			droppedTokensTotal.Inc()
			if st.dropped == 1 {
				s.publisher.Publish(Event{Name: EventSinkClosed, RequestID: req.ID, Fields: map[string]any{"discarded": req.Sink.Discarded()}})
			}
			log.Warn().Err(err).Msg("could not send token to receiver")
			return nil
		}
		st.sent++
		tokensTotal.Inc()
		log.Debug().Str("token", tok).Msg("sent token to receiver")
		return nil
	}
	return s.model.Generate(ctx, sess, params, s.newRand(), req.Prompt, onToken)
}

func (s *Scheduler) newRand() *rand.Rand {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func (s *Scheduler) handleProgress(p llm.Progress) {
	switch p := p.(type) {
	case llm.HyperparametersLoaded:
		s.log.Debug().Msg("loaded hyperparameters")
	case llm.ContextSize:
		s.log.Info().Msgf("ctx size = %.2f MB", float64(p.Bytes)/(1024*1024))
	case llm.TensorLoaded:
		s.log.Info().Msgf("loading model part %d/%d", p.Current, p.Count)
	case llm.Loaded:
		s.log.Info().Msg("loading complete")
		s.log.Info().Msgf("model size = %.2f MB / num tensors = %d", float64(p.FileSize)/(1024*1024), p.TensorCount)
	}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Scheduler) setCurrent(id string) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}

func (s *Scheduler) record(st streamStats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.processed++
	s.counters.tokens += uint64(st.sent)
	s.counters.dropped += uint64(st.dropped)
	if err != nil {
		s.counters.failed++
		s.lastErr = err.Error()
	}
}
