package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"llmserve/internal/scheduler"
	"llmserve/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Submit(req *scheduler.InferenceRequest) error
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Log-Level", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/status", statusHandler(svc))
	r.Post("/infer", inferHandler(svc))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(svc.Status().State))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

// statusHandler godoc
// @Summary      Scheduler status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func statusHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	}
}

// inferHandler godoc
// @Summary      Generate a continuation
// @Description  Streams NDJSON token lines by default; set stream=false for a single JSON body.
// @Tags         inference
// @Accept       json
// @Produce      application/x-ndjson
// @Param        request  body      types.InferRequest  true  "Prompt and sampling overrides"
// @Success      200      {object}  types.TokenLine
// @Failure      400      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /infer [post]
func inferHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var body types.InferRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(body.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		if err := validateOverrides(body); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		log := requestLogger(r)
		start := time.Now()
		req := toRequest(middleware.GetReqID(r.Context()), body)
		if err := svc.Submit(req); err != nil {
			status := statusFor(err)
			log.Warn().Err(err).Int("status", status).Msg("infer rejected")
			writeJSONError(w, status, err.Error())
			return
		}
		// Whatever ends this handler, the scheduler must stop delivering.
		defer req.Sink.Close()
		log = log.With().Str("request_id", req.ID).Logger()
		log.Info().Int("prompt_len", len(body.Prompt)).Msg("infer start")

		// Join server base context with request context so shutdown ends streams too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if inferTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, time.Duration(inferTimeout)*time.Second)
			defer tcancel()
		}

		var (
			n   int
			err error
		)
		if body.Stream == nil || *body.Stream {
			n, err = streamNDJSON(ctx, w, req.Sink, log)
		} else {
			n, err = writeBuffered(ctx, w, req.Sink)
		}
		if err != nil && ctx.Err() != nil {
			reason := abandonReason(r.Context(), ctx)
			streamsAbandonedTotal.WithLabelValues(reason).Inc()
			log.Info().Str("reason", reason).Int("tokens", n).Dur("dur", time.Since(start)).Msg("infer abandoned")
			return
		}
		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Int("tokens", n).Dur("dur", time.Since(start)).Msg("infer end")
	}
}

func abandonReason(reqCtx, ctx context.Context) string {
	switch {
	case reqCtx.Err() != nil:
		return abandonDisconnect
	case serverBaseCtx.Err() != nil:
		return abandonShutdown
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return abandonTimeout
	default:
		return abandonDisconnect
	}
}

// streamNDJSON writes one line per token and a final done line. It returns
// the number of tokens written and the terminal error, if any.
func streamNDJSON(ctx context.Context, w http.ResponseWriter, sink *scheduler.Sink, log zerolog.Logger) (int, error) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	enc := json.NewEncoder(w)
	n := 0
	for {
		res, ok, err := sink.Next(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				_ = enc.Encode(types.TokenLine{Done: true, Tokens: n, Error: "inference timed out"})
				flush()
			}
			return n, err
		}
		if !ok {
			_ = enc.Encode(types.TokenLine{Done: true, Tokens: n})
			flush()
			return n, nil
		}
		if res.Err != nil {
			_ = enc.Encode(types.TokenLine{Done: true, Tokens: n, Error: res.Err.Error()})
			flush()
			return n, res.Err
		}
		if err := enc.Encode(types.TokenLine{Token: res.Token}); err != nil {
			return n, err
		}
		flush()
		n++
		log.Debug().Str("token", res.Token).Msg("infer>")
	}
}

// writeBuffered collects the whole stream and writes a single JSON body.
func writeBuffered(ctx context.Context, w http.ResponseWriter, sink *scheduler.Sink) (int, error) {
	toks, err := sink.Collect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				writeJSONError(w, http.StatusGatewayTimeout, "inference timed out")
			}
			return len(toks), err
		}
		writeJSONError(w, statusFor(err), err.Error())
		return len(toks), err
	}
	w.Header().Set("Content-Type", "application/json")
	return len(toks), json.NewEncoder(w).Encode(types.InferResponse{Content: scheduler.Text(toks), Tokens: len(toks)})
}

func validateOverrides(b types.InferRequest) error {
	switch {
	case b.NumPredict != nil && *b.NumPredict < 0:
		return errors.New("num_predict must not be negative")
	case b.BatchSize != nil && *b.BatchSize <= 0:
		return errors.New("n_batch must be positive")
	case b.TopK != nil && *b.TopK <= 0:
		return errors.New("top_k must be positive")
	case b.TopP != nil && (*b.TopP <= 0 || *b.TopP > 1):
		return errors.New("top_p must be in (0,1]")
	case b.RepeatPenalty != nil && *b.RepeatPenalty <= 0:
		return errors.New("repeat_penalty must be positive")
	case b.Temperature != nil && *b.Temperature < 0:
		return errors.New("temp must not be negative")
	}
	return nil
}

func toRequest(id string, b types.InferRequest) *scheduler.InferenceRequest {
	return &scheduler.InferenceRequest{
		ID:            id,
		Prompt:        b.Prompt,
		NumPredict:    b.NumPredict,
		BatchSize:     b.BatchSize,
		TopK:          b.TopK,
		TopP:          b.TopP,
		RepeatPenalty: b.RepeatPenalty,
		Temperature:   b.Temperature,
		Cache:         b.Cache,
		Sink:          scheduler.NewSink(),
	}
}
