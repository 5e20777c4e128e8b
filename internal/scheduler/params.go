package scheduler

import "llmserve/internal/llm"

// Defaults are the process-wide sampling settings a request may override.
type Defaults struct {
	Threads       int
	BatchSize     int
	TopK          int
	TopP          float32
	RepeatPenalty float32
	Temperature   float32
	RepeatLastN   int
	NumPredict    int
}

// Resolve overlays the request's overrides onto d. Threads and the repeat
// window are not overridable per request.
func (d Defaults) Resolve(req *InferenceRequest) llm.SamplingParams {
	return llm.SamplingParams{
		Threads:       d.Threads,
		BatchSize:     or(req.BatchSize, d.BatchSize),
		TopK:          or(req.TopK, d.TopK),
		TopP:          or(req.TopP, d.TopP),
		RepeatPenalty: or(req.RepeatPenalty, d.RepeatPenalty),
		Temperature:   or(req.Temperature, d.Temperature),
		RepeatLastN:   d.RepeatLastN,
		MaxTokens:     or(req.NumPredict, d.NumPredict),
	}
}

func or[T any](v *T, def T) T {
	if v != nil {
		return *v
	}
	return def
}
