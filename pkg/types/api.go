package types

// InferRequest is the body of POST /infer. Every sampling field is optional;
// omitted fields fall back to the server defaults.
type InferRequest struct {
	// Required prompt text to continue.
	// example: Hello
	Prompt string `json:"prompt" example:"Hello"`
	// Stream tokens as NDJSON lines. Defaults to true when omitted.
	// example: true
	Stream *bool `json:"stream,omitempty" example:"true"`
	// Maximum number of tokens to generate; 0 means until end of text or context.
	// example: 128
	NumPredict *int `json:"num_predict,omitempty" example:"128"`
	// Prompt tokens evaluated per batch.
	// example: 8
	BatchSize *int `json:"n_batch,omitempty" example:"8"`
	// Top-K sampling: limit candidates to the K most likely tokens.
	// example: 40
	TopK *int `json:"top_k,omitempty" example:"40"`
	// Nucleus sampling probability.
	// example: 0.95
	TopP *float32 `json:"top_p,omitempty" example:"0.95"`
	// Penalty applied to recently generated tokens.
	// example: 1.3
	RepeatPenalty *float32 `json:"repeat_penalty,omitempty" example:"1.3"`
	// Sampling temperature; 0 picks the most likely token.
	// example: 0.8
	Temperature *float32 `json:"temp,omitempty" example:"0.8"`
	// Opaque caller tag, logged with the request.
	// example: 0
	Cache uint64 `json:"cache,omitempty" example:"0"`
}

// TokenLine is one NDJSON line of a streamed /infer response.
type TokenLine struct {
	// example: " world"
	Token string `json:"token,omitempty" example:" world"`
	// Set on the final line.
	Done bool `json:"done,omitempty"`
	// Tokens delivered, final line only.
	Tokens int `json:"tokens,omitempty"`
	// Terminal error, final line only.
	Error string `json:"error,omitempty"`
}

// InferResponse is returned by POST /infer when stream is false.
type InferResponse struct {
	// example: " world and more"
	Content string `json:"content" example:" world and more"`
	// example: 3
	Tokens int `json:"tokens" example:"3"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Scheduler state: loading, ready, error or stopped.
	// example: ready
	State string `json:"state" example:"ready"`
	// Loaded model name.
	// example: ggml-model-q4_0.bin
	Model string `json:"model,omitempty" example:"ggml-model-q4_0.bin"`
	// Inference backend: llama or toy.
	// example: llama
	Backend string `json:"backend,omitempty" example:"llama"`
	// Snapshot every session is restored from, if any.
	RestoredFrom string `json:"restored_from,omitempty"`
	// Requests waiting in the channel.
	// example: 2
	QueueLen int `json:"queue_len" example:"2"`
	// 1 while a request is generating.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// ID of the request currently generating.
	CurrentRequest string `json:"current_request,omitempty"`
	// example: 42
	ProcessedTotal uint64 `json:"processed_total" example:"42"`
	// example: 1
	FailedTotal uint64 `json:"failed_total" example:"1"`
	// Tokens delivered to sinks.
	// example: 5120
	TokensTotal uint64 `json:"tokens_total" example:"5120"`
	// Tokens generated after their sink had closed.
	// example: 12
	DroppedTokensTotal uint64 `json:"dropped_tokens_total" example:"12"`
	// Last error observed by the scheduler.
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
