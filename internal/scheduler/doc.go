// Package scheduler serializes inference over a single model. It is
// structured into small files by concern:
//
//   - queue.go: unbounded multi-producer FIFO (the request channel).
//   - sink.go: per-request output sink and Result.
//   - types.go: InferenceRequest and scheduler State.
//   - config.go: Config and package defaults.
//   - params.go: per-request override resolution.
//   - sessions.go: SessionStore, fresh or snapshot-restored sessions.
//   - scheduler.go: Scheduler lifecycle and the consumer loop.
//   - errors.go: sentinels and typed errors (GenerationError, StartupError).
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//   - status_report.go: Status for /status.
//
// The loop goroutine is the only caller of the model. Requests run one at a
// time in submission order; a sink that went away never stops the loop.
package scheduler
