package scheduler

// State is the lifecycle state of the scheduler.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
	StateStopped State = "stopped"
)

// InferenceRequest is one caller's generation job. Nil overrides fall
// back to the scheduler defaults.
type InferenceRequest struct {
	// ID is assigned by Submit when empty.
	ID     string
	Prompt string

	NumPredict    *int
	BatchSize     *int
	TopK          *int
	TopP          *float32
	RepeatPenalty *float32
	Temperature   *float32

	// Cache is an opaque caller key. It is carried into logs and events.
	Cache uint64

	// Sink receives the tokens and the terminal result.
	Sink *Sink
}

// Ptr returns a pointer to v, for filling optional request fields.
func Ptr[T any](v T) *T { return &v }
