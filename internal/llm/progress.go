package llm

// Progress is reported while a model loads. It is one of
// HyperparametersLoaded, ContextSize, TensorLoaded or Loaded.
type Progress interface {
	progress()
}

// ProgressFunc receives load progress. It is called on the loading goroutine.
type ProgressFunc func(Progress)

// HyperparametersLoaded is reported once the model header has been read.
type HyperparametersLoaded struct{}

// ContextSize reports the memory needed for the model context.
type ContextSize struct{ Bytes int64 }

// TensorLoaded is reported after each tensor is read.
type TensorLoaded struct {
	Current int
	Count   int
}

// Loaded is reported once loading finished.
type Loaded struct {
	TensorCount int
	FileSize    int64
}

func (HyperparametersLoaded) progress() {}
func (ContextSize) progress()           {}
func (TensorLoaded) progress()          {}
func (Loaded) progress()                {}

// Report calls fn with p when fn is set.
func (fn ProgressFunc) Report(p Progress) {
	if fn != nil {
		fn(p)
	}
}
