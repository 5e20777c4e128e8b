package llm

// Precision selects the element type of the key/value memory.
type Precision string

const (
	PrecisionF32 Precision = "f32"
	PrecisionF16 Precision = "f16"
)

// ParsePrecision maps a stored precision string back to a Precision.
// Unknown values report false.
func ParsePrecision(s string) (Precision, bool) {
	switch Precision(s) {
	case PrecisionF32:
		return PrecisionF32, true
	case PrecisionF16:
		return PrecisionF16, true
	}
	return "", false
}

// MemoryConfig configures a fresh session.
type MemoryConfig struct {
	KeyType   Precision
	ValueType Precision
}

// MemoryFor returns a config using p for both keys and values.
func MemoryFor(p Precision) MemoryConfig {
	return MemoryConfig{KeyType: p, ValueType: p}
}

// LoadParams configures model loading.
type LoadParams struct {
	ContextSize int
	Threads     int
	BatchSize   int
	Float16     bool
}

// SamplingParams controls one generation call.
type SamplingParams struct {
	Threads       int
	BatchSize     int
	TopK          int
	TopP          float32
	RepeatPenalty float32
	Temperature   float32
	// RepeatLastN is the window of recent tokens the repeat penalty looks at.
	RepeatLastN int
	// MaxTokens caps generated tokens; 0 means until end-of-text or a full context.
	MaxTokens int
}
