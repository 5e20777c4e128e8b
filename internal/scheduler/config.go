package scheduler

import (
	"time"

	"llmserve/internal/llm"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultBatchSize     = 8
	defaultTopK          = 40
	defaultTopP          = 0.95
	defaultRepeatPenalty = 1.30
	defaultRepeatLastN   = 64
	defaultContextSize   = 2048
)

// Config is everything the scheduler needs, built once at startup.
type Config struct {
	ModelPath   string
	ContextSize int
	Defaults    Defaults
	// Seed makes sampling reproducible when non-zero.
	Seed    int64
	Float16 bool
	// RestorePath, when set, makes every request start from this snapshot.
	RestorePath string
	// PollInterval > 0 switches the loop to polling with a sleep between
	// empty polls instead of waiting for a wakeup.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	d := &c.Defaults
	if d.BatchSize <= 0 {
		d.BatchSize = defaultBatchSize
	}
	if d.TopK <= 0 {
		d.TopK = defaultTopK
	}
	if d.TopP <= 0 {
		d.TopP = defaultTopP
	}
	if d.RepeatPenalty <= 0 {
		d.RepeatPenalty = defaultRepeatPenalty
	}
	// Temperature is kept as given: 0 selects greedy sampling.
	if d.RepeatLastN <= 0 {
		d.RepeatLastN = defaultRepeatLastN
	}
	if c.ContextSize <= 0 {
		c.ContextSize = defaultContextSize
	}
	return c
}

// Precision is the key/value memory precision for fresh sessions.
func (c Config) Precision() llm.Precision {
	if c.Float16 {
		return llm.PrecisionF16
	}
	return llm.PrecisionF32
}

func (c Config) loadParams() llm.LoadParams {
	return llm.LoadParams{
		ContextSize: c.ContextSize,
		Threads:     c.Defaults.Threads,
		BatchSize:   c.Defaults.BatchSize,
		Float16:     c.Float16,
	}
}
