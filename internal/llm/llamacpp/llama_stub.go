//go:build !llama

package llamacpp

import "llmserve/internal/llm"

// Built indicates this binary was compiled with real llama support.
const Built = false

// Load implements llm.Loader.
func (Loader) Load(path string, params llm.LoadParams, progress llm.ProgressFunc) (llm.Model, error) {
	return nil, llm.ErrDependencyUnavailable("llama support not built (missing 'llama' build tag); use backend \"toy\" or rebuild with -tags=llama")
}
