// Package llamacpp runs models through go-llama.cpp.
//
// The real implementation is compiled with `-tags=llama` and links against
// libllama (see llama_cgo.go). Without the tag, Load fails fast with a
// dependency-unavailable error so default builds stay CGO-free.
package llamacpp

// Loader implements llm.Loader for GGUF model files.
type Loader struct{}
