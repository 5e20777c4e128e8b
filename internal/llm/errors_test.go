package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsDependencyUnavailable(t *testing.T) {
	err := ErrDependencyUnavailable("llama missing")
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected true for direct error")
	}
	if !IsDependencyUnavailable(fmt.Errorf("load: %w", err)) {
		t.Fatalf("expected true for wrapped error")
	}
	if IsDependencyUnavailable(errors.New("other")) {
		t.Fatalf("expected false for unrelated error")
	}
}

func TestParsePrecision(t *testing.T) {
	cases := map[string]bool{"f16": true, "f32": true, "": false, "bf16": false}
	for in, ok := range cases {
		if _, got := ParsePrecision(in); got != ok {
			t.Fatalf("ParsePrecision(%q) ok=%v, want %v", in, got, ok)
		}
	}
	if m := MemoryFor(PrecisionF16); m.KeyType != PrecisionF16 || m.ValueType != PrecisionF16 {
		t.Fatalf("MemoryFor = %+v", m)
	}
}

func TestProgressFuncReportNil(t *testing.T) {
	var fn ProgressFunc
	fn.Report(Loaded{}) // must not panic
	var got []Progress
	fn = func(p Progress) { got = append(got, p) }
	fn.Report(TensorLoaded{Current: 1, Count: 2})
	if len(got) != 1 {
		t.Fatalf("expected one report, got %d", len(got))
	}
}
