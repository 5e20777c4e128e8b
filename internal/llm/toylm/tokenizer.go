package toylm

import (
	"hash/fnv"
	"strings"
)

// tokenize splits on whitespace. Words outside the vocabulary hash onto a
// vocabulary entry that is never the end-of-text token.
func (m *Model) tokenize(text string) []int {
	words := strings.Fields(text)
	out := make([]int, 0, len(words))
	for _, w := range words {
		if id, ok := m.index[w]; ok {
			out = append(out, id)
			continue
		}
		out = append(out, m.hashToken(w))
	}
	return out
}

func (m *Model) hashToken(w string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(w))
	v := len(m.spec.Vocab)
	id := int(h.Sum32() % uint32(v))
	if m.spec.EOS != nil && id == *m.spec.EOS {
		id = (id + 1) % v
	}
	return id
}

func (m *Model) text(tok int) string {
	return " " + m.spec.Vocab[tok]
}
