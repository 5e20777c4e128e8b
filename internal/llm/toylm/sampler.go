package toylm

import (
	"math"
	"math/rand"
	"sort"

	"llmserve/internal/llm"
)

// sample picks the next token:
//
//  1. penalize tokens seen in the last RepeatLastN positions,
//  2. return the argmax when Temperature <= 0,
//  3. otherwise scale by 1/Temperature, keep the TopK best, softmax,
//     truncate at cumulative TopP and draw from rng.
func sample(logits []float32, recent []int32, p llm.SamplingParams, rng *rand.Rand) int {
	work := append([]float32(nil), logits...)

	if p.RepeatPenalty > 0 && p.RepeatPenalty != 1 && len(recent) > 0 {
		window := recent
		if p.RepeatLastN > 0 && len(window) > p.RepeatLastN {
			window = window[len(window)-p.RepeatLastN:]
		}
		seen := make(map[int32]struct{}, len(window))
		for _, tok := range window {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			if work[tok] > 0 {
				work[tok] /= p.RepeatPenalty
			} else {
				work[tok] *= p.RepeatPenalty
			}
		}
	}

	if p.Temperature <= 0 {
		best := 0
		for i, v := range work {
			if v > work[best] {
				best = i
			}
		}
		return best
	}

	idx := make([]int, len(work))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return work[idx[a]] > work[idx[b]] })
	k := p.TopK
	if k <= 0 || k > len(idx) {
		k = len(idx)
	}
	idx = idx[:k]

	inv := 1 / float64(p.Temperature)
	top := float64(work[idx[0]]) * inv
	prob := make([]float64, k)
	var sum float64
	for i, id := range idx {
		prob[i] = math.Exp(float64(work[id])*inv - top)
		sum += prob[i]
	}

	if p.TopP > 0 && p.TopP < 1 {
		var cum float64
		cut := k
		for i := range prob {
			cum += prob[i] / sum
			if cum >= float64(p.TopP) {
				cut = i + 1
				break
			}
		}
		prob = prob[:cut]
		idx = idx[:cut]
		sum = 0
		for _, v := range prob {
			sum += v
		}
	}

	r := rng.Float64() * sum
	for i, v := range prob {
		r -= v
		if r < 0 {
			return idx[i]
		}
	}
	return idx[len(idx)-1]
}
