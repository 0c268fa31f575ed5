// Package vectors holds the small amount of float math shared by the dedup
// engine and the document stores.
package vectors

import "math"

// Cosine returns the cosine similarity of a and b, clamped to [0, 1].
// Mismatched dimensions or a zero-norm input yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// IncrementalMean folds v into a running element-wise mean over n prior
// samples: (n*mu + v) / (n+1). A nil prior mean yields a copy of v.
func IncrementalMean(mu []float32, n int, v []float32) []float32 {
	if len(mu) == 0 || n <= 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	if len(mu) != len(v) {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	out := make([]float32, len(mu))
	fn := float64(n)
	for i := range mu {
		out[i] = float32((fn*float64(mu[i]) + float64(v[i])) / (fn + 1))
	}
	return out
}
