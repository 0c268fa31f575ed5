package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Deterministic is a dependency-free embedder that hashes tokens into a
// fixed number of buckets and L2-normalizes the result. Identical text
// always yields the identical vector, which is what the tests and the
// seed tooling need; it is not a semantic model.
type Deterministic struct {
	dims int
}

// NewDeterministic builds a deterministic embedder of the given dimension.
func NewDeterministic(dims int) *Deterministic {
	if dims <= 0 {
		dims = 64
	}
	return &Deterministic{dims: dims}
}

func (d *Deterministic) Dimensions() int { return d.dims }

func (d *Deterministic) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, d.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		idx := int(sum % uint32(d.dims))
		// Half the hash bits pick the sign so vectors spread over the
		// whole space instead of the positive orthant
		if sum&0x80000000 != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range v {
			v[i] = float32(float64(v[i]) * inv)
		}
	}
	return v, nil
}
