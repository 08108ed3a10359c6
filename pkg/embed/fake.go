package embed

import (
	"context"
	"hash/fnv"
	"math"
)

// Hash is a deterministic offline Embedder for tests and local runs. Equal
// texts map to equal unit vectors.
type Hash struct {
	Dimensions int
}

func (h Hash) Embed(_ context.Context, text string) ([]float32, error) {
	dims := h.Dimensions
	if dims <= 0 {
		dims = 8
	}
	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		f := fnv.New64a()
		f.Write([]byte{byte(i), byte(i >> 8)})
		f.Write([]byte(text))
		v := float64(f.Sum64()%2000)/1000 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}
