// Package vectorutil implements float32 vector post-processing for
// embedding results: L2 normalization, applied by every provider
// adapter's Embed method to the raw vectors a backend returns.
package vectorutil

import (
	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"
)

// Normalize returns a copy of v scaled to unit L2 norm. A zero vector is
// returned unchanged since it has no direction to scale toward.
func Normalize(v []float32) []float32 {
	norm := math32.Sqrt(vek32.Dot(v, v))
	if norm == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
