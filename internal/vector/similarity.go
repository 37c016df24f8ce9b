package vector

import (
	"math"

	"github.com/mindhub/mindlink/pkg/utils"
)

// InnerProduct returns the inner product of two vectors, or 0 when their lengths differ.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return utils.Dot(a, b)
}

// CosineSimilarity returns the inner product of two normalized vectors clamped to [0, 1].
func CosineSimilarity(a, b []float32) float64 {
	return math.Max(0, math.Min(1, InnerProduct(a, b)))
}
