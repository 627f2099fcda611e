// Package simdops provides SIMD operations for the spatializer hot paths.
//
// The generic Ops table lets the kernel preparation code run on float64
// while the audio path stays on float32 without duplicating call sites.
package simdops

import (
	"github.com/tphakala/simd/c128"
	"github.com/tphakala/simd/f32"
	"github.com/tphakala/simd/f64"
)

// Float is the type constraint for supported floating-point types.
type Float interface {
	float32 | float64
}

// Ops provides SIMD-accelerated operations for type F.
type Ops[F Float] struct {
	// DotProductUnsafe computes the dot product without bounds checking.
	// Use only when slices are guaranteed to have equal length.
	DotProductUnsafe func(a, b []F) F

	// Scale multiplies each element by scalar s: dst[i] = a[i] * s
	Scale func(dst, a []F, s F)
}

var (
	ops32 = Ops[float32]{
		DotProductUnsafe: f32.DotProductUnsafe,
		Scale:            f32.Scale,
	}
	ops64 = Ops[float64]{
		DotProductUnsafe: f64.DotProductUnsafe,
		Scale:            f64.Scale,
	}
)

// For returns the Ops instance for type F.
func For[F Float]() *Ops[F] {
	var zero F
	switch any(zero).(type) {
	case float32:
		ops, ok := any(&ops32).(*Ops[F])
		if !ok {
			panic("simdops: type assertion failed for float32")
		}
		return ops
	case float64:
		ops, ok := any(&ops64).(*Ops[F])
		if !ok {
			panic("simdops: type assertion failed for float64")
		}
		return ops
	default:
		panic("simdops: unsupported float type")
	}
}

// Energy returns the sum of squares of a.
func Energy[F Float](a []F) F {
	if len(a) == 0 {
		return 0
	}
	return For[F]().DotProductUnsafe(a, a)
}

// MulComplex multiplies two spectra element-wise: dst[i] = a[i] * b[i].
func MulComplex(dst, a, b []complex128) {
	c128.Mul(dst, a, b)
}

// MulAddComplex accumulates a*b into acc using scratch for the product.
// All slices must have equal length.
func MulAddComplex(acc, a, b, scratch []complex128) {
	MulComplex(scratch, a, b)
	for i, v := range scratch {
		acc[i] += v
	}
}

// MixSum writes (a[i] + b[i]) * gain into dst.
func MixSum(dst, a, b []float32, gain float32) {
	n := min(len(dst), len(a), len(b))
	dst = dst[:n]
	for i := range dst {
		dst[i] = a[i] + b[i]
	}
	f32.Scale(dst, dst, gain)
}
