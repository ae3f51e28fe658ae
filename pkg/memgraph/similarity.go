package memgraph

import (
	"log/slog"
	"math"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"
)

var gonumEngine = gonum.Implementation{}

// dot is the dot-product kernel used by cosine. It starts as the pure Go
// reference and is swapped for Gonum's SIMD routines when the CPU has them.
var dot = dotGo

func init() {
	if cpuid.CPU.Has(cpuid.AVX2) || cpuid.CPU.Has(cpuid.ASIMD) {
		dot = dotGonum
	}
	slog.Debug("memgraph similarity kernel selected", "cpu", cpuid.CPU.BrandName, "simd", cpuid.CPU.Has(cpuid.AVX2) || cpuid.CPU.Has(cpuid.ASIMD))
}

// dotGo is the pure Go reference implementation.
func dotGo(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func dotGonum(a, b []float32) float32 {
	return gonumEngine.Sdot(len(a), a, 1, b, 1)
}

// cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector. Callers guarantee equal lengths.
func cosine(a, b []float32) float64 {
	ab := float64(dot(a, b))
	aa := float64(dot(a, a))
	bb := float64(dot(b, b))
	if aa == 0 || bb == 0 {
		return 0
	}
	return ab / (math.Sqrt(aa) * math.Sqrt(bb))
}
