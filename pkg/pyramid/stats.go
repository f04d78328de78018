package pyramid

import (
	"gonum.org/v1/gonum/stat"

	"omepyramid/pkg/plane"
)

// Stats summarizes the intensity distribution of one plane. Used for
// reporting sensible display ranges before a write; not stored in the
// container.
type Stats struct {
	Min, Max     float64
	Mean, StdDev float64
}

// PlaneStats computes intensity statistics over every sample of p.
func PlaneStats[T plane.Pixel](p *plane.Plane[T]) Stats {
	vals := make([]float64, len(p.Pix))
	min := float64(p.Pix[0])
	max := min
	for i, v := range p.Pix {
		f := float64(v)
		vals[i] = f
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}
	mean, std := stat.MeanStdDev(vals, nil)
	return Stats{Min: min, Max: max, Mean: mean, StdDev: std}
}
