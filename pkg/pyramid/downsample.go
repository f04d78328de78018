// Package pyramid builds multi-resolution image pyramids: it downsamples
// 2-D pixel planes and streams them, tiled, into a pyramidal TIFF container.
package pyramid

import (
	"fmt"
	"strings"

	"omepyramid/pkg/plane"
)

// Method selects how a plane is reduced when building pyramid levels.
type Method int

const (
	// BlockMean averages disjoint factor-by-factor blocks (box filter).
	// Slower than decimation but free of aliasing artifacts.
	BlockMean Method = iota

	// Decimate keeps every factor-th sample starting at (0, 0) and discards
	// the rest. Fast, introduces aliasing; callers pick it for speed.
	Decimate
)

func (m Method) String() string {
	switch m {
	case BlockMean:
		return "mean"
	case Decimate:
		return "decimate"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps a configuration string to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mean", "block_mean", "blockmean":
		return BlockMean, nil
	case "decimate", "subsample", "nearest":
		return Decimate, nil
	default:
		return 0, fmt.Errorf("%w: unknown downsample method %q", plane.ErrInvalidParameter, s)
	}
}

// ceilDiv is ceil(a/b) for positive b.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Downsample reduces p by an integer factor using the given method. The
// output shape is (ceil(H/factor), ceil(W/factor)); trailing partial blocks
// are averaged over only the pixels they actually contain. The input plane
// is never mutated. A factor of 1 returns p unchanged without copying.
func Downsample[T plane.Pixel](p *plane.Plane[T], factor int, m Method) (*plane.Plane[T], error) {
	if factor < 1 {
		return nil, fmt.Errorf("%w: downsample factor %d", plane.ErrInvalidParameter, factor)
	}
	if factor == 1 {
		return p, nil
	}

	oh := ceilDiv(p.H, factor)
	ow := ceilDiv(p.W, factor)
	out := &plane.Plane[T]{H: oh, W: ow, Pix: make([]T, oh*ow)}

	switch m {
	case Decimate:
		for oy := 0; oy < oh; oy++ {
			srow := p.Row(oy * factor)
			drow := out.Row(oy)
			for ox := 0; ox < ow; ox++ {
				drow[ox] = srow[ox*factor]
			}
		}
	case BlockMean:
		for oy := 0; oy < oh; oy++ {
			y0 := oy * factor
			y1 := y0 + factor
			if y1 > p.H {
				y1 = p.H
			}
			drow := out.Row(oy)
			for ox := 0; ox < ow; ox++ {
				x0 := ox * factor
				x1 := x0 + factor
				if x1 > p.W {
					x1 = p.W
				}
				// Accumulate in uint64 so a 2^level-by-2^level block of
				// uint16 samples cannot overflow; the integer division
				// truncates like the source element type's narrowing cast.
				var sum uint64
				for y := y0; y < y1; y++ {
					srow := p.Row(y)
					for x := x0; x < x1; x++ {
						sum += uint64(srow[x])
					}
				}
				n := uint64((y1 - y0) * (x1 - x0))
				drow[ox] = T(sum / n)
			}
		}
	default:
		return nil, fmt.Errorf("%w: downsample method %d", plane.ErrInvalidParameter, int(m))
	}
	return out, nil
}
