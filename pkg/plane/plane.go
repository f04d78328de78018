// Package plane defines the pixel data model shared by the pyramid writer:
// 2-D single-channel planes, multi-channel stacks and physical calibration.
package plane

import (
	"encoding/binary"
	"fmt"
)

// Pixel is the set of sample types the writer understands. Microscopy
// acquisitions are stored as unsigned 8- or 16-bit grayscale planes.
type Pixel interface {
	~uint8 | ~uint16
}

// DType identifies the element type of a plane at runtime, for callers that
// discover the type from an external store rather than at compile time.
type DType int

const (
	DTypeUint8 DType = iota
	DTypeUint16
)

// Size returns the sample size in bytes.
func (d DType) Size() int {
	if d == DTypeUint16 {
		return 2
	}
	return 1
}

// Bits returns the sample size in bits.
func (d DType) Bits() int {
	return d.Size() * 8
}

func (d DType) String() string {
	switch d {
	case DTypeUint8:
		return "uint8"
	case DTypeUint16:
		return "uint16"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// DTypeOf reports the DType corresponding to the compile-time sample type T.
func DTypeOf[T Pixel]() DType {
	var zero T
	switch any(zero).(type) {
	case uint16:
		return DTypeUint16
	default:
		return DTypeUint8
	}
}

// Plane is an owned 2-D pixel plane in row-major order.
// Invariant: len(Pix) == H*W.
type Plane[T Pixel] struct {
	H, W int
	Pix  []T
}

// New allocates a zeroed H by W plane.
func New[T Pixel](h, w int) (*Plane[T], error) {
	if h < 1 || w < 1 {
		return nil, fmt.Errorf("%w: plane dimensions %dx%d", ErrUnsupportedShape, h, w)
	}
	return &Plane[T]{H: h, W: w, Pix: make([]T, h*w)}, nil
}

// FromPix wraps an existing row-major buffer. The plane takes ownership of pix.
func FromPix[T Pixel](h, w int, pix []T) (*Plane[T], error) {
	if h < 1 || w < 1 {
		return nil, fmt.Errorf("%w: plane dimensions %dx%d", ErrUnsupportedShape, h, w)
	}
	if len(pix) != h*w {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d plane", ErrUnsupportedShape, len(pix), h, w)
	}
	return &Plane[T]{H: h, W: w, Pix: pix}, nil
}

// At returns the sample at row y, column x. No bounds check beyond the slice's.
func (p *Plane[T]) At(y, x int) T {
	return p.Pix[y*p.W+x]
}

// Set stores a sample at row y, column x.
func (p *Plane[T]) Set(y, x int, v T) {
	p.Pix[y*p.W+x] = v
}

// Row returns the y-th row as a sub-slice of the backing buffer.
func (p *Plane[T]) Row(y int) []T {
	return p.Pix[y*p.W : (y+1)*p.W]
}

// Clone returns a deep copy of the plane.
func (p *Plane[T]) Clone() *Plane[T] {
	pix := make([]T, len(p.Pix))
	copy(pix, p.Pix)
	return &Plane[T]{H: p.H, W: p.W, Pix: pix}
}

// Sub copies the h by w region with top-left corner at (y, x) into a new
// plane. The region is clipped at the plane boundary, never padded, so the
// returned plane may be smaller than requested. The copy never aliases the
// source buffer.
func (p *Plane[T]) Sub(y, x, h, w int) *Plane[T] {
	if y+h > p.H {
		h = p.H - y
	}
	if x+w > p.W {
		w = p.W - x
	}
	pix := make([]T, h*w)
	for r := 0; r < h; r++ {
		copy(pix[r*w:(r+1)*w], p.Pix[(y+r)*p.W+x:(y+r)*p.W+x+w])
	}
	return &Plane[T]{H: h, W: w, Pix: pix}
}

// Bytes encodes the samples in row-major order with the given byte order.
// uint8 planes are returned as a fresh copy regardless of order.
func (p *Plane[T]) Bytes(order binary.ByteOrder) []byte {
	switch pix := any(p.Pix).(type) {
	case []uint8:
		out := make([]byte, len(pix))
		copy(out, pix)
		return out
	case []uint16:
		out := make([]byte, 2*len(pix))
		for i, v := range pix {
			order.PutUint16(out[2*i:], v)
		}
		return out
	default:
		panic("plane: unreachable sample type")
	}
}
