package plane

import "fmt"

// Stack is a read-only multi-channel image: one 2-D plane per channel, all
// channels sharing identical dimensions and element type. Implementations
// are typically lazy; Materialize realizes the full plane for one channel
// and must be idempotent and side-effect-free, since the pyramid writer
// materializes each channel once per pyramid level.
type Stack[T Pixel] interface {
	// Channels returns the number of channels.
	Channels() int

	// Bounds returns the (height, width) shared by every channel.
	Bounds() (h, w int)

	// Materialize returns the fully-realized plane for the given channel.
	// The caller owns the returned plane.
	Materialize(channel int) (*Plane[T], error)
}

// MemStack is an in-memory Stack backed by pre-materialized planes.
type MemStack[T Pixel] struct {
	planes []*Plane[T]
}

// NewMemStack builds a stack from one plane per channel. All planes must
// share the same dimensions.
func NewMemStack[T Pixel](planes ...*Plane[T]) (*MemStack[T], error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("%w: stack has no channels", ErrUnsupportedShape)
	}
	h, w := planes[0].H, planes[0].W
	for i, p := range planes {
		if p.H != h || p.W != w {
			return nil, fmt.Errorf("%w: channel %d is %dx%d, channel 0 is %dx%d",
				ErrUnsupportedShape, i, p.H, p.W, h, w)
		}
		if len(p.Pix) != p.H*p.W {
			return nil, fmt.Errorf("%w: channel %d buffer length %d for %dx%d plane",
				ErrUnsupportedShape, i, len(p.Pix), p.H, p.W)
		}
	}
	return &MemStack[T]{planes: planes}, nil
}

// Channels returns the number of channels.
func (s *MemStack[T]) Channels() int { return len(s.planes) }

// Bounds returns the shared (height, width).
func (s *MemStack[T]) Bounds() (int, int) { return s.planes[0].H, s.planes[0].W }

// Materialize returns a copy of the requested channel plane, so the stack's
// own buffers never alias planes handed to the writer.
func (s *MemStack[T]) Materialize(channel int) (*Plane[T], error) {
	if channel < 0 || channel >= len(s.planes) {
		return nil, fmt.Errorf("%w: channel %d of %d", ErrInvalidParameter, channel, len(s.planes))
	}
	return s.planes[channel].Clone(), nil
}

// PixelSize is an optional physical pixel calibration in micrometers.
type PixelSize struct {
	// Y and X are the physical extent of one pixel along each axis, in µm.
	Y, X float64
}

// Valid reports whether both extents are positive.
func (ps PixelSize) Valid() bool {
	return ps.Y > 0 && ps.X > 0
}
