// Package tiling cuts a 2-D plane into fixed-size tiles in row-major scan
// order, the order a tiled image container expects them to be appended.
package tiling

import (
	"fmt"

	"omepyramid/pkg/plane"
)

// Tile is one rectangular block cut from a plane, together with the position
// of its top-left corner in the source plane. Tiles at the bottom and right
// edges are clipped to the plane boundary, never padded. The pixel data is an
// owned copy and stays valid after the source plane is discarded.
type Tile[T plane.Pixel] struct {
	Y, X  int
	Plane *plane.Plane[T]
}

// Cursor walks the tiles of one plane exactly once, left to right then top to
// bottom. A cursor is single-consumer and not restartable; create a new one
// to traverse the plane again.
type Cursor[T plane.Pixel] struct {
	src          *plane.Plane[T]
	tileH, tileW int
	nx, ny       int
	next         int
}

// NewCursor returns a cursor over the ceil(H/tileH) x ceil(W/tileW) tile grid
// of p. Fails with plane.ErrInvalidParameter for non-positive tile dimensions.
func NewCursor[T plane.Pixel](p *plane.Plane[T], tileH, tileW int) (*Cursor[T], error) {
	if tileH < 1 || tileW < 1 {
		return nil, fmt.Errorf("%w: tile size %dx%d", plane.ErrInvalidParameter, tileH, tileW)
	}
	return &Cursor[T]{
		src:   p,
		tileH: tileH,
		tileW: tileW,
		nx:    (p.W + tileW - 1) / tileW,
		ny:    (p.H + tileH - 1) / tileH,
	}, nil
}

// Len returns the total number of tiles the cursor yields.
func (c *Cursor[T]) Len() int {
	return c.nx * c.ny
}

// Next returns the next tile in scan order, or ok=false once the grid is
// exhausted. Each returned tile is an independent copy of the source pixels.
func (c *Cursor[T]) Next() (Tile[T], bool) {
	if c.next >= c.nx*c.ny {
		return Tile[T]{}, false
	}
	ty := c.next / c.nx
	tx := c.next % c.nx
	c.next++

	y := ty * c.tileH
	x := tx * c.tileW
	return Tile[T]{Y: y, X: x, Plane: c.src.Sub(y, x, c.tileH, c.tileW)}, true
}
