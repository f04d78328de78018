package tiling

import (
	"errors"
	"testing"

	"omepyramid/pkg/plane"
)

// rampPlane creates a plane whose pixel values encode their position,
// so misplaced tiles are detected by the round-trip test.
func rampPlane(t *testing.T, h, w int) *plane.Plane[uint16] {
	t.Helper()
	p, err := plane.New[uint16](h, w)
	if err != nil {
		t.Fatalf("Failed to create plane: %v", err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p.Set(y, x, uint16((y*w+x)&0xffff))
		}
	}
	return p
}

func TestCursorTileCount(t *testing.T) {
	tests := []struct {
		name         string
		h, w         int
		tileH, tileW int
		want         int
	}{
		{"ExactGrid", 64, 64, 16, 16, 16},
		{"PartialEdges", 70, 65, 16, 16, 25},
		{"SingleTile", 10, 10, 16, 16, 1},
		{"OneColumn", 100, 8, 16, 16, 7},
		{"UnitTiles", 3, 4, 1, 1, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCursor(rampPlane(t, tt.h, tt.w), tt.tileH, tt.tileW)
			if err != nil {
				t.Fatalf("NewCursor failed: %v", err)
			}
			if c.Len() != tt.want {
				t.Errorf("Len() = %d, want %d", c.Len(), tt.want)
			}

			count := 0
			for {
				_, ok := c.Next()
				if !ok {
					break
				}
				count++
			}
			if count != tt.want {
				t.Errorf("cursor yielded %d tiles, want %d", count, tt.want)
			}
		})
	}
}

func TestCursorInvalidTileSize(t *testing.T) {
	p := rampPlane(t, 8, 8)
	for _, size := range [][2]int{{0, 16}, {16, 0}, {-1, 16}} {
		if _, err := NewCursor(p, size[0], size[1]); !errors.Is(err, plane.ErrInvalidParameter) {
			t.Errorf("NewCursor(%d, %d) error = %v, want ErrInvalidParameter", size[0], size[1], err)
		}
	}
}

// TestCursorRoundTrip verifies that pasting every tile back at its recorded
// position reconstructs the original plane exactly.
func TestCursorRoundTrip(t *testing.T) {
	src := rampPlane(t, 70, 53)
	c, err := NewCursor(src, 16, 16)
	if err != nil {
		t.Fatalf("NewCursor failed: %v", err)
	}

	dst, err := plane.New[uint16](70, 53)
	if err != nil {
		t.Fatalf("Failed to create destination plane: %v", err)
	}
	for {
		tile, ok := c.Next()
		if !ok {
			break
		}
		for y := 0; y < tile.Plane.H; y++ {
			for x := 0; x < tile.Plane.W; x++ {
				dst.Set(tile.Y+y, tile.X+x, tile.Plane.At(y, x))
			}
		}
	}

	for i := range src.Pix {
		if src.Pix[i] != dst.Pix[i] {
			t.Fatalf("reconstructed plane differs at index %d: got %d, want %d", i, dst.Pix[i], src.Pix[i])
		}
	}
}

func TestCursorScanOrder(t *testing.T) {
	src := rampPlane(t, 33, 33)
	c, err := NewCursor(src, 16, 16)
	if err != nil {
		t.Fatalf("NewCursor failed: %v", err)
	}

	wantPos := [][2]int{
		{0, 0}, {0, 16}, {0, 32},
		{16, 0}, {16, 16}, {16, 32},
		{32, 0}, {32, 16}, {32, 32},
	}
	wantDim := [][2]int{
		{16, 16}, {16, 16}, {16, 1},
		{16, 16}, {16, 16}, {16, 1},
		{1, 16}, {1, 16}, {1, 1},
	}

	for i := 0; ; i++ {
		tile, ok := c.Next()
		if !ok {
			if i != len(wantPos) {
				t.Fatalf("cursor yielded %d tiles, want %d", i, len(wantPos))
			}
			break
		}
		if tile.Y != wantPos[i][0] || tile.X != wantPos[i][1] {
			t.Errorf("tile %d at (%d, %d), want (%d, %d)", i, tile.Y, tile.X, wantPos[i][0], wantPos[i][1])
		}
		if tile.Plane.H != wantDim[i][0] || tile.Plane.W != wantDim[i][1] {
			t.Errorf("tile %d is %dx%d, want %dx%d", i, tile.Plane.H, tile.Plane.W, wantDim[i][0], wantDim[i][1])
		}
	}
}

// TestCursorTilesAreOwnedCopies mutates the source plane after draining the
// cursor and checks that already-yielded tiles are unaffected.
func TestCursorTilesAreOwnedCopies(t *testing.T) {
	src := rampPlane(t, 20, 20)
	c, err := NewCursor(src, 8, 8)
	if err != nil {
		t.Fatalf("NewCursor failed: %v", err)
	}

	first, ok := c.Next()
	if !ok {
		t.Fatal("cursor yielded no tiles")
	}
	want := first.Plane.At(0, 0)

	src.Set(0, 0, want+1)
	if got := first.Plane.At(0, 0); got != want {
		t.Errorf("tile aliases source plane: got %d after mutation, want %d", got, want)
	}
}
