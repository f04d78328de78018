package pyramid

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"omepyramid/pkg/ome"
	"omepyramid/pkg/plane"
	"omepyramid/pkg/tiff"
)

func gradientStack(t *testing.T, channels, h, w int) *plane.MemStack[uint16] {
	t.Helper()
	planes := make([]*plane.Plane[uint16], channels)
	for c := 0; c < channels; c++ {
		p, err := plane.New[uint16](h, w)
		if err != nil {
			t.Fatalf("Failed to create plane: %v", err)
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p.Set(y, x, uint16((y+x+c*1000)&0xffff))
			}
		}
		planes[c] = p
	}
	s, err := plane.NewMemStack(planes...)
	if err != nil {
		t.Fatalf("Failed to create stack: %v", err)
	}
	return s
}

// TestWritePyramid2050 is the reference end-to-end case: a single-channel
// 2050x2050 uint16 plane with tile 1024 and 3 levels produces a 9-tile base
// with 2-px terminal tiles, levels (2050,2050)/(1025,1025)/(513,513) and one
// primary entry with two linked sub-resolution entries.
func TestWritePyramid2050(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping large end-to-end test in short mode")
	}

	stack := gradientStack(t, 1, 2050, 2050)
	path := filepath.Join(t.TempDir(), "pyramid.ome.tiff")

	err := Write(stack, path, Options{
		PixelSize: &plane.PixelSize{Y: 0.25, X: 0.25},
		TileSize:  1024,
		Levels:    3,
		Method:    BlockMean,
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := tiff.ReadInfo(path)
	if err != nil {
		t.Fatalf("ReadInfo failed: %v", err)
	}
	if !info.BigTIFF {
		t.Error("container is not BigTIFF")
	}
	if len(info.Images) != 3 {
		t.Fatalf("container has %d image entries, want 3", len(info.Images))
	}

	wantShapes := [][2]int{{2050, 2050}, {1025, 1025}, {513, 513}}
	wantTiles := []int{9, 4, 1}
	for i, img := range info.Images {
		if img.Height != wantShapes[i][0] || img.Width != wantShapes[i][1] {
			t.Errorf("level %d shape = (%d, %d), want (%d, %d)",
				i, img.Height, img.Width, wantShapes[i][0], wantShapes[i][1])
		}
		if img.Tiles != wantTiles[i] {
			t.Errorf("level %d has %d tiles, want %d", i, img.Tiles, wantTiles[i])
		}
		if img.TileWidth != 1024 || img.TileHeight != 1024 {
			t.Errorf("level %d tile geometry = %dx%d, want 1024x1024", i, img.TileWidth, img.TileHeight)
		}
		if img.BitsPerSample != 16 || img.SamplesPerPixel != 1 {
			t.Errorf("level %d is %d-bit x%d samples", i, img.BitsPerSample, img.SamplesPerPixel)
		}
		if reduced := img.Reduced(); reduced != (i > 0) {
			t.Errorf("level %d reduced flag = %v", i, reduced)
		}
	}

	desc := info.Images[0].Description
	for _, want := range []string{
		`PhysicalSizeX="0.25"`,
		`PhysicalSizeXUnit="µm"`,
		`PhysicalSizeY="0.25"`,
		`PhysicalSizeYUnit="µm"`,
		`Creator="` + ome.Creator + `"`,
	} {
		if !strings.Contains(desc, want) {
			t.Errorf("primary image description missing %s", want)
		}
	}
	if info.Images[0].Software != ome.Creator {
		t.Errorf("Software = %q, want %q", info.Images[0].Software, ome.Creator)
	}
}

func TestWriteValidationFailsFast(t *testing.T) {
	stack := gradientStack(t, 3, 64, 64)
	dir := t.TempDir()

	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"ZeroTileSize", Options{TileSize: 0, Levels: 1, Method: BlockMean}, plane.ErrInvalidParameter},
		{"ZeroLevels", Options{TileSize: 64, Levels: 0, Method: BlockMean}, plane.ErrInvalidParameter},
		{"BadMethod", Options{TileSize: 64, Levels: 1, Method: Method(9)}, plane.ErrInvalidParameter},
		{"BadPixelSize", Options{TileSize: 64, Levels: 1, Method: BlockMean,
			PixelSize: &plane.PixelSize{Y: -1, X: 1}}, plane.ErrInvalidParameter},
		{"NameCountMismatch", Options{TileSize: 64, Levels: 1, Method: BlockMean,
			ChannelNames: []string{"A", "B"}}, ome.ErrChannelCountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".tiff")
			err := Write[uint16](stack, path, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Write error = %v, want %v", err, tt.want)
			}
			// Fail-fast contract: parameter errors write nothing.
			if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
				t.Errorf("output file exists after parameter error")
			}
		})
	}
}

func TestWriteDeterministicDeflate(t *testing.T) {
	stack := gradientStack(t, 2, 300, 300)
	dir := t.TempDir()

	write := func(name string) []byte {
		path := filepath.Join(dir, name)
		err := Write[uint16](stack, path, Options{
			ChannelNames: []string{"DAPI", "CD45"},
			PixelSize:    &plane.PixelSize{Y: 0.5, X: 0.5},
			Compression:  tiff.CompressionDeflate,
			TileSize:     128,
			Levels:       2,
			Method:       BlockMean,
		})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read output: %v", err)
		}
		return data
	}

	if !bytes.Equal(write("a.tiff"), write("b.tiff")) {
		t.Error("two writes with identical inputs and deflate differ")
	}
}

// TestWriteProgressOrder checks the strict sequencing contract: levels in
// increasing order, channels in index order within a level, tiles in scan
// order within a channel.
func TestWriteProgressOrder(t *testing.T) {
	stack := gradientStack(t, 2, 100, 100)
	path := filepath.Join(t.TempDir(), "progress.tiff")

	var events []ProgressEvent
	err := Write[uint16](stack, path, Options{
		TileSize: 64,
		Levels:   2,
		Method:   Decimate,
		Progress: func(ev ProgressEvent) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Level 0: ceil(100/64)^2 = 4 tiles per channel; level 1 (50x50): 1.
	if want := 4*2 + 1*2; len(events) != want {
		t.Fatalf("got %d progress events, want %d", len(events), want)
	}
	prev := ProgressEvent{Level: -1}
	for i, ev := range events {
		if ev.Level < prev.Level {
			t.Fatalf("event %d: level decreased from %d to %d", i, prev.Level, ev.Level)
		}
		if ev.Level == prev.Level && ev.Channel < prev.Channel {
			t.Fatalf("event %d: channel decreased within level %d", i, ev.Level)
		}
		if ev.Level == prev.Level && ev.Channel == prev.Channel && ev.TileIndex != prev.TileIndex+1 {
			t.Fatalf("event %d: tile index %d after %d", i, ev.TileIndex, prev.TileIndex)
		}
		prev = ev
	}
	last := events[len(events)-1]
	if last.Level != 1 || last.Channel != 1 || last.TileIndex != last.TileCount {
		t.Errorf("last event = %+v", last)
	}
}

// brokenStack materializes a plane whose shape disagrees with its bounds,
// exercising the mid-write failure path.
type brokenStack struct{}

func (brokenStack) Channels() int      { return 1 }
func (brokenStack) Bounds() (int, int) { return 64, 64 }
func (brokenStack) Materialize(int) (*plane.Plane[uint8], error) {
	return plane.New[uint8](32, 32)
}

func TestWriteMidStreamFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.tiff")
	err := Write[uint8](brokenStack{}, path, Options{TileSize: 64, Levels: 1, Method: BlockMean})

	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("Write error = %v, want *WriteError", err)
	}
	if werr.Level != 0 || werr.Channel != 0 {
		t.Errorf("WriteError at level %d channel %d, want 0/0", werr.Level, werr.Channel)
	}
	if !errors.Is(err, plane.ErrUnsupportedShape) {
		t.Errorf("WriteError does not wrap ErrUnsupportedShape: %v", err)
	}

	// The incomplete container is left behind and is not parseable as a
	// finalized file.
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("incomplete output missing: %v", statErr)
	}
	if _, err := tiff.ReadInfo(path); err == nil {
		t.Error("incomplete container parsed as finalized")
	}
}

func TestWriteChannelMajorTileOrder(t *testing.T) {
	// All tiles of channel 0 must precede channel 1 within a level.
	stack := gradientStack(t, 2, 100, 100)
	path := filepath.Join(t.TempDir(), "order.tiff")

	var order []int
	err := Write[uint16](stack, path, Options{
		TileSize: 64,
		Levels:   1,
		Method:   BlockMean,
		Progress: func(ev ProgressEvent) { order = append(order, ev.Channel) },
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	want := []int{0, 0, 0, 0, 1, 1, 1, 1}
	if len(order) != len(want) {
		t.Fatalf("got %d events, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("channel order %v, want %v", order, want)
		}
	}
}

func TestPlaneStats(t *testing.T) {
	p, err := plane.New[uint8](2, 2)
	if err != nil {
		t.Fatalf("Failed to create plane: %v", err)
	}
	copy(p.Pix, []uint8{0, 10, 20, 30})

	s := PlaneStats(p)
	if s.Min != 0 || s.Max != 30 {
		t.Errorf("Min/Max = %g/%g, want 0/30", s.Min, s.Max)
	}
	if s.Mean != 15 {
		t.Errorf("Mean = %g, want 15", s.Mean)
	}
}
