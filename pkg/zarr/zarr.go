// Package zarr reads Zarr-v2-style chunked array directories as image
// stacks: a (C, H, W) or (H, W) unsigned integer array stored as compressed
// C-order chunk files next to a .zarray JSON document. A store materializes
// one full channel plane at a time, which is all the pyramid writer needs.
package zarr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"omepyramid/pkg/plane"
)

type compressorMeta struct {
	ID string `json:"id"`
}

type arrayMeta struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	DType              string          `json:"dtype"`
	Compressor         *compressorMeta `json:"compressor"`
	FillValue          *float64        `json:"fill_value"`
	Order              string          `json:"order"`
	DimensionSeparator string          `json:"dimension_separator"`
}

// Store is an opened chunked array directory.
type Store struct {
	path string
	meta arrayMeta

	channels      int
	height, width int
	// chunk extents along each axis; chunkC is 1 for 2-D arrays.
	chunkC, chunkH, chunkW int

	dtype     plane.DType
	bigEndian bool
	fill      float64
	sep       string
	is3D      bool

	zdec *zstd.Decoder
}

// Open reads the .zarray document at path and validates that the array is a
// 2-D plane or a (C, H, W) channel stack this writer can consume.
func Open(path string) (*Store, error) {
	raw, err := os.ReadFile(filepath.Join(path, ".zarray"))
	if err != nil {
		return nil, fmt.Errorf("zarr: read array metadata: %w", err)
	}
	var meta arrayMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("zarr: parse array metadata: %w", err)
	}
	if meta.ZarrFormat != 2 {
		return nil, fmt.Errorf("zarr: unsupported format version %d", meta.ZarrFormat)
	}
	if meta.Order != "" && meta.Order != "C" {
		return nil, fmt.Errorf("zarr: unsupported chunk memory order %q", meta.Order)
	}
	if len(meta.Shape) != len(meta.Chunks) {
		return nil, fmt.Errorf("%w: %d shape dimensions, %d chunk dimensions",
			plane.ErrUnsupportedShape, len(meta.Shape), len(meta.Chunks))
	}

	s := &Store{path: path, meta: meta, sep: meta.DimensionSeparator}
	if s.sep == "" {
		s.sep = "."
	}
	if meta.FillValue != nil {
		s.fill = *meta.FillValue
	}

	switch meta.DType {
	case "|u1", "<u1", ">u1":
		s.dtype = plane.DTypeUint8
	case "<u2":
		s.dtype = plane.DTypeUint16
	case ">u2":
		s.dtype = plane.DTypeUint16
		s.bigEndian = true
	default:
		return nil, fmt.Errorf("zarr: unsupported dtype %q", meta.DType)
	}

	switch len(meta.Shape) {
	case 2:
		s.channels = 1
		s.height, s.width = meta.Shape[0], meta.Shape[1]
		s.chunkC, s.chunkH, s.chunkW = 1, meta.Chunks[0], meta.Chunks[1]
	case 3:
		s.is3D = true
		s.channels = meta.Shape[0]
		s.height, s.width = meta.Shape[1], meta.Shape[2]
		s.chunkC, s.chunkH, s.chunkW = meta.Chunks[0], meta.Chunks[1], meta.Chunks[2]
	default:
		return nil, fmt.Errorf("%w: %d-dimensional array", plane.ErrUnsupportedShape, len(meta.Shape))
	}
	if s.channels < 1 || s.height < 1 || s.width < 1 {
		return nil, fmt.Errorf("%w: array shape %v", plane.ErrUnsupportedShape, meta.Shape)
	}
	if s.chunkC < 1 || s.chunkH < 1 || s.chunkW < 1 {
		return nil, fmt.Errorf("%w: chunk shape %v", plane.ErrUnsupportedShape, meta.Chunks)
	}

	if meta.Compressor != nil {
		switch meta.Compressor.ID {
		case "zlib", "gzip":
		case "zstd":
			dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, fmt.Errorf("zarr: zstd decoder: %w", err)
			}
			s.zdec = dec
		default:
			return nil, fmt.Errorf("zarr: unsupported compressor %q", meta.Compressor.ID)
		}
	}
	return s, nil
}

// Channels returns the channel count (1 for 2-D arrays).
func (s *Store) Channels() int { return s.channels }

// Bounds returns the per-channel (height, width).
func (s *Store) Bounds() (int, int) { return s.height, s.width }

// DType returns the element type discovered from the array metadata.
func (s *Store) DType() plane.DType { return s.dtype }

// Uint8 returns the store as a uint8 stack. Fails when the array holds a
// different element type.
func (s *Store) Uint8() (plane.Stack[uint8], error) {
	if s.dtype != plane.DTypeUint8 {
		return nil, fmt.Errorf("zarr: array dtype is %s, not uint8", s.dtype)
	}
	return stack8{s}, nil
}

// Uint16 returns the store as a uint16 stack. Fails when the array holds a
// different element type.
func (s *Store) Uint16() (plane.Stack[uint16], error) {
	if s.dtype != plane.DTypeUint16 {
		return nil, fmt.Errorf("zarr: array dtype is %s, not uint16", s.dtype)
	}
	return stack16{s}, nil
}

type stack8 struct{ s *Store }

func (v stack8) Channels() int      { return v.s.channels }
func (v stack8) Bounds() (int, int) { return v.s.height, v.s.width }

func (v stack8) Materialize(channel int) (*plane.Plane[uint8], error) {
	raw, err := v.s.materializeRaw(channel)
	if err != nil {
		return nil, err
	}
	return plane.FromPix(v.s.height, v.s.width, raw)
}

type stack16 struct{ s *Store }

func (v stack16) Channels() int      { return v.s.channels }
func (v stack16) Bounds() (int, int) { return v.s.height, v.s.width }

func (v stack16) Materialize(channel int) (*plane.Plane[uint16], error) {
	raw, err := v.s.materializeRaw(channel)
	if err != nil {
		return nil, err
	}
	pix := make([]uint16, v.s.height*v.s.width)
	if v.s.bigEndian {
		for i := range pix {
			pix[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
		}
	} else {
		for i := range pix {
			pix[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
		}
	}
	return plane.FromPix(v.s.height, v.s.width, pix)
}

// materializeRaw assembles the full plane of one channel as raw sample bytes
// in the array's stored byte order. Chunks absent on disk read as the fill
// value. Idempotent: repeated calls re-read the chunk files.
func (s *Store) materializeRaw(channel int) ([]byte, error) {
	if channel < 0 || channel >= s.channels {
		return nil, fmt.Errorf("%w: channel %d of %d", plane.ErrInvalidParameter, channel, s.channels)
	}
	dsize := s.dtype.Size()
	out := make([]byte, s.height*s.width*dsize)
	if s.fill != 0 {
		s.fillBytes(out)
	}

	chunkBytes := s.chunkC * s.chunkH * s.chunkW * dsize
	cc := channel / s.chunkC // chunk index along the channel axis
	zi := channel % s.chunkC // plane offset inside the chunk

	for cy := 0; cy*s.chunkH < s.height; cy++ {
		for cx := 0; cx*s.chunkW < s.width; cx++ {
			data, err := s.readChunk(cc, cy, cx)
			if err != nil {
				return nil, err
			}
			if data == nil {
				continue // missing chunk, keep fill value
			}
			if len(data) != chunkBytes {
				return nil, fmt.Errorf("zarr: chunk (%d, %d, %d) is %d bytes, want %d",
					cc, cy, cx, len(data), chunkBytes)
			}

			y0 := cy * s.chunkH
			x0 := cx * s.chunkW
			rows := s.chunkH
			if y0+rows > s.height {
				rows = s.height - y0
			}
			cols := s.chunkW
			if x0+cols > s.width {
				cols = s.width - x0
			}
			for y := 0; y < rows; y++ {
				src := ((zi*s.chunkH+y)*s.chunkW) * dsize
				dst := ((y0+y)*s.width + x0) * dsize
				copy(out[dst:dst+cols*dsize], data[src:src+cols*dsize])
			}
		}
	}
	return out, nil
}

func (s *Store) fillBytes(out []byte) {
	switch s.dtype {
	case plane.DTypeUint8:
		v := byte(uint8(s.fill))
		for i := range out {
			out[i] = v
		}
	case plane.DTypeUint16:
		v := uint16(s.fill)
		lo, hi := byte(v), byte(v>>8)
		if s.bigEndian {
			lo, hi = hi, lo
		}
		for i := 0; i < len(out); i += 2 {
			out[i] = lo
			out[i+1] = hi
		}
	}
}

// readChunk loads and decompresses one chunk file, or returns nil when the
// chunk does not exist on disk.
func (s *Store) readChunk(cc, cy, cx int) ([]byte, error) {
	parts := []string{strconv.Itoa(cy), strconv.Itoa(cx)}
	if s.is3D {
		parts = append([]string{strconv.Itoa(cc)}, parts...)
	}
	name := strings.Join(parts, s.sep)

	raw, err := os.ReadFile(filepath.Join(s.path, name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("zarr: read chunk %s: %w", name, err)
	}

	if s.meta.Compressor == nil {
		return raw, nil
	}
	switch s.meta.Compressor.ID {
	case "zlib":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zarr: chunk %s: %w", name, err)
		}
		defer zr.Close()
		data, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("zarr: chunk %s: %w", name, err)
		}
		return data, nil
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zarr: chunk %s: %w", name, err)
		}
		defer gr.Close()
		data, err := io.ReadAll(gr)
		if err != nil {
			return nil, fmt.Errorf("zarr: chunk %s: %w", name, err)
		}
		return data, nil
	case "zstd":
		data, err := s.zdec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zarr: chunk %s: %w", name, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("zarr: unsupported compressor %q", s.meta.Compressor.ID)
	}
}
